package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dubqueue/internal/backend"
	"dubqueue/internal/observer"
	"dubqueue/internal/queue"
	"dubqueue/internal/subtitle"
	"dubqueue/internal/task"
)

// startProgress is reported as soon as a task flips to processing,
// before the first stage completes.
const startProgress = 10

// StageError is a stage-aware failure for one execution attempt.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// state carries the artifacts produced so far through the stage chain.
// It is private to one task's one execution attempt.
type state struct {
	task    *task.Task
	audio   backend.AudioPayload
	records []backend.TranscriptRecord
	cues    []subtitle.Cue
	source  string
	dub     []backend.AudioPayload
	output  backend.MediaInfo
	notes   []string
}

func (s *state) note(line string) {
	s.notes = append(s.notes, line)
}

func (s *state) drainNotes() []string {
	out := s.notes
	s.notes = nil
	return out
}

// stageFunc performs one stage's unit of work against its backend.
type stageFunc func(ctx context.Context, st *state) error

// stage describes one ordered pipeline step. The descriptor set is
// fixed when the runner is built and read-only during execution.
type stage struct {
	Name           string
	ProgressTarget int
	Message        string
	LogDetail      string
	Run            stageFunc
}

// Runner executes the stage chain for one task at a time. Stages run
// strictly in order; a failed stage aborts the attempt.
type Runner struct {
	queue  *queue.Manager
	feed   *observer.Feed
	stages []stage
}

func NewRunner(q *queue.Manager, feed *observer.Feed, b Backends, opts Options) *Runner {
	return &Runner{
		queue:  q,
		feed:   feed,
		stages: defaultStages(b, opts),
	}
}

// newRunnerWithStages builds a runner over a custom stage chain.
func newRunnerWithStages(q *queue.Manager, feed *observer.Feed, stages []stage) *Runner {
	return &Runner{queue: q, feed: feed, stages: stages}
}

// Process runs every stage in order for one pending task. Progress only
// moves forward within the attempt; a stage failure marks the task
// errored and skips the remaining stages.
func (r *Runner) Process(ctx context.Context, taskID string) error {
	t, err := r.queue.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, taskID)
	}
	if t.Status != task.StatusPending {
		return fmt.Errorf("task %s is %s, expected pending", taskID, t.Status)
	}

	processing := task.StatusProcessing
	progress := startProgress
	msg := "starting pipeline"
	if _, err := r.queue.Update(ctx, taskID, task.Patch{
		Status:    &processing,
		Progress:  &progress,
		Message:   &msg,
		AppendLog: []string{"pipeline started"},
	}); err != nil {
		return err
	}

	st := &state{task: t}
	for _, sg := range r.stages {
		logrus.WithFields(logrus.Fields{"task_id": taskID, "stage": sg.Name}).Debug("running stage")

		if err := sg.Run(ctx, st); err != nil {
			r.fail(ctx, t, sg, err)
			return &StageError{Stage: sg.Name, Message: "stage failed", Err: err}
		}

		target := sg.ProgressTarget
		stageMsg := sg.Message
		lines := append([]string{sg.LogDetail}, st.drainNotes()...)
		if _, err := r.queue.Update(ctx, taskID, task.Patch{
			Progress:  &target,
			Message:   &stageMsg,
			AppendLog: lines,
		}); err != nil {
			return err
		}
	}

	completed := task.StatusCompleted
	done := 100
	doneMsg := "processing completed"
	patch := task.Patch{
		Status:    &completed,
		Progress:  &done,
		Message:   &doneMsg,
		AppendLog: []string{"all stages completed"},
	}
	if st.cues != nil {
		patch.Subtitles = &st.cues
	}
	if st.source != "" {
		patch.SourceLanguage = &st.source
	}
	if _, err := r.queue.Update(ctx, taskID, patch); err != nil {
		return err
	}

	r.feed.Append(fmt.Sprintf("finished processing: %s", t.Name))
	return nil
}

func (r *Runner) fail(ctx context.Context, t *task.Task, sg stage, cause error) {
	errored := task.StatusError
	msg := fmt.Sprintf("%s failed: %v", sg.Name, cause)
	reason := cause.Error()

	if _, err := r.queue.Update(ctx, t.ID, task.Patch{
		Status:    &errored,
		Message:   &msg,
		Error:     &reason,
		AppendLog: []string{fmt.Sprintf("[ERROR] %s", msg)},
	}); err != nil {
		logrus.WithError(err).WithField("task_id", t.ID).Error("failed to record stage failure")
	}

	r.feed.Append(fmt.Sprintf("[CRITICAL] %s failed at %s: %v", t.Name, sg.Name, cause))
}
