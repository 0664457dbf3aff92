package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"dubqueue/internal/observer"
	"dubqueue/internal/pipeline"
	"dubqueue/internal/queue"
	"dubqueue/internal/task"
)

var (
	ErrBatchRunning = errors.New("a batch is already running")
	ErrBadSettings  = errors.New("invalid scheduler settings")
)

var allowedParallel = map[int]bool{1: true, 2: true, 4: true, 8: true}

// Settings is the concurrency configuration. It is immutable while a
// batch is running.
type Settings struct {
	ParallelLimit int `json:"parallelLimit"`
	MaxRetries    int `json:"maxRetries"`
}

func (s Settings) Validate() error {
	if !allowedParallel[s.ParallelLimit] {
		return fmt.Errorf("%w: parallel limit %d not in {1,2,4,8}", ErrBadSettings, s.ParallelLimit)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative", ErrBadSettings)
	}
	return nil
}

// BatchResult summarizes one batch invocation.
type BatchResult struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Scheduler drives the stage pipeline over pending tasks with a
// bounded, work-stealing worker pool.
type Scheduler struct {
	queue   *queue.Manager
	runner  *pipeline.Runner
	retrier *Retrier
	feed    *observer.Feed

	mu       sync.Mutex
	settings Settings
	running  bool
}

func New(q *queue.Manager, runner *pipeline.Runner, feed *observer.Feed, settings Settings) (*Scheduler, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &Scheduler{
		queue:    q,
		runner:   runner,
		retrier:  NewRetrier(q, runner),
		feed:     feed,
		settings: settings,
	}, nil
}

func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Configure replaces the settings. Rejected while a batch is active.
func (s *Scheduler) Configure(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBatchRunning
	}
	s.settings = settings
	return nil
}

// Active reports whether a batch is in flight.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Retrier exposes the manual-retry controller sharing this scheduler's
// queue and runner.
func (s *Scheduler) Retrier() *Retrier {
	return s.retrier
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

// RunBatch snapshots the pending tasks and fans out at most
// ParallelLimit workers over them. Workers pull the next unclaimed task
// as soon as they finish one, so a fast worker picks up slack instead
// of idling. The call blocks until the snapshot is exhausted. Tasks
// enqueued after the snapshot wait for the next invocation.
func (s *Scheduler) RunBatch(ctx context.Context) (BatchResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return BatchResult{}, ErrBatchRunning
	}
	s.running = true
	settings := s.settings
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	pending, err := s.queue.ListByStatus(ctx, task.StatusPending)
	if err != nil {
		return BatchResult{}, err
	}
	if len(pending) == 0 {
		return BatchResult{}, nil
	}

	ids := make([]string, len(pending))
	for i, t := range pending {
		ids[i] = t.ID
	}

	workers := settings.ParallelLimit
	if len(ids) < workers {
		workers = len(ids)
	}

	s.feed.Append(fmt.Sprintf("[SYSTEM] batch started: %d tasks across %d workers", len(ids), workers))

	var (
		cursor    int64 = -1
		completed int64
		failed    int64
		skipped   int64
		wg        sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}

				next := atomic.AddInt64(&cursor, 1)
				if next >= int64(len(ids)) {
					return
				}

				switch s.runOne(ctx, workerID, ids[next], settings.MaxRetries) {
				case outcomeCompleted:
					atomic.AddInt64(&completed, 1)
				case outcomeFailed:
					atomic.AddInt64(&failed, 1)
				case outcomeSkipped:
					atomic.AddInt64(&skipped, 1)
				}
			}
		}(w)
	}
	wg.Wait()

	result := BatchResult{
		Total:     len(ids),
		Completed: int(atomic.LoadInt64(&completed)),
		Failed:    int(atomic.LoadInt64(&failed)),
		Skipped:   int(atomic.LoadInt64(&skipped)),
	}

	logrus.WithFields(logrus.Fields{
		"total":     result.Total,
		"completed": result.Completed,
		"failed":    result.Failed,
	}).Info("batch finished")

	return result, nil
}

// runOne processes a single task, auto-retrying in place while the
// ceiling allows. Errors never escape to the batch loop; a failed task
// only affects its own record.
func (s *Scheduler) runOne(ctx context.Context, workerID int, id string, maxRetries int) outcome {
	for {
		err := s.runner.Process(ctx, id)
		if err == nil {
			return outcomeCompleted
		}
		if errors.Is(err, queue.ErrNotFound) {
			// Removed between snapshot and claim.
			return outcomeSkipped
		}

		logrus.WithFields(logrus.Fields{"worker": workerID, "task_id": id}).
			WithError(err).Warn("task attempt failed")

		if ctx.Err() != nil {
			return outcomeFailed
		}

		t, gerr := s.queue.Get(ctx, id)
		if gerr != nil || t == nil {
			return outcomeFailed
		}
		if t.Status != task.StatusError || t.RetryCount >= maxRetries {
			return outcomeFailed
		}

		if rerr := s.retrier.reset(ctx, id); rerr != nil {
			logrus.WithField("task_id", id).WithError(rerr).Warn("auto-retry reset failed")
			return outcomeFailed
		}
	}
}
