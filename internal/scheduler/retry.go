package scheduler

import (
	"context"
	"errors"
	"fmt"

	"dubqueue/internal/pipeline"
	"dubqueue/internal/queue"
	"dubqueue/internal/task"
)

var ErrNotRetryable = errors.New("task is not in error state")

// Retrier replays errored tasks. A manual retry is a standalone
// single-task run outside any batch and ignores the retry ceiling; the
// scheduler's auto-retry path reuses reset but checks the ceiling first.
type Retrier struct {
	queue  *queue.Manager
	runner *pipeline.Runner
}

func NewRetrier(q *queue.Manager, runner *pipeline.Runner) *Retrier {
	return &Retrier{queue: q, runner: runner}
}

// Retry resets an errored task to pending and immediately re-runs the
// pipeline for it.
func (r *Retrier) Retry(ctx context.Context, taskID string) error {
	if err := r.reset(ctx, taskID); err != nil {
		return err
	}
	return r.runner.Process(ctx, taskID)
}

// reset moves error -> pending, zeroes progress, bumps the retry count
// and logs the attempt.
func (r *Retrier) reset(ctx context.Context, taskID string) error {
	t, err := r.queue.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, taskID)
	}
	if t.Status != task.StatusError {
		return fmt.Errorf("%w: %s is %s", ErrNotRetryable, taskID, t.Status)
	}

	pending := task.StatusPending
	zero := 0
	attempt := t.RetryCount + 1
	msg := "retrying..."

	_, err = r.queue.Update(ctx, taskID, task.Patch{
		Status:     &pending,
		Progress:   &zero,
		Message:    &msg,
		RetryCount: &attempt,
		AppendLog:  []string{fmt.Sprintf("retry attempt %d", attempt)},
	})
	return err
}
