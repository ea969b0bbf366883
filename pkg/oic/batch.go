package oic

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBatchAborted marks tasks skipped after an earlier task failed.
var ErrBatchAborted = errors.New("batch aborted after earlier failure")

// BatchTask is one independent unit of work inside a workflow. Run records
// its per-resource outcome into the shared result and returns an error only
// when the task as a whole failed.
type BatchTask struct {
	ID  string
	Run func(ctx context.Context, result *SafeResult) error
}

// BatchOutcome describes how one task finished.
type BatchOutcome struct {
	ID       string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// BatchExecutor runs tasks with bounded concurrency.
type BatchExecutor struct {
	concurrency   int
	timeout       time.Duration
	stopOnFailure bool
}

// NewBatchExecutor creates a new batch executor. A concurrency of one or less
// runs tasks inline, in order.
func NewBatchExecutor(concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = 1
	}

	return &BatchExecutor{concurrency: concurrency}
}

// SetTimeout bounds each task. Zero leaves tasks bounded only by the parent context.
func (b *BatchExecutor) SetTimeout(timeout time.Duration) *BatchExecutor {
	b.timeout = timeout

	return b
}

// SetStopOnFailure makes the first failed task skip every task not yet started.
func (b *BatchExecutor) SetStopOnFailure(stop bool) *BatchExecutor {
	b.stopOnFailure = stop

	return b
}

// Execute runs tasks and returns their outcomes in task order.
func (b *BatchExecutor) Execute(ctx context.Context, tasks []BatchTask, result *SafeResult) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(tasks))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if b.concurrency == 1 {
		for index, task := range tasks {
			outcomes[index] = b.run(runCtx, cancel, task, result)
		}

		return outcomes
	}

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, b.concurrency)

	for index, task := range tasks {
		waitGroup.Add(1)

		go func(index int, task BatchTask) {
			defer waitGroup.Done()

			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			outcomes[index] = b.run(runCtx, cancel, task, result)
		}(index, task)
	}

	waitGroup.Wait()

	return outcomes
}

func (b *BatchExecutor) run(ctx context.Context, cancel context.CancelFunc, task BatchTask, result *SafeResult) BatchOutcome {
	outcome := BatchOutcome{ID: task.ID}

	if ctx.Err() != nil {
		outcome.Skipped = true
		outcome.Err = ErrBatchAborted

		return outcome
	}

	taskCtx := ctx

	if b.timeout > 0 {
		var taskCancel context.CancelFunc

		taskCtx, taskCancel = context.WithTimeout(ctx, b.timeout)
		defer taskCancel()
	}

	start := time.Now()
	outcome.Err = task.Run(taskCtx, result)
	outcome.Duration = time.Since(start)

	if outcome.Err != nil && b.stopOnFailure {
		cancel()
	}

	return outcome
}

// Failed returns the outcomes that ran and failed.
func Failed(outcomes []BatchOutcome) []BatchOutcome {
	var failed []BatchOutcome

	for _, outcome := range outcomes {
		if outcome.Err != nil && !outcome.Skipped {
			failed = append(failed, outcome)
		}
	}

	return failed
}
