package scheduler

import (
	"context"
	"time"

	"github.com/vk/gridcrawl/internal/task"
)

// Observer receives task lifecycle notifications during a run.
//
// Notifications are delivered from worker goroutines, outside the scheduler's
// lock, so implementations must be safe for concurrent use and should return
// quickly:
//   - **TaskStarted:** a worker claimed the key and is about to execute it (not fired for skipped keys)
//   - **TaskFinished:** the key's result has been recorded and its dependents released, fired for every key
//
// The context carries the worker's logger and the run's trace span.
type Observer interface {
	TaskStarted(ctx context.Context, key task.Key)
	TaskFinished(ctx context.Context, key task.Key, res task.Result, elapsed time.Duration)
}

// Observers fans every notification out to each member in order.
type Observers []Observer

// TaskStarted implements Observer.
func (o Observers) TaskStarted(ctx context.Context, key task.Key) {
	for _, obs := range o {
		obs.TaskStarted(ctx, key)
	}
}

// TaskFinished implements Observer.
func (o Observers) TaskFinished(ctx context.Context, key task.Key, res task.Result, elapsed time.Duration) {
	for _, obs := range o {
		obs.TaskFinished(ctx, key, res, elapsed)
	}
}
