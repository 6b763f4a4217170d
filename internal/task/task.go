// Package task defines the vocabulary shared by every layer of the crawler:
// the key that identifies a unit of work, the result it produces, and the
// narrow collaborator interface that performs the work.
package task

import (
	"context"
	"errors"
)

// FailureMarker is how a failed result is rendered in reports.
const FailureMarker = "ERROR"

// ErrSkipped marks a task that was never executed because an upstream
// dependency failed and the run uses the skip-dependents failure policy.
var ErrSkipped = errors.New("skipped due to upstream failure")

// Key uniquely identifies a task within a run. For crawls it is the page URL.
type Key string

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// Result is the outcome of a single task: either a success payload or a
// failure carrying the collaborator's error.
type Result struct {
	// Content is the payload returned by the collaborator. It is empty for failures.
	Content string
	// Err is non-nil when the task failed or was skipped.
	Err error
}

// Success builds a successful result.
func Success(content string) Result {
	return Result{Content: content}
}

// Failure builds a failed result. A nil err is replaced with a generic error
// so the result can never be mistaken for a success.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("task failed")
	}
	return Result{Err: err}
}

// Failed reports whether the result represents a failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Skipped reports whether the task was skipped rather than executed.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

// String renders the content for successes and FailureMarker for failures.
func (r Result) String() string {
	if r.Failed() {
		return FailureMarker
	}
	return r.Content
}

// Executor performs the unit of work for one key. Implementations must honour
// ctx cancellation and must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, key Key) (string, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(ctx context.Context, key Key) (string, error)

// Execute calls f(ctx, key).
func (f ExecutorFunc) Execute(ctx context.Context, key Key) (string, error) {
	return f(ctx, key)
}

// Status represents the execution state of a task during a run.
type Status int32

const (
	// Pending indicates the task is waiting for its dependencies to complete.
	Pending Status = iota
	// Queued indicates the task is ready and waiting for a free worker.
	Queued
	// Running indicates a worker is currently executing the task.
	Running
	// Done indicates the task has completed successfully.
	Done
	// Failed indicates the task has failed or was skipped.
	Failed
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets a Status be used as a JSON value or map key.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
