package scheduler

import (
	"github.com/vk/gridcrawl/internal/inmemorystore"
	"go.opentelemetry.io/otel/trace"
)

// FailurePolicy decides what happens to the dependents of a failed task.
type FailurePolicy int

const (
	// BestEffort runs dependents of a failed task as soon as their other
	// dependencies are satisfied. A failure only affects its own key.
	BestEffort FailurePolicy = iota
	// SkipDependents records every transitive dependent of a failed task as a
	// failure wrapping task.ErrSkipped without executing it.
	SkipDependents
)

// String returns the policy name used on the command line.
func (p FailurePolicy) String() string {
	switch p {
	case BestEffort:
		return "continue"
	case SkipDependents:
		return "skip"
	default:
		return "unknown"
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithFailurePolicy selects the failure policy. The default is BestEffort.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *Scheduler) {
		s.policy = p
	}
}

// WithObserver adds observers notified of every task start and finish.
func WithObserver(obs ...Observer) Option {
	return func(s *Scheduler) {
		for _, o := range obs {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

// WithStore mirrors live task statuses and results into store.
func WithStore(store *inmemorystore.Store) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

// WithTracer sets the tracer used for run and task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}
