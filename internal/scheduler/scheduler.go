package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/dag"
	"github.com/vk/gridcrawl/internal/executor"
	"github.com/vk/gridcrawl/internal/inmemorystore"
	"github.com/vk/gridcrawl/internal/queue"
	"github.com/vk/gridcrawl/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/gridcrawl/internal/scheduler"

var (
	// ErrInvalidConfig is returned by New for unusable construction parameters.
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
	// ErrCycle is matched by the error Run returns for a cyclic graph.
	ErrCycle = dag.ErrCycle
	// ErrInconsistent signals a broken run invariant, such as a result count
	// that does not match the number of registered tasks.
	ErrInconsistent = errors.New("scheduler: inconsistent run state")
	// ErrRunInProgress is returned by Add and Run while a run is executing.
	ErrRunInProgress = errors.New("scheduler: run in progress")
)

// Scheduler owns a dependency graph and runs it on a bounded worker pool.
// Tasks are registered with Add; Run executes every registered task once,
// respecting dependencies, and returns one result per key.
//
// The graph accumulates across runs. Each run works on a snapshot, so a
// scheduler can be run again after more tasks were added.
type Scheduler struct {
	// mu guards running and serialises registration against run start.
	mu      sync.Mutex
	running bool

	graph     *dag.Graph
	pool      *executor.Pool
	policy    FailurePolicy
	observers Observers
	store     *inmemorystore.Store
	tracer    trace.Tracer
}

// New creates a scheduler that runs at most maxConcurrent units of work at
// once, each performed by work.
func New(maxConcurrent int, work task.Executor, opts ...Option) (*Scheduler, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max concurrent tasks must be a positive integer, got %d", ErrInvalidConfig, maxConcurrent)
	}
	if work == nil {
		return nil, fmt.Errorf("%w: task executor must not be nil", ErrInvalidConfig)
	}

	s := &Scheduler{
		graph:  dag.New(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	pool, err := executor.New(maxConcurrent, work, executor.WithTracer(s.tracer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.pool = pool
	return s, nil
}

// Add registers key and its dependencies. Keys are created on first
// reference, whether as a task or as a dependency, and re-declared edges are
// counted once.
func (s *Scheduler) Add(key task.Key, deps ...task.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("add %s: %w", key, ErrRunInProgress)
	}
	s.graph.Register(key, deps...)
	return nil
}

// Keys returns every registered key in the order it was first referenced.
func (s *Scheduler) Keys() []task.Key {
	return s.graph.Keys()
}

// Len returns the number of registered keys.
func (s *Scheduler) Len() int {
	return s.graph.Len()
}

// MaxConcurrent returns the worker pool size.
func (s *Scheduler) MaxConcurrent() int {
	return s.pool.Size()
}

// Run executes every registered task and returns a result for each key.
//
// A cyclic graph fails with an error matching ErrCycle before any task runs.
// Collaborator failures are folded into the result map and never fail the
// run. If ctx is cancelled, Run stops the workers, waits for them to exit and
// returns an error wrapping ctx.Err() without results.
func (s *Scheduler) Run(ctx context.Context) (map[task.Key]task.Result, error) {
	snap, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()
	if s.store != nil {
		s.store.Reset(snap.Keys())
	}

	runID := uuid.NewString()
	ctx, logger := ctxlog.With(ctx, "runID", runID)
	ctx, span := s.tracer.Start(ctx, "scheduler.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.tasks", snap.Len()),
			attribute.Int("run.workers", s.pool.Size()),
		),
	)
	defer span.End()

	if snap.Len() == 0 {
		logger.Warn("No tasks registered, nothing to run.")
		span.SetStatus(codes.Ok, "")
		return map[task.Key]task.Result{}, nil
	}

	if err := snap.DetectCycles(); err != nil {
		return nil, s.abort(ctx, span, "Refusing to run a cyclic graph.", err)
	}
	seeds := snap.Roots()
	if len(seeds) == 0 {
		return nil, s.abort(ctx, span, "No task is ready to start.", &dag.CycleError{Keys: snap.Keys()})
	}

	st := newRunState(snap, queue.New(), s.policy, s.observers, s.store)
	if err := st.seed(seeds); err != nil {
		return nil, s.abort(ctx, span, "Failed to seed the ready queue.", err)
	}

	logger.Info("🚀 Starting crawl.", "tasks", snap.Len(), "seeds", len(seeds), "workers", s.pool.Size(), "policy", s.policy.String())
	start := time.Now()

	poolErr := s.pool.Run(ctx, st.queue, st)
	results, stateErr := st.finish()

	if stateErr != nil {
		return nil, s.abort(ctx, span, "Run state became inconsistent.", stateErr)
	}
	if poolErr != nil && len(results) != snap.Len() {
		logger.Warn("Crawl cancelled.", "completed", len(results), "tasks", snap.Len(), "reason", poolErr)
		span.RecordError(poolErr)
		span.SetStatus(codes.Error, "cancelled")
		return nil, fmt.Errorf("run %s cancelled after %d of %d tasks: %w", runID, len(results), snap.Len(), poolErr)
	}
	if len(results) != snap.Len() {
		return nil, s.abort(ctx, span, "Result count mismatch.",
			fmt.Errorf("%w: %d results for %d tasks", ErrInconsistent, len(results), snap.Len()))
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("run.failed", failed))
	span.SetStatus(codes.Ok, "")
	logger.Info("🏁 Crawl finished.", "tasks", len(results), "failed", failed, "elapsed", time.Since(start))
	return results, nil
}

// begin marks the scheduler as running and snapshots the graph.
func (s *Scheduler) begin() (*dag.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrRunInProgress
	}
	s.running = true
	return s.graph.Snapshot(), nil
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// abort logs and records err on the run span and returns it unchanged.
func (s *Scheduler) abort(ctx context.Context, span trace.Span, msg string, err error) error {
	ctxlog.FromContext(ctx).Error(msg, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
