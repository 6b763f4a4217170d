// Package executor runs the worker pool: a fixed number of goroutines that
// pull ready keys from a queue, invoke the task collaborator and hand every
// outcome to a Sink, which owns dependency bookkeeping.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/queue"
	"github.com/vk/gridcrawl/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/vk/gridcrawl/internal/executor"

var (
	// ErrInvalidSize is returned by New for a non-positive worker count.
	ErrInvalidSize = errors.New("executor: worker count must be positive")
	// ErrPanic wraps a panic raised by the task collaborator.
	ErrPanic = errors.New("executor: task panicked")
)

// Sink receives the lifecycle of every key a worker claims. Implementations
// must be safe for concurrent use.
type Sink interface {
	// Begin is called right after a worker pops key. A non-nil error records
	// the key as failed with that error without invoking the collaborator.
	Begin(ctx context.Context, key task.Key) error
	// Complete records the outcome of key. It is called exactly once per
	// popped key, after the collaborator returned.
	Complete(ctx context.Context, key task.Key, res task.Result)
}

// Option configures a Pool.
type Option func(*Pool)

// WithTracer sets the tracer used for per-task spans. The default is the
// global OpenTelemetry tracer provider, which is a no-op unless configured.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pool) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// Pool is a fixed-size set of workers bound to one collaborator.
type Pool struct {
	size   int
	work   task.Executor
	tracer trace.Tracer
}

// New creates a worker pool with size workers.
func New(size int, work task.Executor, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if work == nil {
		return nil, errors.New("executor: task executor must not be nil")
	}

	p := &Pool{
		size:   size,
		work:   work,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size returns the number of workers the pool starts.
func (p *Pool) Size() int {
	return p.size
}

// Run starts the workers and blocks until all of them have exited. Workers
// exit when q is closed and drained, which is a normal stop and yields a nil
// error, or when ctx is done, in which case the context error is returned.
func (p *Pool) Run(ctx context.Context, q *queue.Queue, sink Sink) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting worker pool.", "workers", p.size)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		workerID := i
		g.Go(func() error {
			return p.worker(gctx, workerID, q, sink)
		})
	}

	err := g.Wait()
	logger.Debug("Worker pool stopped.", "error", err)
	return err
}
