package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/queue"
	"github.com/vk/gridcrawl/internal/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// worker is the core processing loop for a single concurrent worker.
func (p *Pool) worker(ctx context.Context, workerID int, q *queue.Queue, sink Sink) error {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for {
		key, err := q.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) {
			logger.Debug("Worker finished.")
			return nil
		}
		if err != nil {
			logger.Debug("Worker stopping.", "reason", err)
			return err
		}

		workerLogger := logger.With("key", key)
		workerLogger.Debug("Worker picked up task.")
		res := p.process(ctxlog.WithLogger(ctx, workerLogger), key, sink)
		sink.Complete(ctx, key, res)
	}
}

// process runs one key through the sink's admission check and the collaborator.
func (p *Pool) process(ctx context.Context, key task.Key, sink Sink) task.Result {
	logger := ctxlog.FromContext(ctx)

	if err := sink.Begin(ctx, key); err != nil {
		logger.Warn("Task not executed.", "reason", err)
		return task.Failure(err)
	}

	ctx, span := p.tracer.Start(ctx, "task.execute",
		trace.WithAttributes(attribute.String("task.key", string(key))),
	)
	defer span.End()

	content, err := p.execute(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Task failed.", "error", err)
		return task.Failure(err)
	}

	span.SetAttributes(attribute.Int("task.content_bytes", len(content)))
	span.SetStatus(codes.Ok, "")
	logger.Debug("Task succeeded.", "bytes", len(content))
	return task.Success(content)
}

// execute calls the collaborator, turning a panic into an error so a faulty
// collaborator cannot take down the worker.
func (p *Pool) execute(ctx context.Context, key task.Key) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return p.work.Execute(ctx, key)
}
