package scheduler

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/dag"
	"github.com/vk/gridcrawl/internal/inmemorystore"
	"github.com/vk/gridcrawl/internal/queue"
	"github.com/vk/gridcrawl/internal/task"
)

// runState is the transient bookkeeping of one run. It implements
// executor.Sink: workers report to it and it releases dependents.
type runState struct {
	snap      *dag.Snapshot
	queue     *queue.Queue
	policy    FailurePolicy
	observers Observers
	store     *inmemorystore.Store

	// mu guards every field below. The decrement, zero check and enqueue of
	// a dependent happen together under it.
	mu        sync.Mutex
	inDegree  map[task.Key]int
	results   map[task.Key]task.Result
	blockedBy map[task.Key]task.Key
	started   map[task.Key]time.Time
	// pending counts tasks without a recorded result.
	pending int
	// outstanding counts tasks that are queued or being executed.
	outstanding int
	err         error
}

func newRunState(snap *dag.Snapshot, q *queue.Queue, policy FailurePolicy, observers Observers, store *inmemorystore.Store) *runState {
	return &runState{
		snap:      snap,
		queue:     q,
		policy:    policy,
		observers: observers,
		store:     store,
		inDegree:  snap.InDegrees(),
		results:   make(map[task.Key]task.Result, snap.Len()),
		blockedBy: make(map[task.Key]task.Key),
		started:   make(map[task.Key]time.Time, snap.Len()),
		pending:   snap.Len(),
	}
}

// seed enqueues the run's initial zero in-degree keys.
func (st *runState) seed(keys []task.Key) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, key := range keys {
		if err := st.enqueue(key); err != nil {
			return err
		}
	}
	return nil
}

// enqueue pushes a ready key. Callers must hold mu.
func (st *runState) enqueue(key task.Key) error {
	if err := st.queue.Push(key); err != nil {
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}
	st.outstanding++
	if st.store != nil {
		st.store.SetStatus(key, task.Queued)
	}
	return nil
}

// Begin implements executor.Sink.
func (st *runState) Begin(ctx context.Context, key task.Key) error {
	st.mu.Lock()
	st.started[key] = time.Now()
	upstream, blocked := st.blockedBy[key]
	st.mu.Unlock()

	if blocked {
		return fmt.Errorf("%w: dependency %s failed", task.ErrSkipped, upstream)
	}

	if st.store != nil {
		st.store.SetStatus(key, task.Running)
	}
	st.observers.TaskStarted(ctx, key)
	return nil
}

// Complete implements executor.Sink.
func (st *runState) Complete(ctx context.Context, key task.Key, res task.Result) {
	logger := ctxlog.FromContext(ctx)

	st.mu.Lock()
	if _, dup := st.results[key]; dup {
		st.fail(fmt.Errorf("%w: task %s completed twice", ErrInconsistent, key))
		st.mu.Unlock()
		st.queue.Close()
		return
	}

	st.results[key] = res
	if st.store != nil {
		st.store.SetResult(key, res)
	}
	st.pending--
	st.outstanding--
	elapsed := time.Since(st.started[key])

	for _, dependent := range st.snap.Dependents(key) {
		if res.Failed() && st.policy == SkipDependents {
			if _, ok := st.blockedBy[dependent]; !ok {
				st.blockedBy[dependent] = key
			}
		}
		st.inDegree[dependent]--
		if st.inDegree[dependent] != 0 {
			continue
		}
		if err := st.enqueue(dependent); err != nil {
			st.fail(err)
			continue
		}
		logger.Debug("Unlocking dependent task.", "dependent", dependent)
	}

	finished := st.pending == 0
	if !finished && st.outstanding == 0 {
		st.fail(fmt.Errorf("%w: %d tasks can never become ready", ErrInconsistent, st.pending))
	}
	stop := finished || st.err != nil
	st.mu.Unlock()

	st.observers.TaskFinished(ctx, key, res, elapsed)
	if stop {
		st.queue.Close()
	}
}

// fail records the first invariant violation. Callers must hold mu.
func (st *runState) fail(err error) {
	if st.err == nil {
		st.err = err
	}
}

// finish returns a copy of the collected results and any recorded violation.
func (st *runState) finish() (map[task.Key]task.Result, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return maps.Clone(st.results), st.err
}
