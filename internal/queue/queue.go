// Package queue provides the ready queue: an unbounded, blocking FIFO of task
// keys whose dependencies are all satisfied. Workers block in Pop until a key
// arrives, the queue is closed, or their context is done.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/gridcrawl/internal/task"
)

var (
	// ErrClosed is returned by Pop once the queue is closed and drained, and
	// by Push after Close.
	ErrClosed = errors.New("queue: closed")
	// ErrDuplicate is returned by Push for a key that is already waiting in the queue.
	ErrDuplicate = errors.New("queue: key already queued")
)

// Queue is a concurrency-safe FIFO of task keys. The zero value is not
// usable; construct with New.
type Queue struct {
	mu     sync.Mutex
	items  []task.Key
	queued map[task.Key]struct{}
	closed bool

	// signal holds at most one wake-up token for a blocked Pop.
	signal chan struct{}
	// done is closed by Close to release every blocked Pop at once.
	done chan struct{}
}

// New returns an empty, open queue.
func New() *Queue {
	return &Queue{
		queued: make(map[task.Key]struct{}),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends key without blocking. A key may appear in the queue at most
// once at a time.
func (q *Queue) Push(key task.Key) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("push %s: %w", key, ErrClosed)
	}
	if _, ok := q.queued[key]; ok {
		q.mu.Unlock()
		return fmt.Errorf("push %s: %w", key, ErrDuplicate)
	}
	q.items = append(q.items, key)
	q.queued[key] = struct{}{}
	q.mu.Unlock()

	q.wake()
	return nil
}

// Pop removes and returns the oldest key. It blocks until a key is available,
// the queue is closed and drained (ErrClosed), or ctx is done (ctx.Err()).
// A done ctx wins over queued items.
func (q *Queue) Pop(ctx context.Context) (task.Key, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			key := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			delete(q.queued, key)
			more := len(q.items) > 0
			q.mu.Unlock()

			// Pass the token on so another waiter picks up the remainder.
			if more {
				q.wake()
			}
			return key, nil
		}
		if q.closed {
			q.mu.Unlock()
			return "", ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close marks the queue as finished. Keys already queued can still be popped;
// once they are drained every Pop returns ErrClosed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of keys waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// wake leaves a token for one blocked Pop, if none is pending already.
func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
