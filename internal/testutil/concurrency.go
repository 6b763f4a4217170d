package testutil

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/vk/gridcrawl/internal/task"
)

// Recorder is a task.Executor for concurrency tests. It sleeps for a fixed
// duration, fails for configured keys, and records when each key ran and how
// many keys were running at once.
type Recorder struct {
	delay    time.Duration
	failures map[task.Key]error
	panics   map[task.Key]struct{}

	mu      sync.Mutex
	records map[task.Key]ExecutionRecord
	order   []task.Key
	active  int
	peak    int
}

// NewRecorder creates a recorder whose unit of work takes delay.
func NewRecorder(delay time.Duration) *Recorder {
	return &Recorder{
		delay:    delay,
		failures: make(map[task.Key]error),
		panics:   make(map[task.Key]struct{}),
		records:  make(map[task.Key]ExecutionRecord),
	}
}

// FailOn makes Execute return err for key. It must be called before the run starts.
func (r *Recorder) FailOn(key task.Key, err error) *Recorder {
	r.failures[key] = err
	return r
}

// PanicOn makes Execute panic for key. It must be called before the run starts.
func (r *Recorder) PanicOn(key task.Key) *Recorder {
	r.panics[key] = struct{}{}
	return r
}

// Execute implements task.Executor.
func (r *Recorder) Execute(ctx context.Context, key task.Key) (string, error) {
	start := time.Now()
	r.mu.Lock()
	r.active++
	r.peak = max(r.peak, r.active)
	r.order = append(r.order, key)
	r.mu.Unlock()

	defer func() {
		end := time.Now()
		r.mu.Lock()
		r.active--
		r.records[key] = ExecutionRecord{Start: start, End: end}
		r.mu.Unlock()
	}()

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if _, ok := r.panics[key]; ok {
		panic("recorder: forced panic for " + string(key))
	}
	if err, ok := r.failures[key]; ok {
		return "", err
	}
	return "Content of " + string(key), nil
}

// Order returns keys in the order their execution started.
func (r *Recorder) Order() []task.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Records returns a copy of the execution records collected so far.
func (r *Recorder) Records() map[task.Key]ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.records)
}

// Peak returns the highest number of keys that executed at the same time.
func (r *Recorder) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// Calls returns how many times Execute was invoked.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
