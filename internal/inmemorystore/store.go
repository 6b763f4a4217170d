package inmemorystore

import (
	"sync"

	"github.com/vk/gridcrawl/internal/task"
)

// Store is an in-memory record of task state using sync.Map for fine-grained
// concurrent access without global lock contention.
//
// The store maintains two independent sync.Maps:
//   - states: Maps task keys to task.Status (Pending, Queued, Running, Done, Failed)
//   - results: Maps task keys to the task.Result recorded when the task completed
//
// Workers write while the health server reads, so every method is safe for
// concurrent use.
type Store struct {
	states  sync.Map // Key: task.Key, Value: task.Status
	results sync.Map // Key: task.Key, Value: task.Result
}

// New creates a new, empty in-memory task state store.
func New() *Store {
	return &Store{}
}

// Reset forgets every key and marks each of keys as Pending.
func (s *Store) Reset(keys []task.Key) {
	s.states.Clear()
	s.results.Clear()
	for _, key := range keys {
		s.states.Store(key, task.Pending)
	}
}

// SetStatus updates the execution status of a specific task.
func (s *Store) SetStatus(key task.Key, status task.Status) {
	s.states.Store(key, status)
}

// Status retrieves the execution status of a specific task.
// If a status has not been set, it returns task.Pending.
func (s *Store) Status(key task.Key) task.Status {
	status, ok := s.states.Load(key)
	if !ok {
		return task.Pending
	}
	return status.(task.Status)
}

// SetResult records the outcome of a task and moves it to Done or Failed.
func (s *Store) SetResult(key task.Key, res task.Result) {
	s.results.Store(key, res)
	if res.Failed() {
		s.states.Store(key, task.Failed)
	} else {
		s.states.Store(key, task.Done)
	}
}

// Result retrieves the recorded outcome of a completed task.
func (s *Store) Result(key task.Key) (task.Result, bool) {
	res, ok := s.results.Load(key)
	if !ok {
		return task.Result{}, false
	}
	return res.(task.Result), true
}

// Statuses returns a point-in-time copy of every known task's status.
func (s *Store) Statuses() map[task.Key]task.Status {
	out := make(map[task.Key]task.Status)
	s.states.Range(func(k, v any) bool {
		out[k.(task.Key)] = v.(task.Status)
		return true
	})
	return out
}

// Counts returns how many tasks are in each status.
func (s *Store) Counts() map[task.Status]int {
	out := make(map[task.Status]int)
	s.states.Range(func(_, v any) bool {
		out[v.(task.Status)]++
		return true
	})
	return out
}
