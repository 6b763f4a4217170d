package dag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/gridcrawl/internal/task"
)

// ErrCycle is the sentinel matched by every cycle error.
var ErrCycle = errors.New("dependency cycle detected")

// CycleError reports the keys that could never become ready. The set
// contains every node on a cycle plus every node downstream of one.
type CycleError struct {
	Keys []task.Key
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	const maxListed = 10

	names := make([]string, 0, min(len(e.Keys), maxListed))
	for i, key := range e.Keys {
		if i == maxListed {
			break
		}
		names = append(names, string(key))
	}
	list := strings.Join(names, ", ")
	if len(e.Keys) > maxListed {
		list += fmt.Sprintf(", ... (%d more)", len(e.Keys)-maxListed)
	}
	return fmt.Sprintf("%s: %d unresolved tasks: %s", ErrCycle, len(e.Keys), list)
}

// Unwrap lets errors.Is(err, ErrCycle) match.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// DetectCycles runs Kahn's algorithm over private copies of the snapshot's
// counts: it repeatedly removes a zero in-degree node and decrements its
// dependents. If fewer nodes are removed than exist, the remainder cannot be
// ordered and a *CycleError listing them is returned. Self-loops count as
// cycles. Runs in O(V+E).
func (s *Snapshot) DetectCycles() error {
	inDegree := s.InDegrees()

	ready := s.Roots()
	removed := 0
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		removed++

		for _, dependent := range s.dependents[key] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if removed == len(s.keys) {
		return nil
	}

	stuck := make([]task.Key, 0, len(s.keys)-removed)
	for _, key := range s.keys {
		if inDegree[key] > 0 {
			stuck = append(stuck, key)
		}
	}
	return &CycleError{Keys: stuck}
}
