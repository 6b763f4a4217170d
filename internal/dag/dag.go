package dag

import (
	"fmt"
	"slices"

	"github.com/vk/gridcrawl/internal/task"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[task.Key]*node),
	}
}

// Register ensures key and every listed dependency exist as nodes, then links
// key to each dependency it is not already linked to. Re-declaring an
// existing edge, in the same call or a later one, is a no-op. A key listed as
// its own dependency is recorded as a self-loop and reported later by cycle
// detection.
func (g *Graph) Register(key task.Key, deps ...task.Key) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n := g.ensure(key)
	for _, depKey := range deps {
		dep := g.ensure(depKey)
		if _, linked := n.deps[depKey]; linked {
			continue
		}
		n.deps[depKey] = struct{}{}
		dep.dependents = append(dep.dependents, key)
	}
}

// ensure returns the node for key, creating it if needed. Callers must hold
// the write lock.
func (g *Graph) ensure(key task.Key) *node {
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &node{
		key:  key,
		deps: make(map[task.Key]struct{}),
	}
	g.nodes[key] = n
	g.order = append(g.order, key)
	return n
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Keys returns every key in the order it was first referenced.
func (g *Graph) Keys() []task.Key {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.order)
}

// roots returns the keys whose in-degree is currently zero, in registration
// order. These are the tasks that seed a run.
func (g *Graph) roots() []task.Key {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var roots []task.Key
	for _, key := range g.order {
		if len(g.nodes[key].deps) == 0 {
			roots = append(roots, key)
		}
	}
	return roots
}

// inDegree returns the number of dependencies declared for key.
func (g *Graph) inDegree(key task.Key) (int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return 0, fmt.Errorf("node not found: %s", key)
	}
	return len(n.deps), nil
}

// dependencies returns the keys the given node depends on, sorted.
func (g *Graph) dependencies(key task.Key) ([]task.Key, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", key)
	}

	deps := make([]task.Key, 0, len(n.deps))
	for depKey := range n.deps {
		deps = append(deps, depKey)
	}
	slices.Sort(deps)
	return deps, nil
}

// dependents returns the keys that depend on the given node, in declaration order.
func (g *Graph) dependents(key task.Key) ([]task.Key, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", key)
	}
	return slices.Clone(n.dependents), nil
}

// Snapshot copies the graph's keys, in-degree counts and dependents lists.
func (g *Graph) Snapshot() *Snapshot {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	s := &Snapshot{
		keys:       slices.Clone(g.order),
		inDegree:   make(map[task.Key]int, len(g.nodes)),
		dependents: make(map[task.Key][]task.Key, len(g.nodes)),
	}
	for key, n := range g.nodes {
		s.inDegree[key] = len(n.deps)
		if len(n.dependents) > 0 {
			s.dependents[key] = slices.Clone(n.dependents)
		}
	}
	return s
}

// detectCycles snapshots the graph and checks the snapshot for cycles.
func (g *Graph) detectCycles() error {
	return g.Snapshot().DetectCycles()
}

// Len returns the number of keys in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.keys)
}

// Keys returns the snapshot's keys in registration order.
func (s *Snapshot) Keys() []task.Key {
	return slices.Clone(s.keys)
}

// Roots returns the snapshot's zero in-degree keys in registration order.
func (s *Snapshot) Roots() []task.Key {
	var roots []task.Key
	for _, key := range s.keys {
		if s.inDegree[key] == 0 {
			roots = append(roots, key)
		}
	}
	return roots
}

// InDegrees returns a fresh, caller-owned copy of the in-degree counts.
func (s *Snapshot) InDegrees() map[task.Key]int {
	out := make(map[task.Key]int, len(s.inDegree))
	for key, n := range s.inDegree {
		out[key] = n
	}
	return out
}

// Dependents returns the dependents of key. The returned slice is shared and
// must not be modified.
func (s *Snapshot) Dependents(key task.Key) []task.Key {
	return s.dependents[key]
}
