package dag

import (
	"sync"

	"github.com/vk/gridcrawl/internal/task"
)

// Graph is a collection of tasks and their dependencies. Nodes are created on
// first reference and edges are add-only. All operations on the graph are
// concurrency-safe.
type Graph struct {
	// mutex protects nodes and order during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by task key.
	nodes map[task.Key]*node
	// order records keys in the order they were first referenced.
	order []task.Key
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using task keys),
// not by direct struct manipulation.
type node struct {
	// key is the unique identifier for the node.
	key task.Key
	// deps holds the set of keys this node depends on. Its size is the
	// node's in-degree.
	deps map[task.Key]struct{}
	// dependents holds the keys that depend on this node, in the order the
	// edges were declared.
	dependents []task.Key
}

// Snapshot is an immutable, point-in-time copy of a graph's structure. A run
// works exclusively on a snapshot so the live graph is never mutated by
// execution.
type Snapshot struct {
	keys       []task.Key
	inDegree   map[task.Key]int
	dependents map[task.Key][]task.Key
}
