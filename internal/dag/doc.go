// Package dag holds the dependency graph of a crawl. Tasks are registered
// incrementally with their dependencies, edges are deduplicated, and the graph
// can be snapshotted into an immutable copy that a run consumes and that
// cycle detection inspects without touching the live structure.
package dag
