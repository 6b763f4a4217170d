// Package scheduler coordinates a crawl: it owns the dependency graph,
// validates it, seeds the ready queue and drives the worker pool until every
// registered task has a result.
//
// # How It Works
//
// A run follows a fixed sequence:
//  1. Snapshot the graph so registrations made later do not affect the run
//  2. Reject the run if the snapshot contains a cycle (no task is executed)
//  3. Push every zero in-degree task into the ready queue
//  4. Start the worker pool; each completion decrements its dependents and
//     enqueues those that reach zero, all under one lock
//  5. Close the queue when the last result is recorded and join the workers
//
// # Failure Policy
//
// BestEffort (the default) lets dependents of a failed task run once their
// other dependencies are done. SkipDependents records them as skipped
// failures instead. Either way every registered key gets exactly one result.
//
// # Relationship with Other Components
//
//   - **dag:** Graph registration, snapshots and cycle detection
//   - **queue:** Ready queue shared between the run state and the workers
//   - **executor:** Worker pool that reports back through executor.Sink
//   - **inmemorystore:** Optional live view of task statuses for readers
package scheduler
