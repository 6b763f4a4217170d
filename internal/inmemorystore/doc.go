// Package inmemorystore provides an ephemeral, thread-safe, in-memory record
// of each task's live status and final result during a crawl.
//
// # Purpose
//
// The scheduler keeps its own run state behind a single mutex. This store is
// the read side: it mirrors status transitions (Pending, Queued, Running,
// Done, Failed) and recorded results so that observers such as the health
// server's /status endpoint can read progress without touching the
// scheduler's lock.
//
// # Concurrency Model
//
// The store uses sync.Map because:
//   - **Write-Heavy Workload:** Workers constantly update task statuses
//   - **Independent Keys:** Each task's state is independent of every other
//   - **Concurrent Reads + Writes:** HTTP handlers read while workers write
//
// The store is reset at the start of every run; it is not persistent.
package inmemorystore
