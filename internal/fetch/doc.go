// Package fetch provides the task collaborators used by the crawler: a
// simulated fetcher that only waits and fabricates content, and an HTTP
// fetcher that downloads each key as a URL with optional rate limiting.
package fetch
