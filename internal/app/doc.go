// Package app contains the core application logic. It wires a plan, a
// fetcher and the scheduler together, runs the crawl and reports the
// results, decoupled from any specific entrypoint like a CLI or server.
package app
