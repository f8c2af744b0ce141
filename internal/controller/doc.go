// Package controller orchestrates background frame caching.
//
// The Scheduler is the single owner of every piece of shared cache state: the
// cache and eviction queues, the budget ledger, the worker-slot table, the
// interactive request slots and deferred item deletions. It is deliberately
// not safe for concurrent use and talks to workers only through the Worker and
// Loader interfaces, which lets tests drive the state machine with fakes that
// complete or acknowledge interruption deterministically.
//
// The Controller wraps a Scheduler in one goroutine. Public methods post
// closures to that goroutine; worker slots post completion reports over
// channels. Status snapshots are published atomically after every event so
// readers never wait on the loop.
package controller
