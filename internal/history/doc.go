// Package history persists caching-rate samples in SQLite so the rate and
// eviction activity of past sessions can be inspected after the daemon exits.
//
// The Store implements controller.RateSink. Rows carry the daemon session id,
// the sampled byte counts and the eviction deltas of the interval. The
// database is a rolling log: Prune keeps the newest rows only. Schema changes
// bump the version in schema.go; users delete history.db to adopt them.
package history
