// Package logging builds the slog loggers used by the framecache daemon and CLI.
//
// The daemon logs to stdout in the configured format (a readable console layout
// or JSON) and, when a log directory is configured, also appends JSON lines to
// framecache.log for `framecache logs`. Every record carries the daemon session
// id. Components tag their lines with helpers such as Event, ItemID and Worker
// so the console handler can render a "Worker 2 · Item #7" subject.
package logging
