// Package logs reads the daemon log file for `framecache logs`.
//
// Tail returns either the last N lines or everything written after a byte
// offset, optionally waiting for new output. Offsets only ever advance past
// complete lines, so a follower never prints half of a record that the daemon
// is still writing.
package logs
