// Package daemon coordinates the long-running framecache process.
//
// It wires configuration, the startup playlist, the simulated playback feed,
// the cache controller and the rate history store into a single lifecycle
// with flock-based locking to prevent multiple instances. The IPC layer calls
// into the daemon for every client command; item references accept either a
// numeric id or an item name.
package daemon
