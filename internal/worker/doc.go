// Package worker runs frame decodes off the controller goroutine.
//
// A Slot executes one job (one item, one contiguous frame range) at a time and
// reports back over a channel. Interruption is cooperative: the flag is checked
// between frames, never during one, so every report covers a prefix of the
// assigned range. The Loader is the single interactive goroutine that decodes
// the frame the user is looking at; while it runs, slots pause at their next
// frame boundary through the shared Gate.
//
// Neither type touches cache accounting. Results flow back to the controller,
// which is the only owner of queues and budget state.
package worker
