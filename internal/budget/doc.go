// Package budget accounts for the memory the frame cache is allowed to use and
// the memory it currently uses.
//
// The Tracker keeps a ledger of every frame the controller has seen cached so
// that the current usage is always the sum of known frame sizes. It is plain
// accounting: no locking, a single owner mutates it after a cache or evict
// operation has completed.
package budget
