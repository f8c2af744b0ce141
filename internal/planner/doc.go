// Package planner decides which frames the cache should hold next and which
// cached frames it can give up.
//
// Plan is a pure function of the playlist, the playback position and the
// budget. It is recomputed from scratch on every call so arbitrary playlist
// mutation never leaves stale queue entries behind. Ordering is defined by
// Ranker, a comparator over (item, frame) pairs that can be tested without any
// goroutines.
package planner
