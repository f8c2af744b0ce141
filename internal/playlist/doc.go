// Package playlist provides the collaborators the frame cache plans from: an
// ordered, thread-safe playlist of items with a selection, and a simulated
// playback feed that advances a playhead at a fixed frame rate.
//
// Item removal is two-phase. Subscribers registered with OnAboutToDelete get
// a chance to stop using the item and return a channel that is closed once
// they have; only then is the item dropped from the list.
package playlist
