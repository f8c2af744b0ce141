package budget

import (
	"sort"

	"framecache/internal/item"
)

// Tracker records the configured maximum, the current usage and which frames
// contribute to it.
type Tracker struct {
	maxBytes     int64
	currentBytes int64
	frames       map[item.ID]map[int]int64
}

// NewTracker builds a tracker with the given budget.
func NewTracker(maxBytes int64) *Tracker {
	return &Tracker{
		maxBytes: max(maxBytes, 0),
		frames:   make(map[item.ID]map[int]int64),
	}
}

// SetMax changes the budget. Usage is untouched; callers run an eviction pass
// when Over becomes positive.
func (t *Tracker) SetMax(maxBytes int64) {
	t.maxBytes = max(maxBytes, 0)
}

// Max returns the configured budget in bytes.
func (t *Tracker) Max() int64 { return t.maxBytes }

// Current returns the bytes of all cached frames in the ledger.
func (t *Tracker) Current() int64 { return t.currentBytes }

// Over returns how many bytes usage exceeds the budget by, or zero.
func (t *Tracker) Over() int64 {
	if t.currentBytes <= t.maxBytes {
		return 0
	}
	return t.currentBytes - t.maxBytes
}

// Fits reports whether extra bytes can be added without exceeding the budget.
func (t *Tracker) Fits(extra int64) bool {
	return t.currentBytes+extra <= t.maxBytes
}

// Add records a cached frame. Adding a frame that is already recorded is a
// no-op and returns false.
func (t *Tracker) Add(id item.ID, frame int, bytes int64) bool {
	bytes = max(bytes, 0)
	perItem := t.frames[id]
	if perItem == nil {
		perItem = make(map[int]int64)
		t.frames[id] = perItem
	}
	if _, ok := perItem[frame]; ok {
		return false
	}
	perItem[frame] = bytes
	t.currentBytes += bytes
	return true
}

// Remove forgets a cached frame and returns the bytes it accounted for.
func (t *Tracker) Remove(id item.ID, frame int) (int64, bool) {
	perItem := t.frames[id]
	bytes, ok := perItem[frame]
	if !ok {
		return 0, false
	}
	delete(perItem, frame)
	if len(perItem) == 0 {
		delete(t.frames, id)
	}
	t.currentBytes -= bytes
	return bytes, true
}

// DropItem forgets every frame of an item and returns the bytes released.
func (t *Tracker) DropItem(id item.ID) int64 {
	var released int64
	for _, bytes := range t.frames[id] {
		released += bytes
	}
	delete(t.frames, id)
	t.currentBytes -= released
	return released
}

// Cached reports whether the ledger holds the frame.
func (t *Tracker) Cached(id item.ID, frame int) bool {
	_, ok := t.frames[id][frame]
	return ok
}

// Bytes returns the recorded size of a cached frame.
func (t *Tracker) Bytes(id item.ID, frame int) int64 {
	return t.frames[id][frame]
}

// Frames returns the cached frame indices of an item in ascending order.
func (t *Tracker) Frames(id item.ID) []int {
	perItem := t.frames[id]
	out := make([]int, 0, len(perItem))
	for frame := range perItem {
		out = append(out, frame)
	}
	sort.Ints(out)
	return out
}

// ItemBytes returns the bytes cached for one item.
func (t *Tracker) ItemBytes(id item.ID) int64 {
	var total int64
	for _, bytes := range t.frames[id] {
		total += bytes
	}
	return total
}

// Items returns the identifiers of items with at least one cached frame, ascending.
func (t *Tracker) Items() []item.ID {
	out := make([]item.ID, 0, len(t.frames))
	for id := range t.frames {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ranges summarizes an item's cached frames as contiguous runs.
func (t *Tracker) Ranges(id item.ID) []item.Range {
	return item.Runs(t.Frames(id))
}

// Len returns the number of cached frames across all items.
func (t *Tracker) Len() int {
	n := 0
	for _, perItem := range t.frames {
		n += len(perItem)
	}
	return n
}
