package planner

import (
	"slices"

	"framecache/internal/item"
	"framecache/internal/playlist"
)

const (
	// DefaultNearRadius is the number of frames on each side of the playhead
	// that are cached nearest-first before the rest of the active item.
	DefaultNearRadius = 8
	// DefaultMaxJobFrames caps the length of a single job so that contiguous
	// runs spread across workers and interruption stays responsive.
	DefaultMaxJobFrames = 32
)

// Entry describes one playlist item as the planner sees it.
type Entry struct {
	Item   item.Handle
	Frames item.Range
	// FrameBytes estimates the decoded size of a frame. Nil estimates one byte.
	FrameBytes func(frame int) int64
}

func (e Entry) estimate(frame int) int64 {
	if e.FrameBytes == nil {
		return 1
	}
	return max(e.FrameBytes(frame), 1)
}

// Frame is a cached (item, frame) pair with its accounted size.
type Frame struct {
	Item  item.ID
	Index int
	Bytes int64
}

// Job is a contiguous range of one item to be cached by a single worker.
type Job struct {
	Item   item.Handle
	Frames item.Range
	Bytes  int64
}

// Input gathers everything a plan depends on.
type Input struct {
	Items        []Entry
	Position     playlist.Position
	MaxBytes     int64
	CurrentBytes int64
	// Cached reports frames the cache already holds together with their size.
	Cached func(id item.ID, frame int) (int64, bool)
	// Ledger lists every cached frame, including frames of items that have
	// left the playlist.
	Ledger []Frame
	// Exclude marks frames that must not be queued, such as frames in flight.
	Exclude      func(id item.ID, frame int) bool
	NearRadius   int
	MaxJobFrames int
}

// Plan is the result of one planning pass.
type Plan struct {
	Jobs        []Job
	Evictions   []Frame
	KeepBytes   int64
	QueuedBytes int64
}

// Frames returns the number of frames across all queued jobs.
func (p Plan) Frames() int {
	n := 0
	for _, job := range p.Jobs {
		n += job.Frames.Len()
	}
	return n
}

type frameKey struct {
	id    item.ID
	frame int
}

// Compute derives the cache queue and eviction queue for the given input.
func Compute(in Input) Plan {
	var plan Plan
	if in.MaxJobFrames <= 0 {
		in.MaxJobFrames = DefaultMaxJobFrames
	}
	if in.NearRadius < 0 {
		in.NearRadius = 0
	}

	ranker := NewRanker(in.Items, in.Position, in.NearRadius)
	kept := make(map[frameKey]struct{})

	var open *Job
	flush := func() {
		if open != nil {
			plan.Jobs = append(plan.Jobs, *open)
			open = nil
		}
	}

	ranker.Walk(in.Items, func(entry Entry, frame int) bool {
		id := entry.Item.ID()
		cachedBytes, cached := lookup(in.Cached, id, frame)
		bytes := cachedBytes
		if !cached {
			bytes = entry.estimate(frame)
		}
		if plan.KeepBytes+bytes > in.MaxBytes {
			return false
		}
		plan.KeepBytes += bytes
		if cached {
			kept[frameKey{id, frame}] = struct{}{}
			flush()
			return true
		}
		if in.Exclude != nil && in.Exclude(id, frame) {
			flush()
			return true
		}
		plan.QueuedBytes += bytes
		if open != nil && open.Item.ID() == id && open.Frames.End == frame && open.Frames.Len() < in.MaxJobFrames {
			open.Frames.End++
			open.Bytes += bytes
			return true
		}
		flush()
		open = &Job{Item: entry.Item, Frames: item.NewRange(frame, frame+1), Bytes: bytes}
		return true
	})
	flush()

	if in.CurrentBytes+plan.QueuedBytes <= in.MaxBytes {
		return plan
	}
	for _, f := range in.Ledger {
		if _, ok := kept[frameKey{f.Item, f.Index}]; ok {
			continue
		}
		plan.Evictions = append(plan.Evictions, f)
	}
	slices.SortStableFunc(plan.Evictions, func(a, b Frame) int {
		return ranker.Rank(b.Item, b.Index).Compare(ranker.Rank(a.Item, a.Index))
	})
	return plan
}

func lookup(cached func(item.ID, int) (int64, bool), id item.ID, frame int) (int64, bool) {
	if cached == nil {
		return 0, false
	}
	return cached(id, frame)
}
