package planner

import (
	"cmp"

	"framecache/internal/item"
	"framecache/internal/playlist"
)

// Tier groups frames by how likely they are to be viewed soon. Lower tiers are
// cached first and evicted last.
type Tier int

const (
	// TierNear covers frames of the active item within the near radius.
	TierNear Tier = iota
	// TierAhead covers the rest of the active item in playback direction.
	TierAhead
	// TierBehind covers the rest of the active item against playback direction.
	TierBehind
	// TierPlaylist covers frames of other playlist items in playlist order.
	TierPlaylist
	// TierOrphan covers frames of items that are no longer in the playlist.
	TierOrphan
)

func (t Tier) String() string {
	switch t {
	case TierNear:
		return "near"
	case TierAhead:
		return "ahead"
	case TierBehind:
		return "behind"
	case TierPlaylist:
		return "playlist"
	case TierOrphan:
		return "orphan"
	default:
		return "unknown"
	}
}

// Rank orders (item, frame) pairs. Smaller ranks are more valuable.
type Rank struct {
	Tier  Tier
	Major int
	Minor int
}

// Compare returns -1, 0 or +1 like cmp.Compare.
func (r Rank) Compare(o Rank) int {
	if c := cmp.Compare(r.Tier, o.Tier); c != 0 {
		return c
	}
	if c := cmp.Compare(r.Major, o.Major); c != 0 {
		return c
	}
	return cmp.Compare(r.Minor, o.Minor)
}

// Ranker ranks frames relative to one playback position and playlist order.
type Ranker struct {
	hasActive bool
	active    item.ID
	bounds    item.Range
	pos       int
	dir       int
	radius    int
	order     map[item.ID]int
	starts    map[item.ID]int
}

// NewRanker prepares a ranker. When the position does not fall inside the
// range of a playlist item only playlist order applies.
func NewRanker(items []Entry, pos playlist.Position, radius int) *Ranker {
	r := &Ranker{
		dir:    pos.Direction(),
		pos:    pos.Frame,
		radius: max(radius, 0),
		order:  make(map[item.ID]int, len(items)),
		starts: make(map[item.ID]int, len(items)),
	}
	for idx, entry := range items {
		id := entry.Item.ID()
		if _, dup := r.order[id]; dup {
			continue
		}
		r.order[id] = idx
		r.starts[id] = entry.Frames.Start
		if id == pos.Item && entry.Frames.Contains(pos.Frame) {
			r.hasActive = true
			r.active = id
			r.bounds = entry.Frames
		}
	}
	return r
}

// Rank computes the rank of one frame.
func (r *Ranker) Rank(id item.ID, frame int) Rank {
	idx, listed := r.order[id]
	if !listed {
		return Rank{Tier: TierOrphan, Minor: frame}
	}
	if !r.hasActive || id != r.active {
		return Rank{Tier: TierPlaylist, Major: idx, Minor: frame - r.starts[id]}
	}
	offset := (frame - r.pos) * r.dir
	dist := offset
	if dist < 0 {
		dist = -dist
	}
	if dist <= r.radius {
		// At equal distance the frame behind the playhead wins.
		minor := 1
		if offset <= 0 {
			minor = 0
		}
		return Rank{Tier: TierNear, Major: dist, Minor: minor}
	}
	if offset > 0 {
		return Rank{Tier: TierAhead, Major: dist}
	}
	return Rank{Tier: TierBehind, Major: dist}
}

// Walk visits playlist frames in ascending rank order until visit returns false.
func (r *Ranker) Walk(items []Entry, visit func(entry Entry, frame int) bool) {
	seen := make(map[item.ID]struct{}, len(items))
	var active Entry
	for _, entry := range items {
		if r.hasActive && entry.Item.ID() == r.active {
			active = entry
			break
		}
	}

	if r.hasActive {
		seen[r.active] = struct{}{}
		if !visit(active, r.pos) {
			return
		}
		for d := 1; d <= r.radius; d++ {
			behind := r.pos - d*r.dir
			ahead := r.pos + d*r.dir
			if !r.bounds.Contains(behind) && !r.bounds.Contains(ahead) {
				break
			}
			if r.bounds.Contains(behind) && !visit(active, behind) {
				return
			}
			if r.bounds.Contains(ahead) && !visit(active, ahead) {
				return
			}
		}
		for f := r.pos + (r.radius+1)*r.dir; r.bounds.Contains(f); f += r.dir {
			if !visit(active, f) {
				return
			}
		}
		for f := r.pos - (r.radius+1)*r.dir; r.bounds.Contains(f); f -= r.dir {
			if !visit(active, f) {
				return
			}
		}
	}

	for _, entry := range items {
		id := entry.Item.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for f := entry.Frames.Start; f < entry.Frames.End; f++ {
			if !visit(entry, f) {
				return
			}
		}
	}
}
