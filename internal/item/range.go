package item

import "fmt"

// Range is a half-open interval [Start, End) of frame indices.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewRange builds a range, collapsing inverted bounds to an empty range at start.
func NewRange(start, end int) Range {
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// Len reports the number of frames covered.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range covers no frames.
func (r Range) Empty() bool { return r.Len() == 0 }

// Contains reports whether index lies inside the range.
func (r Range) Contains(index int) bool {
	return index >= r.Start && index < r.End
}

// Clamp limits r to the bounds of outer.
func (r Range) Clamp(outer Range) Range {
	start := max(r.Start, outer.Start)
	end := min(r.End, outer.End)
	return NewRange(start, end)
}

// Prefix reports whether p is a prefix of r (same start, not longer).
func (r Range) Prefix(p Range) bool {
	if p.Empty() {
		return true
	}
	return p.Start == r.Start && p.End <= r.End
}

func (r Range) String() string {
	if r.Empty() {
		return "[]"
	}
	if r.Len() == 1 {
		return fmt.Sprintf("[%d]", r.Start)
	}
	return fmt.Sprintf("[%d-%d]", r.Start, r.End-1)
}

// Runs collapses sorted, de-duplicated frame indices into contiguous ranges.
func Runs(frames []int) []Range {
	if len(frames) == 0 {
		return nil
	}
	out := make([]Range, 0, 4)
	cur := Range{Start: frames[0], End: frames[0] + 1}
	for _, f := range frames[1:] {
		if f == cur.End {
			cur.End++
			continue
		}
		out = append(out, cur)
		cur = Range{Start: f, End: f + 1}
	}
	return append(out, cur)
}
