package budget

import (
	"testing"

	"framecache/internal/item"
)

func ledgerSum(t *Tracker) int64 {
	var total int64
	for _, id := range t.Items() {
		for _, frame := range t.Frames(id) {
			total += t.Bytes(id, frame)
		}
	}
	return total
}

func TestTrackerAddIsIdempotent(t *testing.T) {
	tr := NewTracker(100)
	if !tr.Add(1, 5, 10) {
		t.Fatal("expected first add to record the frame")
	}
	if tr.Add(1, 5, 10) {
		t.Fatal("expected duplicate add to be ignored")
	}
	if got := tr.Current(); got != 10 {
		t.Fatalf("current = %d, want 10", got)
	}
}

func TestTrackerReconciliation(t *testing.T) {
	tr := NewTracker(1000)
	for frame := 0; frame < 20; frame++ {
		tr.Add(1, frame, int64(frame+1))
		tr.Add(2, frame, 7)
	}
	tr.Remove(1, 3)
	tr.Remove(2, 19)
	tr.Remove(2, 100)
	if got, want := tr.Current(), ledgerSum(tr); got != want {
		t.Fatalf("current = %d, ledger sum = %d", got, want)
	}
	released := tr.DropItem(2)
	if released != 7*19 {
		t.Fatalf("released = %d, want %d", released, 7*19)
	}
	if got, want := tr.Current(), ledgerSum(tr); got != want {
		t.Fatalf("after drop current = %d, ledger sum = %d", got, want)
	}
	if tr.Cached(2, 0) {
		t.Fatal("dropped item still reported cached")
	}
}

func TestTrackerOverAndFits(t *testing.T) {
	tr := NewTracker(100)
	for frame := 0; frame < 12; frame++ {
		tr.Add(1, frame, 10)
	}
	if got := tr.Over(); got != 20 {
		t.Fatalf("over = %d, want 20", got)
	}
	if tr.Fits(1) {
		t.Fatal("expected no room when over budget")
	}
	tr.SetMax(200)
	if tr.Over() != 0 || !tr.Fits(80) || tr.Fits(81) {
		t.Fatalf("unexpected fit state: over=%d", tr.Over())
	}
	tr.SetMax(-5)
	if tr.Max() != 0 {
		t.Fatalf("negative budget not clamped: %d", tr.Max())
	}
}

func TestTrackerRanges(t *testing.T) {
	tr := NewTracker(100)
	for _, frame := range []int{9, 1, 2, 3, 7, 8} {
		tr.Add(4, frame, 1)
	}
	got := tr.Ranges(4)
	want := []item.Range{{Start: 1, End: 4}, {Start: 7, End: 10}}
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranges = %v, want %v", got, want)
		}
	}
	if tr.Len() != 6 {
		t.Fatalf("len = %d, want 6", tr.Len())
	}
}
