package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"framecache/internal/item"
)

// Job is a contiguous frame range of one item assigned to a slot.
type Job struct {
	Seq    uint64
	Item   item.Handle
	Frames item.Range
}

// FrameResult describes one frame that is cached once a job or request finished.
type FrameResult struct {
	Index int
	Bytes int64
	// Loaded is false when the item already held the frame.
	Loaded bool
}

// Report is a slot's completion or interruption acknowledgement.
type Report struct {
	Slot int
	Job  Job
	// Completed is the processed prefix of Job.Frames.
	Completed   item.Range
	Cached      []FrameResult
	Failed      []int
	BytesLoaded int64
	Interrupted bool
	// Stale is set when the item was released while the job ran.
	Stale bool
}

// Request is an interactive load of a single frame.
type Request struct {
	Seq   uint64
	Item  item.Handle
	Frame int
}

// Result is the outcome of an interactive Request.
type Result struct {
	Request Request
	Frame   FrameResult
	Err     error
	Stale   bool
}

// Meter accumulates decoded bytes for the caching-rate metric.
type Meter struct {
	bytes atomic.Int64
}

// Add records decoded bytes. A nil Meter discards them.
func (m *Meter) Add(n int64) {
	if m == nil {
		return
	}
	m.bytes.Add(n)
}

// Take returns the bytes recorded since the previous call and resets the counter.
func (m *Meter) Take() int64 {
	if m == nil {
		return 0
	}
	return m.bytes.Swap(0)
}

// Gate lets the interactive loader hold pool slots at their next frame
// boundary. A nil Gate never blocks.
type Gate struct {
	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	idle := make(chan struct{})
	close(idle)
	return &Gate{idle: idle}
}

// Enter closes the gate until the matching Leave.
func (g *Gate) Enter() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == 0 {
		g.idle = make(chan struct{})
	}
	g.active++
}

// Leave reopens the gate once every Enter has been matched.
func (g *Gate) Leave() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == 0 {
		return
	}
	g.active--
	if g.active == 0 {
		close(g.idle)
	}
}

// Wait blocks while the gate is closed or until ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func loadFrame(ctx context.Context, h item.Handle, frame int) (FrameResult, error) {
	res := FrameResult{Index: frame}
	err := h.Use(func(dec item.Decoder) error {
		res.Bytes = dec.EstimateFrameBytes(frame)
		if dec.IsFrameCached(frame) {
			return nil
		}
		if err := dec.LoadFrame(ctx, frame); err != nil {
			return err
		}
		res.Loaded = true
		return nil
	})
	return res, err
}
