// Package synthetic provides decoders that fabricate frame data instead of
// reading media. The daemon uses them to demonstrate the cache without any
// codec, and tests use them to control timing and failures precisely.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"framecache/internal/item"
)

var (
	// ErrDecode is returned for frames the failure pattern marks as broken.
	ErrDecode = errors.New("synthetic decode failure")
	// ErrFrameOutOfRange is returned for indices outside the item.
	ErrFrameOutOfRange = errors.New("frame out of range")
)

// Options configures a synthetic item.
type Options struct {
	Name        string
	Frames      int
	FrameBytes  int64
	DecodeDelay time.Duration
	// FailEvery makes every n-th frame (index % n == n-1) fail to decode.
	FailEvery int
	// BeforeDecode runs inside LoadFrame before any work; tests use it to
	// hold a decode in flight.
	BeforeDecode func(frame int)
}

// Item is an in-memory item.Decoder.
type Item struct {
	opts Options

	mu      sync.Mutex
	frames  map[int][]byte
	decodes map[int]int
}

var _ item.Decoder = (*Item)(nil)

// New builds a synthetic item.
func New(opts Options) *Item {
	if opts.FrameBytes <= 0 {
		opts.FrameBytes = 1
	}
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("synthetic-%d", opts.Frames)
	}
	return &Item{
		opts:    opts,
		frames:  make(map[int][]byte),
		decodes: make(map[int]int),
	}
}

func (s *Item) Name() string { return s.opts.Name }

func (s *Item) Frames() item.Range { return item.NewRange(0, s.opts.Frames) }

func (s *Item) EstimateFrameBytes(int) int64 { return s.opts.FrameBytes }

func (s *Item) LoadFrame(ctx context.Context, index int) error {
	if !s.Frames().Contains(index) {
		return fmt.Errorf("%w: %d", ErrFrameOutOfRange, index)
	}
	if s.opts.BeforeDecode != nil {
		s.opts.BeforeDecode(index)
	}
	if s.opts.DecodeDelay > 0 {
		timer := time.NewTimer(s.opts.DecodeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodes[index]++
	if s.opts.FailEvery > 0 && index%s.opts.FailEvery == s.opts.FailEvery-1 {
		return fmt.Errorf("%w: frame %d", ErrDecode, index)
	}
	buf := make([]byte, s.opts.FrameBytes)
	for i := range buf {
		buf[i] = byte(index + i)
	}
	s.frames[index] = buf
	return nil
}

func (s *Item) IsFrameCached(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.frames[index]
	return ok
}

func (s *Item) EvictFrame(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, index)
}

// CachedFrames lists decoded frames in ascending order.
func (s *Item) CachedFrames() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.frames))
	for idx := range s.frames {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// CachedBytes returns the size of all decoded frames.
func (s *Item) CachedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, buf := range s.frames {
		total += int64(len(buf))
	}
	return total
}

// Decodes returns how often a frame has been decoded.
func (s *Item) Decodes(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodes[index]
}
