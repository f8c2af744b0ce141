package playlist

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"framecache/internal/item"
)

// Player is a simulated playback feed over a Playlist.
type Player struct {
	list     *Playlist
	interval time.Duration

	mu        sync.Mutex
	pos       Position
	listeners []func(Position)
}

// NewPlayer returns a stopped player. interval is the duration of one frame.
func NewPlayer(list *Playlist, interval time.Duration) *Player {
	if interval <= 0 {
		interval = time.Second / 24
	}
	return &Player{list: list, interval: interval}
}

// OnPosition registers fn to run after every position change.
func (p *Player) OnPosition(fn func(Position)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Position returns the current playhead. The zero Item means nothing is loaded.
func (p *Player) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Seek moves the playhead to frame of id, clamped to the item's range.
func (p *Player) Seek(id item.ID, frame int) (Position, error) {
	h, ok := p.list.Find(id)
	if !ok {
		return Position{}, fmt.Errorf("seek %d: %w", id, ErrUnknownItem)
	}
	frames, ok := frameRange(h)
	if !ok {
		return Position{}, fmt.Errorf("seek %d: %w", id, item.ErrReleased)
	}
	return p.update(func(pos *Position) {
		pos.Item = id
		pos.Frame = clampFrame(frame, frames)
	}), nil
}

// Step moves the playhead by delta frames within the current item.
func (p *Player) Step(delta int) (Position, error) {
	cur := p.Position()
	if cur.Item == 0 {
		h, ok := p.list.Selected()
		if !ok {
			return Position{}, ErrUnknownItem
		}
		frames, _ := frameRange(h)
		return p.Seek(h.ID(), frames.Start+delta)
	}
	return p.Seek(cur.Item, cur.Frame+delta)
}

// Play starts playback in the given direction.
func (p *Player) Play(reverse bool) Position {
	return p.update(func(pos *Position) {
		if pos.Item == 0 {
			if h, ok := p.list.Selected(); ok {
				frames, _ := frameRange(h)
				pos.Item = h.ID()
				pos.Frame = frames.Start
				if reverse && !frames.Empty() {
					pos.Frame = frames.End - 1
				}
			}
		}
		pos.Playing = pos.Item != 0
		pos.Reverse = reverse
	})
}

// Pause stops playback at the current frame.
func (p *Player) Pause() Position {
	return p.update(func(pos *Position) { pos.Playing = false })
}

// Run advances the playhead once per frame interval while playing.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.advance()
		}
	}
}

// advance moves one frame in the playback direction. At the end of an item
// forward playback continues into the next item; otherwise it stops.
func (p *Player) advance() {
	cur := p.Position()
	if !cur.Playing {
		return
	}
	h, ok := p.list.Find(cur.Item)
	if !ok {
		p.update(func(pos *Position) { *pos = Position{} })
		return
	}
	frames, _ := frameRange(h)
	next := cur.Frame + cur.Direction()
	if frames.Contains(next) {
		p.update(func(pos *Position) { pos.Frame = next })
		return
	}
	if !cur.Reverse {
		if nh, ok := p.list.Next(cur.Item); ok {
			nframes, _ := frameRange(nh)
			p.update(func(pos *Position) {
				pos.Item = nh.ID()
				pos.Frame = nframes.Start
			})
			return
		}
	}
	p.Pause()
}

func (p *Player) update(fn func(*Position)) Position {
	p.mu.Lock()
	before := p.pos
	fn(&p.pos)
	after := p.pos
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()
	if after != before {
		for _, l := range listeners {
			l(after)
		}
	}
	return after
}

func frameRange(h item.Handle) (item.Range, bool) {
	dec, ok := h.Get()
	if !ok {
		return item.Range{}, false
	}
	return dec.Frames(), true
}

func clampFrame(frame int, r item.Range) int {
	if r.Empty() {
		return r.Start
	}
	return min(max(frame, r.Start), r.End-1)
}
