package playlist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"framecache/internal/item"
)

// ErrUnknownItem is returned for item ids that are not in the playlist.
var ErrUnknownItem = errors.New("item not in playlist")

// View is the read side of a playlist.
type View interface {
	Items() []item.Handle
	Selected() (item.Handle, bool)
}

// Playback reports the current playhead.
type Playback interface {
	Position() Position
}

// DeleteHook stops all use of an item and returns a channel closed once the
// item may be freed.
type DeleteHook func(item.Handle) <-chan struct{}

// Playlist is an ordered list of items with an optional selection.
type Playlist struct {
	mu       sync.RWMutex
	items    []item.Handle
	selected item.ID
	onChange []func()
	onDelete []DeleteHook
}

// New returns an empty playlist.
func New() *Playlist {
	return &Playlist{}
}

// OnChange registers fn to run after items or the selection changed.
func (p *Playlist) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// OnAboutToDelete registers a hook that runs before an item is removed.
func (p *Playlist) OnAboutToDelete(fn DeleteHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDelete = append(p.onDelete, fn)
}

// Add appends h. The first item added becomes the selection.
func (p *Playlist) Add(h item.Handle) {
	p.mu.Lock()
	p.items = append(p.items, h)
	if p.selected == 0 {
		p.selected = h.ID()
	}
	p.mu.Unlock()
	p.changed()
}

// Items returns the items in playlist order.
func (p *Playlist) Items() []item.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.items)
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Find returns the item with the given id.
func (p *Playlist) Find(id item.ID) (item.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.index(id)
	if i < 0 {
		return item.Handle{}, false
	}
	return p.items[i], true
}

// FindName returns the first item with the given name.
func (p *Playlist) FindName(name string) (item.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, h := range p.items {
		if h.Name() == name {
			return h, true
		}
	}
	return item.Handle{}, false
}

// Next returns the item after id, if any.
func (p *Playlist) Next(id item.ID) (item.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.index(id)
	if i < 0 || i+1 >= len(p.items) {
		return item.Handle{}, false
	}
	return p.items[i+1], true
}

// Selected returns the selected item.
func (p *Playlist) Selected() (item.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.index(p.selected)
	if i < 0 {
		return item.Handle{}, false
	}
	return p.items[i], true
}

// Select makes id the selected item.
func (p *Playlist) Select(id item.ID) error {
	p.mu.Lock()
	if p.index(id) < 0 {
		p.mu.Unlock()
		return fmt.Errorf("select %d: %w", id, ErrUnknownItem)
	}
	changed := p.selected != id
	p.selected = id
	p.mu.Unlock()
	if changed {
		p.changed()
	}
	return nil
}

// Remove runs the delete hooks for id, waits until every hook released the
// item, then drops it from the list. Without hooks the handle is released
// directly. A removed selection moves to the following item.
func (p *Playlist) Remove(ctx context.Context, id item.ID) error {
	p.mu.RLock()
	i := p.index(id)
	if i < 0 {
		p.mu.RUnlock()
		return fmt.Errorf("remove %d: %w", id, ErrUnknownItem)
	}
	h := p.items[i]
	hooks := slices.Clone(p.onDelete)
	p.mu.RUnlock()

	if len(hooks) == 0 {
		h.Release()
	}
	for _, hook := range hooks {
		select {
		case <-hook(h):
		case <-ctx.Done():
			return fmt.Errorf("remove %d: %w", id, ctx.Err())
		}
	}

	p.mu.Lock()
	if i = p.index(id); i >= 0 {
		p.items = slices.Delete(p.items, i, i+1)
	}
	if p.selected == id {
		p.selected = 0
		switch {
		case i >= 0 && i < len(p.items):
			p.selected = p.items[i].ID()
		case len(p.items) > 0:
			p.selected = p.items[len(p.items)-1].ID()
		}
	}
	p.mu.Unlock()
	p.changed()
	return nil
}

func (p *Playlist) index(id item.ID) int {
	if id == 0 {
		return -1
	}
	return slices.IndexFunc(p.items, func(h item.Handle) bool { return h.ID() == id })
}

func (p *Playlist) changed() {
	p.mu.RLock()
	hooks := slices.Clone(p.onChange)
	p.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
