package controller

import (
	"framecache/internal/item"
	"framecache/internal/playlist"
)

type feed struct {
	view     playlist.View
	playback playlist.Playback
}

// NewSource combines a playlist view and a playback feed. When playback has
// no item, the selected item at its first frame stands in for the position.
func NewSource(view playlist.View, playback playlist.Playback) Source {
	return feed{view: view, playback: playback}
}

func (f feed) Items() []item.Handle {
	return f.view.Items()
}

func (f feed) Position() playlist.Position {
	var pos playlist.Position
	if f.playback != nil {
		pos = f.playback.Position()
	}
	if pos.Item != 0 {
		return pos
	}
	h, ok := f.view.Selected()
	if !ok {
		return pos
	}
	pos = playlist.Position{Item: h.ID()}
	if dec, ok := h.Get(); ok {
		pos.Frame = dec.Frames().Start
	}
	return pos
}
