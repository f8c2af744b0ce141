package playlist

import "framecache/internal/item"

// Position is the playback feed's view of what is on screen.
type Position struct {
	Item    item.ID `json:"item"`
	Frame   int     `json:"frame"`
	Playing bool    `json:"playing"`
	Reverse bool    `json:"reverse"`
}

// Direction returns +1 for forward playback and -1 for reverse.
func (p Position) Direction() int {
	if p.Reverse {
		return -1
	}
	return 1
}
