package controller

import (
	"framecache/internal/item"
	"framecache/internal/playlist"
)

// ItemStatus summarises the cache contents of one item.
type ItemStatus struct {
	ID           item.ID      `json:"id"`
	Name         string       `json:"name"`
	Frames       item.Range   `json:"frames"`
	InPlaylist   bool         `json:"in_playlist"`
	Deleting     bool         `json:"deleting,omitempty"`
	CachedFrames int          `json:"cached_frames"`
	CachedBytes  int64        `json:"cached_bytes"`
	Ranges       []item.Range `json:"ranges,omitempty"`
}

// WorkerStatus describes one pool slot.
type WorkerStatus struct {
	ID       int        `json:"id"`
	Busy     bool       `json:"busy"`
	Retiring bool       `json:"retiring,omitempty"`
	Item     item.ID    `json:"item,omitempty"`
	Frames   item.Range `json:"frames"`
}

// Counters accumulate over the lifetime of a scheduler.
type Counters struct {
	Replans         uint64 `json:"replans"`
	JobsDispatched  uint64 `json:"jobs_dispatched"`
	FramesCached    uint64 `json:"frames_cached"`
	FramesFailed    uint64 `json:"frames_failed"`
	FramesEvicted   uint64 `json:"frames_evicted"`
	BytesEvicted    int64  `json:"bytes_evicted"`
	RequestsDropped uint64 `json:"requests_dropped"`
}

// Status is a point-in-time snapshot of the caching subsystem.
type Status struct {
	State              string            `json:"state"`
	Enabled            bool              `json:"enabled"`
	CurrentBytes       int64             `json:"current_bytes"`
	MaxBytes           int64             `json:"max_bytes"`
	RateBytesPerSecond float64           `json:"rate_bytes_per_second"`
	QueuedJobs         int               `json:"queued_jobs"`
	QueuedFrames       int               `json:"queued_frames"`
	PendingEvictions   int               `json:"pending_evictions"`
	InteractiveActive  bool              `json:"interactive_active"`
	InteractivePending bool              `json:"interactive_pending"`
	Position           playlist.Position `json:"position"`
	Workers            []WorkerStatus    `json:"workers"`
	Items              []ItemStatus      `json:"items"`
	Counters           Counters          `json:"counters"`
}

// BusyWorkers counts slots that hold a job.
func (s Status) BusyWorkers() int {
	n := 0
	for _, w := range s.Workers {
		if w.Busy {
			n++
		}
	}
	return n
}

// FillRatio returns CurrentBytes/MaxBytes, or zero without a budget.
func (s Status) FillRatio() float64 {
	if s.MaxBytes <= 0 {
		return 0
	}
	return float64(s.CurrentBytes) / float64(s.MaxBytes)
}
