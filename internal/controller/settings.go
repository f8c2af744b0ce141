package controller

import (
	"time"

	"framecache/internal/config"
	"framecache/internal/planner"
)

const (
	// DefaultReplanThreshold is how far, in frames, the playhead may drift from
	// the last planned position within one item before a running pool replans.
	DefaultReplanThreshold = 4
	// DefaultRateInterval is the caching-rate sampling period.
	DefaultRateInterval = time.Second
)

// Settings are the runtime-adjustable caching parameters.
type Settings struct {
	MaxBytes        int64 `json:"max_bytes"`
	Workers         int   `json:"workers"`
	Enabled         bool  `json:"enabled"`
	NearRadius      int   `json:"near_radius"`
	MaxJobFrames    int   `json:"max_job_frames"`
	ReplanThreshold int   `json:"replan_threshold"`
}

// DefaultSettings returns a 512 MiB budget with two workers.
func DefaultSettings() Settings {
	return Settings{
		MaxBytes:        512 << 20,
		Workers:         2,
		Enabled:         true,
		NearRadius:      planner.DefaultNearRadius,
		MaxJobFrames:    planner.DefaultMaxJobFrames,
		ReplanThreshold: DefaultReplanThreshold,
	}
}

func (s Settings) normalized() Settings {
	if s.MaxBytes < 0 {
		s.MaxBytes = 0
	}
	if s.Workers < 0 {
		s.Workers = 0
	}
	if s.NearRadius <= 0 {
		s.NearRadius = planner.DefaultNearRadius
	}
	if s.MaxJobFrames <= 0 {
		s.MaxJobFrames = planner.DefaultMaxJobFrames
	}
	if s.ReplanThreshold <= 0 {
		s.ReplanThreshold = DefaultReplanThreshold
	}
	return s
}

// SettingsFromConfig converts the [cache] config section into runtime settings.
func SettingsFromConfig(c config.Cache) Settings {
	return Settings{
		MaxBytes:        c.MaxBytes(),
		Workers:         c.Workers,
		Enabled:         c.Enabled,
		NearRadius:      c.NearRadius,
		MaxJobFrames:    c.MaxJobFrames,
		ReplanThreshold: c.ReplanThreshold,
	}.normalized()
}
