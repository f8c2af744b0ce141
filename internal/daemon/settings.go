package daemon

import "framecache/internal/controller"

// SettingsUpdate is a partial settings change. Nil fields keep their value.
type SettingsUpdate struct {
	MaxBytes        *int64 `json:"max_bytes,omitempty"`
	Workers         *int   `json:"workers,omitempty"`
	Enabled         *bool  `json:"enabled,omitempty"`
	NearRadius      *int   `json:"near_radius,omitempty"`
	MaxJobFrames    *int   `json:"max_job_frames,omitempty"`
	ReplanThreshold *int   `json:"replan_threshold,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u SettingsUpdate) Empty() bool {
	return u.MaxBytes == nil && u.Workers == nil && u.Enabled == nil &&
		u.NearRadius == nil && u.MaxJobFrames == nil && u.ReplanThreshold == nil
}

// Apply returns s with the non-nil fields of u applied.
func (u SettingsUpdate) Apply(s controller.Settings) controller.Settings {
	if u.MaxBytes != nil {
		s.MaxBytes = *u.MaxBytes
	}
	if u.Workers != nil {
		s.Workers = *u.Workers
	}
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.NearRadius != nil {
		s.NearRadius = *u.NearRadius
	}
	if u.MaxJobFrames != nil {
		s.MaxJobFrames = *u.MaxJobFrames
	}
	if u.ReplanThreshold != nil {
		s.ReplanThreshold = *u.ReplanThreshold
	}
	return s
}
