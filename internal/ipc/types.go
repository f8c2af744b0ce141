package ipc

import (
	"framecache/internal/controller"
	"framecache/internal/daemon"
	"framecache/internal/history"
	"framecache/internal/item"
	"framecache/internal/playlist"
)

// StartRequest starts the cache runtime.
type StartRequest struct{}

// StartResponse indicates whether the runtime was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the cache runtime.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and cache status information.
type StatusResponse struct {
	Running     bool              `json:"running"`
	PID         int               `json:"pid"`
	SessionID   string            `json:"session_id"`
	LockPath    string            `json:"lock_path"`
	HistoryPath string            `json:"history_path,omitempty"`
	Selected    item.ID           `json:"selected"`
	Position    playlist.Position `json:"position"`
	Cache       controller.Status `json:"cache"`
}

// SeekRequest moves the playhead. Item is an id or a name.
type SeekRequest struct {
	Item  string `json:"item"`
	Frame int    `json:"frame"`
}

// StepRequest moves the playhead by Delta frames.
type StepRequest struct {
	Delta int `json:"delta"`
}

// SelectRequest makes Item current.
type SelectRequest struct {
	Item string `json:"item"`
}

// PlayRequest starts the playback feed.
type PlayRequest struct {
	Reverse bool `json:"reverse"`
}

// PauseRequest stops the playback feed.
type PauseRequest struct{}

// PositionResponse carries the playhead after a playback command.
type PositionResponse struct {
	Position playlist.Position `json:"position"`
}

// RemoveRequest deletes Item from the playlist.
type RemoveRequest struct {
	Item string `json:"item"`
}

// RemoveResponse reports the removed item id.
type RemoveResponse struct {
	Removed item.ID `json:"removed"`
}

// LoadRequest asks for an interactive decode of one frame.
type LoadRequest struct {
	Item  string `json:"item"`
	Frame int    `json:"frame"`
}

// LoadResponse acknowledges a queued interactive load.
type LoadResponse struct {
	Queued bool `json:"queued"`
}

// SettingsRequest applies a partial settings update. An empty update only
// reads the current settings.
type SettingsRequest struct {
	Update daemon.SettingsUpdate `json:"update"`
}

// SettingsResponse carries the effective settings.
type SettingsResponse struct {
	Settings controller.Settings `json:"settings"`
}

// PlanRequest asks for a plan preview.
type PlanRequest struct{}

// PlanResponse carries the plan the controller would dispatch now.
type PlanResponse struct {
	Preview controller.Preview `json:"preview"`
}

// HistoryRequest fetches recent rate samples.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries rate samples newest first plus an aggregate.
type HistoryResponse struct {
	Samples []history.Sample `json:"samples"`
	Summary history.Summary  `json:"summary"`
}

// LogTailRequest reads the daemon log. A negative Offset starts from the last
// Limit lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match,omitempty"`
}

// LogTailResponse carries log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
