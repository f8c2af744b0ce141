package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Cache contains the frame cache budget and worker pool settings.
type Cache struct {
	Enabled             bool  `toml:"enabled"`
	MaxMiB              int64 `toml:"max_mib"`
	Workers             int   `toml:"workers"`
	NearRadius          int   `toml:"near_radius"`
	MaxJobFrames        int   `toml:"max_job_frames"`
	ReplanThreshold     int   `toml:"replan_threshold"`
	RateIntervalMS      int   `toml:"rate_interval_ms"`
	InteractivePriority bool  `toml:"interactive_priority"`
}

// MaxBytes returns the budget in bytes.
func (c Cache) MaxBytes() int64 {
	return c.MaxMiB << 20
}

// RateInterval returns the caching-rate sampling period.
func (c Cache) RateInterval() time.Duration {
	return time.Duration(c.RateIntervalMS) * time.Millisecond
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// PlaylistItem describes one synthetic item loaded into the playlist at startup.
type PlaylistItem struct {
	Name      string `toml:"name"`
	Frames    int    `toml:"frames"`
	FrameKiB  int    `toml:"frame_kib"`
	DecodeMS  int    `toml:"decode_ms"`
	FailEvery int    `toml:"fail_every"`
}

// FrameBytes returns the decoded size of one frame.
func (p PlaylistItem) FrameBytes() int64 {
	return int64(p.FrameKiB) << 10
}

// DecodeDelay returns the simulated decode latency per frame.
func (p PlaylistItem) DecodeDelay() time.Duration {
	return time.Duration(p.DecodeMS) * time.Millisecond
}

// Playlist contains the startup playlist.
type Playlist struct {
	Items []PlaylistItem `toml:"items"`
}

// Playback contains the simulated playback feed settings.
type Playback struct {
	FPS      float64 `toml:"fps"`
	Autoplay bool    `toml:"autoplay"`
	Reverse  bool    `toml:"reverse"`
}

// FrameInterval returns the duration of one frame at FPS.
func (p Playback) FrameInterval() time.Duration {
	if p.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.FPS)
}

// History contains the caching-rate history store settings.
type History struct {
	Enabled     bool `toml:"enabled"`
	KeepSamples int  `toml:"keep_samples"`
}

// Config encapsulates all configuration values for framecache.
//
// Configuration sections by subsystem:
//   - Paths: state directory (socket, lock, history database) and log directory
//   - Cache: budget, worker pool and planner tuning
//   - Logging: log format, level, and retention
//   - Playlist: synthetic items loaded at startup
//   - Playback: simulated playback feed
//   - History: caching-rate history retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Cache    Cache    `toml:"cache"`
	Logging  Logging  `toml:"logging"`
	Playlist Playlist `toml:"playlist"`
	Playback Playback `toml:"playback"`
	History  History  `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framecache.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the daemon control socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "framecache.sock")
}

// LockPath returns the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "framecache.lock")
}

// PIDPath returns the file holding the daemon process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "framecache.pid")
}

// LogPath returns the daemon's JSON log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "framecache.log")
}

// HistoryPath returns the caching-rate history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
