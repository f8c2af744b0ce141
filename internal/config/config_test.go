package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"framecache/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "framecache")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if got, want := cfg.SocketPath(), filepath.Join(wantState, "framecache.sock"); got != want {
		t.Fatalf("unexpected socket path: got %q want %q", got, want)
	}
	if cfg.Cache.MaxBytes() != 512<<20 {
		t.Fatalf("unexpected default budget: %d", cfg.Cache.MaxBytes())
	}
	if cfg.Cache.RateInterval() != time.Second {
		t.Fatalf("unexpected rate interval: %s", cfg.Cache.RateInterval())
	}
	if !cfg.Cache.Enabled || !cfg.Cache.InteractivePriority {
		t.Fatal("expected caching and interactive priority enabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "framecache.toml")

	type payload struct {
		Cache struct {
			MaxMiB  int64 `toml:"max_mib"`
			Workers int   `toml:"workers"`
		} `toml:"cache"`
		Playlist struct {
			Items []struct {
				Name   string `toml:"name"`
				Frames int    `toml:"frames"`
			} `toml:"items"`
		} `toml:"playlist"`
	}
	var custom payload
	custom.Cache.MaxMiB = 64
	custom.Cache.Workers = 6
	custom.Playlist.Items = append(custom.Playlist.Items, struct {
		Name   string `toml:"name"`
		Frames int    `toml:"frames"`
	}{Name: "clip", Frames: 90})
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Cache.MaxMiB != 64 || cfg.Cache.Workers != 6 {
		t.Fatalf("unexpected cache section: %+v", cfg.Cache)
	}
	if len(cfg.Playlist.Items) != 1 {
		t.Fatalf("expected one playlist item, got %d", len(cfg.Playlist.Items))
	}
	item := cfg.Playlist.Items[0]
	if item.Name != "clip" || item.Frames != 90 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.FrameBytes() != 512<<10 {
		t.Fatalf("expected default frame size, got %d", item.FrameBytes())
	}
}

func TestEnvVarOverridesCacheBudget(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "framecache.toml")
	if err := os.WriteFile(configPath, []byte("[cache]\nmax_mib = 64\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvCacheMiB, "2048")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cache.MaxMiB != 2048 {
		t.Fatalf("expected budget from env, got %d", cfg.Cache.MaxMiB)
	}
}

func TestEnvVarRejectsGarbage(t *testing.T) {
	t.Setenv(config.EnvCacheMiB, "lots")
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for non-numeric budget override")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "framecache.toml")
	if err := os.WriteFile(configPath, []byte("[cache]\nmax_gib = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "negative budget",
			mutate:  func(c *config.Config) { c.Cache.MaxMiB = -1 },
			wantErr: "cache.max_mib",
		},
		{
			name:    "too many workers",
			mutate:  func(c *config.Config) { c.Cache.Workers = 65 },
			wantErr: "cache.workers",
		},
		{
			name: "duplicate item names",
			mutate: func(c *config.Config) {
				c.Playlist.Items = []config.PlaylistItem{{Name: "a", Frames: 1}, {Name: "a", Frames: 1}}
			},
			wantErr: "not unique",
		},
		{
			name:    "zero fps",
			mutate:  func(c *config.Config) { c.Playback.FPS = 0 },
			wantErr: "playback.fps",
		},
		{
			name:    "bad level",
			mutate:  func(c *config.Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got error %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Playlist.Items) != 3 {
		t.Fatalf("expected three sample items, got %d", len(cfg.Playlist.Items))
	}
	if cfg.Playlist.Items[2].FailEvery != 97 {
		t.Fatalf("unexpected fail_every: %d", cfg.Playlist.Items[2].FailEvery)
	}
}

func TestEncodeRoundTripsCacheSection(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Workers = 5
	data, err := config.Encode(&cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "workers = 5") {
		t.Fatalf("expected workers in encoded config:\n%s", data)
	}
}
