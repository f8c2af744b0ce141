package testsupport

import (
	"path/filepath"
	"testing"

	"framecache/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.MaxMiB = 16
	cfgVal.Cache.RateIntervalMS = 20
	cfgVal.Playback.FPS = 100

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithCache overrides the budget and worker count.
func WithCache(maxMiB int64, workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.MaxMiB = maxMiB
		b.cfg.Cache.Workers = workers
	}
}

// WithItems sets the startup playlist.
func WithItems(items ...config.PlaylistItem) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playlist.Items = items
	}
}

// WithoutHistory disables the rate history store.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
