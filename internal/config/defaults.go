package config

const (
	defaultConfigPath       = "~/.config/framecache/config.toml"
	defaultStateDir         = "~/.local/share/framecache"
	defaultLogDir           = "~/.local/share/framecache/logs"
	defaultLogRetentionDays = 14
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultCacheMiB         = 512
	defaultWorkers          = 2
	defaultNearRadius       = 8
	defaultMaxJobFrames     = 32
	defaultReplanThreshold  = 4
	defaultRateIntervalMS   = 1000
	defaultFPS              = 24
	defaultKeepSamples      = 10000
	defaultItemFrames       = 240
	defaultItemFrameKiB     = 512

	// EnvCacheMiB overrides cache.max_mib.
	EnvCacheMiB = "FRAMECACHE_CACHE_MIB"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Cache: Cache{
			Enabled:             true,
			MaxMiB:              defaultCacheMiB,
			Workers:             defaultWorkers,
			NearRadius:          defaultNearRadius,
			MaxJobFrames:        defaultMaxJobFrames,
			ReplanThreshold:     defaultReplanThreshold,
			RateIntervalMS:      defaultRateIntervalMS,
			InteractivePriority: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Playback: Playback{
			FPS: defaultFPS,
		},
		History: History{
			Enabled:     true,
			KeepSamples: defaultKeepSamples,
		},
	}
}
