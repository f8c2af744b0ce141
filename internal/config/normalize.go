package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizePlaylist()
	c.normalizeLogging()
	if c.History.KeepSamples <= 0 {
		c.History.KeepSamples = defaultKeepSamples
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	if value, ok := os.LookupEnv(EnvCacheMiB); ok && strings.TrimSpace(value) != "" {
		mib, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheMiB, err)
		}
		c.Cache.MaxMiB = mib
	}
	if c.Cache.NearRadius <= 0 {
		c.Cache.NearRadius = defaultNearRadius
	}
	if c.Cache.MaxJobFrames <= 0 {
		c.Cache.MaxJobFrames = defaultMaxJobFrames
	}
	if c.Cache.ReplanThreshold <= 0 {
		c.Cache.ReplanThreshold = defaultReplanThreshold
	}
	if c.Cache.RateIntervalMS <= 0 {
		c.Cache.RateIntervalMS = defaultRateIntervalMS
	}
	return nil
}

func (c *Config) normalizePlaylist() {
	for i := range c.Playlist.Items {
		it := &c.Playlist.Items[i]
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			it.Name = fmt.Sprintf("item-%d", i+1)
		}
		if it.Frames == 0 {
			it.Frames = defaultItemFrames
		}
		if it.FrameKiB == 0 {
			it.FrameKiB = defaultItemFrameKiB
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
