package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validatePlaylist(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCache() error {
	if c.Cache.MaxMiB < 0 {
		return errors.New("cache.max_mib must be zero or positive")
	}
	if c.Cache.Workers < 0 {
		return errors.New("cache.workers must be zero or positive")
	}
	if c.Cache.Workers > 64 {
		return fmt.Errorf("cache.workers must be at most 64, got %d", c.Cache.Workers)
	}
	return nil
}

func (c *Config) validatePlaylist() error {
	seen := make(map[string]struct{}, len(c.Playlist.Items))
	for i, it := range c.Playlist.Items {
		if it.Frames < 0 {
			return fmt.Errorf("playlist.items[%d].frames must be positive", i)
		}
		if it.FrameKiB < 0 {
			return fmt.Errorf("playlist.items[%d].frame_kib must be positive", i)
		}
		if it.DecodeMS < 0 {
			return fmt.Errorf("playlist.items[%d].decode_ms must be zero or positive", i)
		}
		if it.FailEvery < 0 {
			return fmt.Errorf("playlist.items[%d].fail_every must be zero or positive", i)
		}
		if _, dup := seen[it.Name]; dup {
			return fmt.Errorf("playlist.items[%d].name %q is not unique", i, it.Name)
		}
		seen[it.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.FPS <= 0 || c.Playback.FPS > 240 {
		return fmt.Errorf("playback.fps must be in (0, 240], got %g", c.Playback.FPS)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
