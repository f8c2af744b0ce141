// Package config loads, normalizes, and validates framecache configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// FRAMECACHE_CACHE_MIB. The Config type centralizes every knob the daemon and
// CLI need: state and log directories, the cache budget and worker pool, the
// demo playlist and the simulated playback feed.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
