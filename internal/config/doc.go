// Package config loads, normalizes, and validates phono configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PHONO_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need, allowing library/cache directories and transcode settings to be
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
