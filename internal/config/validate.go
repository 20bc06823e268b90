package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.LibraryDir {
		return errors.New("paths.cache_dir must not equal paths.library_dir")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers > 32 {
		return fmt.Errorf("workflow.workers %d exceeds the supported maximum of 32", c.Workflow.Workers)
	}
	return nil
}

func (c *Config) validateTranscode() error {
	switch c.Transcode.AudioCodec {
	case "aac", "libmp3lame", "libopus", "flac":
	default:
		return fmt.Errorf("transcode.audio_codec: unsupported codec %q", c.Transcode.AudioCodec)
	}
	if c.Transcode.SegmentSeconds > 60 {
		return errors.New("transcode.segment_seconds must be 60 or less")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
