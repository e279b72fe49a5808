package config

import (
	"errors"
	"fmt"
	"regexp"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateStyle(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateArtifacts(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendSQLite, StoreBackendFile:
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want %q or %q)", c.Store.Backend, StoreBackendSQLite, StoreBackendFile)
	}
}

func (c *Config) validateCache() error {
	switch c.Cache.Retention {
	case RetentionKeepAll:
	case RetentionMaxEntries:
		if c.Cache.MaxEntries <= 0 {
			return errors.New("cache.max_entries must be positive when cache.retention is max_entries")
		}
	case RetentionMaxAge:
		if c.Cache.MaxAgeHours <= 0 {
			return errors.New("cache.max_age_hours must be positive when cache.retention is max_age")
		}
	default:
		return fmt.Errorf("cache.retention: unsupported value %q", c.Cache.Retention)
	}
	if c.Cache.MemoryEntries < 0 {
		return errors.New("cache.memory_entries must be >= 0")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MaxConcurrent < 0 {
		return errors.New("engine.max_concurrent must be >= 0")
	}
	if c.Engine.ShutdownTimeoutSeconds < 0 {
		return errors.New("engine.shutdown_timeout_seconds must be >= 0")
	}
	if c.Engine.MinFreeMB < 0 {
		return errors.New("engine.min_free_mb must be >= 0")
	}
	if c.Simulate.TotalSeconds < 0 {
		return errors.New("simulate.total_seconds must be >= 0")
	}
	if c.Transcription.TimeoutSeconds < 0 {
		return errors.New("transcription.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateStyle() error {
	if c.Style.FontSize < 12 || c.Style.FontSize > 72 {
		return errors.New("style.font_size must be between 12 and 72")
	}
	if c.Style.StrokeWidth < 0 || c.Style.StrokeWidth > 10 {
		return errors.New("style.stroke_width must be between 0 and 10")
	}
	if c.Style.Padding < 0 || c.Style.Padding > 50 {
		return errors.New("style.padding must be between 0 and 50")
	}
	if !hexColorPattern.MatchString(c.Style.FontColor) {
		return fmt.Errorf("style.font_color: %q is not a #RRGGBB colour", c.Style.FontColor)
	}
	if !hexColorPattern.MatchString(c.Style.StrokeColor) {
		return fmt.Errorf("style.stroke_color: %q is not a #RRGGBB colour", c.Style.StrokeColor)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxFileBytes <= 0 {
		return errors.New("ingest.max_file_bytes must be positive")
	}
	if c.Ingest.DownloadTimeoutSeconds <= 0 {
		return errors.New("ingest.download_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	switch c.Artifacts.Backend {
	case ArtifactsBackendLocal:
		return nil
	case ArtifactsBackendMinio:
		if c.Artifacts.Endpoint == "" {
			return errors.New("artifacts.endpoint must be set when artifacts.backend is minio")
		}
		if c.Artifacts.Bucket == "" {
			return errors.New("artifacts.bucket must be set when artifacts.backend is minio")
		}
		return nil
	default:
		return fmt.Errorf("artifacts.backend: unsupported value %q", c.Artifacts.Backend)
	}
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
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
