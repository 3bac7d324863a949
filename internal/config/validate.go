package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateOverlay(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if err := ensurePositiveMap(map[string]int{
		"media.seek_timeout_seconds":  c.Media.SeekTimeoutSeconds,
		"media.probe_timeout_seconds": c.Media.ProbeTimeoutSeconds,
	}); err != nil {
		return err
	}
	if _, err := filepath.Match(c.Media.VideoGlob, "probe.mp4"); err != nil {
		return fmt.Errorf("media.video_glob: %w", err)
	}
	return nil
}

func (c *Config) validateFrames() error {
	if c.Frames.CacheEntries <= 0 {
		return errors.New("frames.cache_entries must be positive")
	}
	switch c.Frames.CapturePolicy {
	case "start", "premove":
	default:
		return fmt.Errorf("frames.capture_policy must be \"start\" or \"premove\", got %q", c.Frames.CapturePolicy)
	}
	if c.Frames.FallbackFPS <= 0 {
		return errors.New("frames.fallback_fps must be positive")
	}
	return nil
}

func (c *Config) validateOverlay() error {
	if !hexColorPattern.MatchString(c.Overlay.Color) {
		return fmt.Errorf("overlay.color must be #rrggbb, got %q", c.Overlay.Color)
	}
	if c.Overlay.Radius <= 0 {
		return errors.New("overlay.radius must be positive")
	}
	if c.Overlay.LineWidth <= 0 {
		return errors.New("overlay.line_width must be positive")
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.Workers <= 0 {
		return errors.New("export.workers must be positive")
	}
	if filepath.Base(c.Export.ArchiveName) != c.Export.ArchiveName {
		return fmt.Errorf("export.archive_name must be a bare file name, got %q", c.Export.ArchiveName)
	}
	if filepath.Base(c.Export.CombinedName) != c.Export.CombinedName {
		return fmt.Errorf("export.combined_name must be a bare file name, got %q", c.Export.CombinedName)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
