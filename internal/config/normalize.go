package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// applyEnvironment lets the CUA_* variables replace defaults. Values set in
// the TOML file still win because the file is decoded afterwards.
func (c *Config) applyEnvironment() {
	if value, ok := lookupEnv("CUA_DATA_DIR"); ok {
		c.Paths.DataDir = value
	}
	if value, ok := lookupEnv("CUA_CSV_FILE"); ok {
		c.Paths.RosterCSV = value
	}
	if value, ok := lookupEnv("CUA_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = value
	}
	if value, ok := lookupEnv("CUA_STATE_DIR"); ok {
		c.Paths.StateDir = value
	} else if value, ok := lookupEnv("CUA_ANNOTATIONS_FILE"); ok {
		c.Paths.StateDir = filepath.Dir(value)
	}
	if value, ok := lookupEnv("CUA_FFMPEG"); ok {
		c.Media.FFmpegBinary = value
	}
	if value, ok := lookupEnv("CUA_FFPROBE"); ok {
		c.Media.FFprobeBinary = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeFrames()
	c.normalizeOverlay()
	c.normalizeExport()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RosterCSV) == "" {
		c.Paths.RosterCSV = defaultRosterCSV
	}
	if c.Paths.RosterCSV, err = expandPath(c.Paths.RosterCSV); err != nil {
		return fmt.Errorf("paths.roster_csv: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = c.Paths.OutputDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	c.Media.VideoGlob = strings.TrimSpace(c.Media.VideoGlob)
	if c.Media.VideoGlob == "" {
		c.Media.VideoGlob = defaultVideoGlob
	}
	c.Media.ExcludeDir = strings.TrimSpace(c.Media.ExcludeDir)
}

func (c *Config) normalizeFrames() {
	c.Frames.CapturePolicy = strings.ToLower(strings.TrimSpace(c.Frames.CapturePolicy))
	if c.Frames.CapturePolicy == "" {
		c.Frames.CapturePolicy = defaultCapturePolicy
	}
	if c.Frames.FallbackFPS == 0 {
		c.Frames.FallbackFPS = defaultFallbackFPS
	}
}

func (c *Config) normalizeOverlay() {
	c.Overlay.Color = strings.ToLower(strings.TrimSpace(c.Overlay.Color))
	if c.Overlay.Color == "" {
		c.Overlay.Color = defaultOverlayColor
	}
}

func (c *Config) normalizeExport() {
	c.Export.ArchiveName = strings.TrimSpace(c.Export.ArchiveName)
	if c.Export.ArchiveName == "" {
		c.Export.ArchiveName = defaultArchiveName
	}
	c.Export.CombinedName = strings.TrimSpace(c.Export.CombinedName)
	if c.Export.CombinedName == "" {
		c.Export.CombinedName = defaultCombinedName
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
}
