package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const (
	defaultConfigLocation = "~/.config/cua-annotate/config.toml"
	projectConfigName     = "cua-annotate.toml"
)

// Paths contains the input folders and output locations.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	RosterCSV string `toml:"roster_csv"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Media contains the video tooling settings.
type Media struct {
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
	SeekTimeoutSeconds  int    `toml:"seek_timeout_seconds"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
	VideoGlob           string `toml:"video_glob"`
	ExcludeDir          string `toml:"exclude_dir"`
}

// Frames contains frame extraction settings.
type Frames struct {
	CacheEntries int `toml:"cache_entries"`
	// CapturePolicy selects the instant used as a step's representative
	// frame: "start" (event start_time) or "premove".
	CapturePolicy string  `toml:"capture_policy"`
	FallbackFPS   float64 `toml:"fallback_fps"`
}

// Overlay contains coordinate marker rendering settings.
type Overlay struct {
	Enabled   bool   `toml:"enabled"`
	Radius    int    `toml:"radius"`
	LineWidth int    `toml:"line_width"`
	Color     string `toml:"color"`
}

// Export contains export assembly settings.
type Export struct {
	Workers      int    `toml:"workers"`
	ArchiveName  string `toml:"archive_name"`
	CombinedName string `toml:"combined_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// RetentionDays prunes old log files at startup; 0 disables pruning.
	RetentionDays int `toml:"retention_days"`
}

// Config is the full cua-annotate configuration. Values are layered:
// defaults, then CUA_* environment variables, then the TOML file.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Media   Media   `toml:"media"`
	Frames  Frames  `toml:"frames"`
	Overlay Overlay `toml:"overlay"`
	Export  Export  `toml:"export"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// Load resolves, decodes, normalizes and validates the configuration. It
// returns the file path that was considered and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	cfg.applyEnvironment()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := cfg.decodeFile(resolved); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func (c *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("parse config %s:%d:%d: %w", filepath.Base(path), row, col, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveConfigPath honours an explicit path as is. Otherwise the per-user
// file wins over cua-annotate.toml in the working directory; when neither
// exists the per-user location is reported.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// EnsureDirectories creates the output, state and log directories. The data
// directory is input and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SeekTimeout bounds a single frame seek+decode.
func (c *Config) SeekTimeout() time.Duration {
	return time.Duration(c.Media.SeekTimeoutSeconds) * time.Second
}

// ProbeTimeout bounds a single ffprobe inspection.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Media.ProbeTimeoutSeconds) * time.Second
}

// TaskDir returns the input folder for a task.
func (c *Config) TaskDir(taskID int) string {
	return filepath.Join(c.Paths.DataDir, strconv.Itoa(taskID))
}

// ExpandPath resolves a leading ~ and returns a cleaned absolute path.
// Empty input stays empty.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") || strings.HasPrefix(pathValue, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimLeft(pathValue[1:], `/\`))
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the commented sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
