package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
)

func clearCUAEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CUA_DATA_DIR", "CUA_CSV_FILE", "CUA_OUTPUT_DIR", "CUA_STATE_DIR", "CUA_ANNOTATIONS_FILE", "CUA_FFMPEG", "CUA_FFPROBE"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	clearCUAEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	workDir := t.TempDir()
	t.Chdir(workDir)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute data dir, got %q", cfg.Paths.DataDir)
	}
	if filepath.Base(cfg.Paths.OutputDir) != "output" {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.StateDir != cfg.Paths.OutputDir {
		t.Fatalf("expected state dir to default to output dir, got %q", cfg.Paths.StateDir)
	}
	wantLogs := filepath.Join(tempHome, ".local", "share", "cua-annotate", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Frames.CapturePolicy != "start" {
		t.Fatalf("expected start capture policy, got %q", cfg.Frames.CapturePolicy)
	}
	if cfg.Frames.CacheEntries != config.Default().Frames.CacheEntries {
		t.Fatalf("unexpected cache entries: %d", cfg.Frames.CacheEntries)
	}
	if cfg.SeekTimeout().Seconds() != 15 {
		t.Fatalf("unexpected seek timeout: %v", cfg.SeekTimeout())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if _, err := os.Stat(cfg.Paths.DataDir); err == nil {
		t.Fatal("EnsureDirectories must not create the data dir")
	}
}

func TestLoadCustomPathOverridesEnvironment(t *testing.T) {
	clearCUAEnv(t)
	tempDir := t.TempDir()
	t.Setenv("CUA_DATA_DIR", filepath.Join(tempDir, "env-data"))
	t.Setenv("CUA_OUTPUT_DIR", filepath.Join(tempDir, "env-output"))

	configPath := filepath.Join(tempDir, "cua-annotate.toml")
	content := `
[paths]
output_dir = "` + filepath.ToSlash(filepath.Join(tempDir, "file-output")) + `"

[frames]
cache_entries = 8
capture_policy = "PreMove"

[export]
workers = 2
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "env-data") {
		t.Fatalf("expected env data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "file-output") {
		t.Fatalf("expected file to win over env, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Frames.CapturePolicy != "premove" {
		t.Fatalf("expected normalized capture policy, got %q", cfg.Frames.CapturePolicy)
	}
	if cfg.Frames.CacheEntries != 8 || cfg.Export.Workers != 2 {
		t.Fatalf("unexpected values: cache=%d workers=%d", cfg.Frames.CacheEntries, cfg.Export.Workers)
	}
}

func TestLegacyAnnotationsFileSetsStateDir(t *testing.T) {
	clearCUAEnv(t)
	tempDir := t.TempDir()
	t.Setenv("CUA_ANNOTATIONS_FILE", filepath.Join(tempDir, "state", "annotations.json"))

	cfg, _, _, err := config.Load(filepath.Join(tempDir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"cache entries", func(c *config.Config) { c.Frames.CacheEntries = 0 }, "frames.cache_entries"},
		{"capture policy", func(c *config.Config) { c.Frames.CapturePolicy = "end" }, "frames.capture_policy"},
		{"seek timeout", func(c *config.Config) { c.Media.SeekTimeoutSeconds = 0 }, "media.seek_timeout_seconds"},
		{"overlay color", func(c *config.Config) { c.Overlay.Color = "red" }, "overlay.color"},
		{"workers", func(c *config.Config) { c.Export.Workers = -1 }, "export.workers"},
		{"archive name", func(c *config.Config) { c.Export.ArchiveName = "../x.zip" }, "export.archive_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	clearCUAEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config did not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Overlay.Color != "#ff3030" {
		t.Fatalf("unexpected overlay color: %q", cfg.Overlay.Color)
	}
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	clearCUAEnv(t)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Export.Workers = 3

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	path := filepath.Join(dir, "effective.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load encoded config: %v", err)
	}
	if loaded.Export.Workers != 3 || loaded.Paths.OutputDir != cfg.Paths.OutputDir {
		t.Fatalf("unexpected round trip: workers=%d output=%q", loaded.Export.Workers, loaded.Paths.OutputDir)
	}
}

func TestLoadReportsParsePosition(t *testing.T) {
	clearCUAEnv(t)
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[frames]\ncache_entries = \"many\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "broken.toml:") {
		t.Fatalf("expected positioned parse error, got %v", err)
	}
}
