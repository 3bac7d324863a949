package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
)

// NewConfig returns defaults rooted in a fresh temp directory, with the data,
// output, state and log directories created. Mutators run before the
// directories are made.
func NewConfig(t testing.TB, mutate ...func(*config.Config)) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.RosterCSV = filepath.Join(base, "task_assignments.csv")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Export.Workers = 2
	for _, fn := range mutate {
		fn(&cfg)
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// BaseDir returns the temp directory backing a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// StubBinary writes an executable shell script named name into dir and
// returns its path. body is the script without the shebang line.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir stub dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

// StubMedia points cfg at ffmpeg and ffprobe stubs that print a version
// banner and exit successfully.
func StubMedia(t testing.TB, cfg *config.Config) {
	t.Helper()
	dir := filepath.Join(BaseDir(cfg), "bin")
	cfg.Media.FFmpegBinary = StubBinary(t, dir, "ffmpeg", "echo 'ffmpeg version 6.1.1'\n")
	cfg.Media.FFprobeBinary = StubBinary(t, dir, "ffprobe", "echo 'ffprobe version 6.1.1'\n")
}
