package logging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStep(services.WithTaskID(context.Background(), 12), 3)
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "frames")).Info("frame extracted",
		logging.Offset(4),
		logging.String(logging.FieldEventType, "frame_extracted"),
	)

	content := readLog(t, logPath)
	for _, fragment := range []string{"INFO [frames] Task #12 (step 3) - frame extracted", "Offset: 4.000s", "Event: frame_extracted"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}, SessionID: "run-1"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("export complete", logging.Int("tasks", 2))

	content := readLog(t, logPath)
	for _, fragment := range []string{`"ts":`, `"level":"info"`, `"msg":"export complete"`, `"tasks":2`, `"session_id":"run-1"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger, err := logging.NewFromConfig(&cfg, "session-x")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("probe finished", logging.String("video_path", "/tmp/a.mp4"))

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if !strings.Contains(content, `"msg":"probe finished"`) || !strings.Contains(content, `"session_id":"session-x"`) {
		t.Fatalf("unexpected log file contents: %q", content)
	}
}

func TestErrorAttrsLocateStepFailures(t *testing.T) {
	err := &services.StepError{Marker: services.ErrSeekOutOfRange, TaskID: 5, Step: 1, Offset: 99, HasOffset: true, Err: errors.New("past end")}
	attrs := logging.ErrorAttrs(err)
	keys := map[string]bool{}
	for _, attr := range attrs {
		keys[attr.Key] = true
	}
	for _, key := range []string{"error", logging.FieldErrorKind, logging.FieldTaskID, logging.FieldStep, logging.FieldOffset} {
		if !keys[key] {
			t.Fatalf("expected %q in attrs %v", key, attrs)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "overlay skipped", "overlay_skipped")
	content := readLog(t, logPath)
	for _, key := range []string{`"event_type":"overlay_skipped"`, `"error_hint":`, `"impact":`} {
		if !strings.Contains(content, key) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}

func TestPruneLogsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	freshPath := filepath.Join(dir, "fresh.log")
	keptPath := filepath.Join(dir, "kept.log")
	for _, p := range []string{oldPath, freshPath, keptPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{oldPath, keptPath} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, "*.log", 5, keptPath)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{freshPath, keptPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}
}
