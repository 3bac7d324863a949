package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
)

// Result contains the outcome of a recovery pass.
type Result struct {
	Removed  []string
	Restored []string
	Errors   []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Recover restores task folders whose swap was interrupted and removes
// leftover staging folders and temp files older than maxAge. A zero maxAge
// removes every leftover. Callers must hold the annotation lock so no export
// is running concurrently.
func Recover(ctx context.Context, outputDir string, maxAge time.Duration, logger *slog.Logger) Result {
	result := Result{}

	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return result
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: outputDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		name := entry.Name()
		path := filepath.Join(outputDir, name)

		switch {
		case entry.IsDir() && strings.HasPrefix(name, "task_") && strings.HasSuffix(name, ".old"):
			recoverBackup(path, &result, logger)
		case isLeftover(entry):
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				continue
			}
			if maxAge > 0 && !info.ModTime().Before(cutoff) {
				continue
			}
			remove(path, info.ModTime(), &result, logger)
		}
	}
	return result
}

func isLeftover(entry os.DirEntry) bool {
	name := entry.Name()
	if !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".tmp") {
		return false
	}
	if entry.IsDir() {
		return strings.HasPrefix(name, ".task_")
	}
	return true
}

// recoverBackup handles "<final>.old". When the final folder is missing the
// swap failed between its two renames, so the backup is moved back.
func recoverBackup(backup string, result *Result, logger *slog.Logger) {
	final := strings.TrimSuffix(backup, ".old")
	if _, err := os.Stat(final); os.IsNotExist(err) {
		if err := os.Rename(backup, final); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: backup, Error: err})
			warn(logger, backup, err)
			return
		}
		result.Restored = append(result.Restored, final)
		if logger != nil {
			logger.Info("restored task folder from interrupted export",
				logging.String("path", final),
				logging.String(logging.FieldEventType, "staging_restore"),
			)
		}
		return
	}
	info, err := os.Stat(backup)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: backup, Error: err})
		return
	}
	remove(backup, info.ModTime(), result, logger)
}

func remove(path string, modTime time.Time, result *Result, logger *slog.Logger) {
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		warn(logger, path, err)
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		logger.Info("removed export leftover",
			logging.String("path", path),
			logging.Duration("age", time.Since(modTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}

func warn(logger *slog.Logger, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failed to clean export leftover",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldEventType, "staging_cleanup_failed"),
		logging.String(logging.FieldErrorHint, "check output_dir permissions"),
		logging.String(logging.FieldImpact, "disk space not reclaimed"),
	)
}
