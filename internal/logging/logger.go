package logging

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
)

// LogFileName is the JSON log written under the configured log directory.
const LogFileName = "cua-annotate.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Outputs lists file paths or the names stdout and stderr. Empty means stderr.
	Outputs []string
	// SessionID is stamped on every record when set.
	SessionID string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := buildHandler(opts.Format, opts.Level, opts.Outputs)
	if err != nil {
		return nil, err
	}
	return slog.New(stamp(handler, opts.SessionID)), nil
}

// NewFromConfig creates the CLI logger: the configured format on stderr plus
// a JSON copy appended to the log directory.
func NewFromConfig(cfg *config.Config, sessionID string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", SessionID: sessionID})
	}
	console, err := buildHandler(cfg.Logging.Format, cfg.Logging.Level, nil)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{console}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		file, err := buildHandler("json", cfg.Logging.Level, []string{filepath.Join(dir, LogFileName)})
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, file)
	}
	return slog.New(stamp(TeeHandler(handlers...), sessionID)), nil
}

func stamp(handler slog.Handler, sessionID string) slog.Handler {
	if strings.TrimSpace(sessionID) == "" {
		return handler
	}
	return newStampHandler(handler, sessionID)
}

func buildHandler(format, level string, outputs []string) (slog.Handler, error) {
	lvl := parseLevel(level)
	w, err := openOutputs(outputs)
	if err != nil {
		return nil, err
	}
	// Source locations only help when chasing debug output.
	withSource := lvl <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newConsoleHandler(w, lvl, withSource), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			AddSource:   withSource,
			ReplaceAttr: jsonKeys,
		}), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// jsonKeys shortens the builtin keys and keeps offsets at millisecond
// precision so log lines stay comparable with exported timestamps.
func jsonKeys(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339))
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "msg"
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	case FieldOffset:
		if attr.Value.Kind() == slog.KindFloat64 {
			return slog.Float64(FieldOffset, math.Round(attr.Value.Float64()*1000)/1000)
		}
	}
	return attr
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	switch normalized := strings.ToLower(strings.TrimSpace(level)); normalized {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := lvl.UnmarshalText([]byte(normalized)); err != nil {
			return slog.LevelInfo
		}
		return lvl
	}
}

func openOutputs(outputs []string) (io.Writer, error) {
	seen := make(map[string]bool, len(outputs))
	var writers []io.Writer
	for _, raw := range outputs {
		target := strings.TrimSpace(raw)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		switch target {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", target, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
