package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// Attr aliases slog.Attr so callers only import this package.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Offset records a video-relative position in seconds.
func Offset(seconds float64) Attr { return slog.Float64(FieldOffset, seconds) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// ErrorAttrs renders an error with its taxonomy kind and, for located
// failures, the task and step it was pinned to.
func ErrorAttrs(err error) []Attr {
	if err == nil {
		return nil
	}
	attrs := []Attr{Error(err), String(FieldErrorKind, services.Kind(err))}
	var stepErr *services.StepError
	if !errors.As(err, &stepErr) {
		return attrs
	}
	attrs = append(attrs, Int(FieldTaskID, stepErr.TaskID))
	if stepErr.Step >= 0 {
		attrs = append(attrs, Int(FieldStep, stepErr.Step))
	}
	if stepErr.HasOffset {
		attrs = append(attrs, Offset(stepErr.Offset))
	}
	return attrs
}

// Args converts attributes into the variadic form slog methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with the component name. A nil logger
// yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// FieldImpact describes what a warning means for the annotator.
const FieldImpact = "impact"

var warnDefaults = []Attr{
	slog.String(FieldErrorHint, "check logs for details"),
	slog.String(FieldImpact, "operation completed with warnings"),
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Missing fields get generic defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	present := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		present[attr.Key] = true
	}
	if !present[FieldEventType] {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	for _, def := range warnDefaults {
		if !present[def.Key] {
			attrs = append(attrs, def)
		}
	}
	logger.Warn(msg, Args(attrs...)...)
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
