package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// FieldSessionID tags every record emitted during one CLI invocation.
const FieldSessionID = "session_id"

// teeHandler sends each record to every child that accepts its level.
type teeHandler struct {
	children []slog.Handler
}

// TeeHandler duplicates records to the non-nil handlers. Zero handlers
// collapse to NoopHandler and a single handler is returned as is.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	children := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	switch len(children) {
	case 0:
		return NoopHandler{}
	case 1:
		return children[0]
	}
	return &teeHandler{children: children}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(h.children, func(c slog.Handler) bool { return c.Enabled(ctx, level) })
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.children {
		if child.Enabled(ctx, record.Level) {
			errs = append(errs, child.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(c slog.Handler) slog.Handler { return c.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(c slog.Handler) slog.Handler { return c.WithGroup(name) })
}

func (h *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.children))
	for i, child := range h.children {
		next[i] = fn(child)
	}
	return &teeHandler{children: next}
}

// stampHandler adds the session id to every record, plus the task, step and
// request id carried by the context when the logger was not already bound
// to them.
type stampHandler struct {
	base      slog.Handler
	sessionID string
	bound     map[string]bool
}

func newStampHandler(base slog.Handler, sessionID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	return &stampHandler{base: base, sessionID: sessionID}
}

func (h *stampHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *stampHandler) Handle(ctx context.Context, record slog.Record) error {
	present := map[string]bool{}
	record.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	for _, attr := range ContextFields(ctx) {
		if !h.bound[attr.Key] && !present[attr.Key] {
			record.AddAttrs(attr)
		}
	}
	if h.sessionID != "" {
		record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	}
	return h.base.Handle(ctx, record)
}

func (h *stampHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for key := range h.bound {
		bound[key] = true
	}
	for _, attr := range attrs {
		bound[attr.Key] = true
	}
	return &stampHandler{base: h.base.WithAttrs(attrs), sessionID: h.sessionID, bound: bound}
}

func (h *stampHandler) WithGroup(name string) slog.Handler {
	return &stampHandler{base: h.base.WithGroup(name), sessionID: h.sessionID, bound: h.bound}
}
