package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// consoleHandler prints one header line per record followed by indented
// fields. Info and above show a curated, labelled subset; debug shows every
// field under its raw key.
type consoleHandler struct {
	mu         *sync.Mutex
	w          io.Writer
	level      slog.Leveler
	withSource bool
	bound      []field
	groups     []string
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, withSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, withSource: withSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		next.bound = appendField(next.bound, h.groups, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := slices.Clone(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.groups, attr)
		return true
	})
	fields = lastWins(fields)

	var sb strings.Builder
	h.writeHeader(&sb, record, fields)
	sb.WriteByte('\n')
	if record.Level < slog.LevelInfo {
		for _, f := range fields {
			if !headerKey(f.key) {
				fmt.Fprintf(&sb, "    %s: %s\n", f.key, renderValue(f.value))
			}
		}
	} else {
		writeHighlights(&sb, fields)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *consoleHandler) writeHeader(sb *strings.Builder, record slog.Record, fields []field) {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(ts.Local().Format(consoleTimeLayout))
	sb.WriteByte(' ')
	sb.WriteString(levelName(record.Level))

	var component, task, step string
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = renderValue(f.value)
		case FieldTaskID:
			task = renderValue(f.value)
		case FieldStep:
			step = renderValue(f.value)
		}
	}
	if component != "" {
		sb.WriteString(" [" + component + "]")
	}
	if subject := FormatSubject(task, step); subject != "" {
		sb.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	sb.WriteString(" - " + msg)

	if h.withSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(sb, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
}

// highlightOrder lists fields shown first at info level, with their labels.
var highlightOrder = []struct{ key, label string }{
	{FieldAlert, "Alert"},
	{FieldEventType, "Event"},
	{FieldErrorKind, "Kind"},
	{"error", "Error"},
	{FieldErrorHint, "Hint"},
	{FieldImpact, "Impact"},
	{FieldOffset, "Offset"},
	{"timestamp", "Timestamp"},
	{"frame_index", "Frame"},
	{"verdict", "Verdict"},
	{"steps", "Steps"},
	{"tasks", "Tasks"},
	{"exported", "Exported"},
	{"failed", "Failed"},
	{"duration", "Duration"},
	{"reason", "Reason"},
}

const (
	maxInfoValue  = 120
	maxErrorValue = 200
)

func writeHighlights(sb *strings.Builder, fields []field) {
	ordered := make([]field, 0, len(fields))
	taken := make([]bool, len(fields))
	labels := make(map[string]string, len(highlightOrder))
	for _, hl := range highlightOrder {
		labels[hl.key] = hl.label
		if i := slices.IndexFunc(fields, func(f field) bool { return f.key == hl.key }); i >= 0 {
			ordered = append(ordered, fields[i])
			taken[i] = true
		}
	}
	for i, f := range fields {
		if !taken[i] {
			ordered = append(ordered, f)
		}
	}

	hidden := 0
	for _, f := range ordered {
		if headerKey(f.key) {
			continue
		}
		text := renderInfoValue(f.key, f.value)
		if debugOnly(f.key) || (f.key != "error" && len(text) > maxInfoValue) {
			hidden++
			continue
		}
		label, ok := labels[f.key]
		if !ok {
			label = labelFor(f.key)
		}
		sb.WriteString("    - " + label + ": " + text + "\n")
	}
	switch hidden {
	case 0:
	case 1:
		sb.WriteString("    + 1 more field hidden\n")
	default:
		sb.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
	}
}

func renderInfoValue(key string, v slog.Value) string {
	switch {
	case key == FieldOffset && v.Kind() == slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64) + "s"
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case v.Kind() == slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	}
	text := renderValue(v)
	if key == "error" && len(text) > maxErrorValue {
		text = text[:maxErrorValue] + "…"
	}
	return text
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return "<nil>"
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		case []string:
			return strings.Join(x, ", ")
		default:
			return fmt.Sprintf("%+v", x)
		}
	default:
		return v.String()
	}
}

func headerKey(key string) bool {
	return key == "" || key == FieldComponent || key == FieldTaskID || key == FieldStep
}

func debugOnly(key string) bool {
	if key == FieldRequestID || key == FieldSessionID {
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func labelFor(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, groups []string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(slices.Clone(groups), attr.Key)
		}
		for _, child := range attr.Value.Group() {
			dst = appendField(dst, inner, child)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: attr.Value})
}

// lastWins drops earlier duplicates, keeping the first position and the
// latest value.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}
