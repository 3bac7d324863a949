package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
)

// Entry is one decoded JSON log line.
type Entry struct {
	Time    string
	Level   slog.Level
	Message string
	TaskID  *int
	Fields  map[string]any
	Raw     string
}

var reservedKeys = map[string]bool{"ts": true, "level": true, "msg": true}

// Parse decodes a JSON log line. Lines that are not JSON objects are
// returned with only Raw and Message set.
func Parse(line string) Entry {
	entry := Entry{Raw: line, Message: line, Level: slog.LevelInfo}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.Time, _ = fields["ts"].(string)
	entry.Message, _ = fields["msg"].(string)
	if level, ok := fields["level"].(string); ok {
		_ = entry.Level.UnmarshalText([]byte(level))
	}
	if id, ok := fields[logging.FieldTaskID].(float64); ok {
		v := int(id)
		entry.TaskID = &v
	}
	for key := range reservedKeys {
		delete(fields, key)
	}
	entry.Fields = fields
	return entry
}

// Filter selects entries by minimum level and, when TaskID is set, task.
type Filter struct {
	MinLevel slog.Level
	TaskID   *int
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.TaskID != nil && (e.TaskID == nil || *e.TaskID != *f.TaskID) {
		return false
	}
	return true
}

// Apply parses lines and keeps the matching entries.
func (f Filter) Apply(lines []string) []Entry {
	out := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if e := Parse(line); f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Format renders e as "ts LEVEL msg key=value ...", keys sorted.
func Format(e Entry) string {
	if e.Fields == nil {
		return e.Raw
	}
	var b strings.Builder
	if e.Time != "" {
		b.WriteString(e.Time)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", e.Level.String(), e.Message)
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Fields[key])
	}
	return b.String()
}
