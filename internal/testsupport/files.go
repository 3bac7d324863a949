package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("B", int(size))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TaskFixture describes one task folder on disk.
type TaskFixture struct {
	TaskID     int
	VideoStart float64
	// Events are marshalled one per line into reduced_events_complete.jsonl.
	Events []map[string]any
	// RawLines, when set, are written verbatim instead of Events.
	RawLines []string
	// Descriptions, when set, are written to reduced_events_vis.jsonl.
	Descriptions []string
	// VideoName defaults to "recording.mp4"; "-" omits the video.
	VideoName string
	// OmitMetadata skips metadata.json.
	OmitMetadata bool
}

// Click returns an event map for a click at (x, y) starting at start.
func Click(start float64, x, y int, justification string) map[string]any {
	return map[string]any{
		"action":        "click",
		"start_time":    start,
		"end_time":      start + 0.1,
		"coordinate":    map[string]any{"x": x, "y": y},
		"justification": justification,
		"description":   fmt.Sprintf("Click at (%d, %d)", x, y),
	}
}

// TypeText returns an event map for a keyboard type action.
func TypeText(start float64, text string) map[string]any {
	return map[string]any{
		"action":        "type",
		"start_time":    start,
		"end_time":      start + 0.5,
		"coordinate":    map[string]any{"x": 0, "y": 0},
		"justification": "enter text",
		"description":   "⌨️ Type: " + text,
	}
}

// WriteTaskFolder materializes fixture under dataDir and returns the folder.
func WriteTaskFolder(t testing.TB, dataDir string, fixture TaskFixture) string {
	t.Helper()

	dir := filepath.Join(dataDir, fmt.Sprint(fixture.TaskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir task dir: %v", err)
	}
	if !fixture.OmitMetadata {
		meta, err := json.Marshal(map[string]any{"video_start_timestamp": fixture.VideoStart})
		if err != nil {
			t.Fatalf("marshal metadata: %v", err)
		}
		WriteText(t, filepath.Join(dir, "metadata.json"), string(meta))
	}

	lines := fixture.RawLines
	if lines == nil {
		for _, ev := range fixture.Events {
			encoded, err := json.Marshal(ev)
			if err != nil {
				t.Fatalf("marshal event: %v", err)
			}
			lines = append(lines, string(encoded))
		}
	}
	WriteText(t, filepath.Join(dir, "reduced_events_complete.jsonl"), strings.Join(lines, "\n")+"\n")

	if fixture.Descriptions != nil {
		var vis []string
		for _, desc := range fixture.Descriptions {
			encoded, err := json.Marshal(map[string]string{"description": desc})
			if err != nil {
				t.Fatalf("marshal description: %v", err)
			}
			vis = append(vis, string(encoded))
		}
		WriteText(t, filepath.Join(dir, "reduced_events_vis.jsonl"), strings.Join(vis, "\n")+"\n")
	}

	switch fixture.VideoName {
	case "-":
	case "":
		WriteFile(t, filepath.Join(dir, "recording.mp4"), 64)
	default:
		WriteFile(t, filepath.Join(dir, fixture.VideoName), 64)
	}
	return dir
}

// WriteRoster writes a roster CSV with task_id and instruction columns.
func WriteRoster(t testing.TB, path string, instructions map[int]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("task_id,instruction,worker_id,worker_name\n")
	for id, instruction := range instructions {
		fmt.Fprintf(&b, "%d,%q,w%d,Worker %d\n", id, instruction, id, id)
	}
	WriteText(t, path, b.String())
}
