package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: got %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := WriteJSONAtomic(path, map[string]any{"action": "a<b", "index": 0}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(got)
	if !strings.Contains(text, `"action": "a<b"`) {
		t.Fatalf("expected unescaped indented output, got %s", text)
	}
	if !strings.HasSuffix(text, "}\n") {
		t.Fatalf("expected trailing newline, got %q", text)
	}
}

func TestReplaceDir(t *testing.T) {
	root := t.TempDir()
	final := filepath.Join(root, "task_1")
	if err := os.MkdirAll(final, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(final, "stale.png"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	staging := filepath.Join(root, ".task_1.tmp")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "step_0.png"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceDir(staging, final); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(final, "stale.png")); !os.IsNotExist(err) {
		t.Fatalf("expected stale file removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(final, "step_0.png")); err != nil {
		t.Fatalf("expected new file: %v", err)
	}
	for _, leftover := range []string{staging, final + ".old"} {
		if _, err := os.Stat(leftover); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, got %v", leftover, err)
		}
	}
}

func TestReplaceDirCreatesMissingFinal(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, ".task_2.tmp")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	final := filepath.Join(root, "task_2")
	if err := ReplaceDir(staging, final); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(final); err != nil || !info.IsDir() {
		t.Fatalf("expected final dir, got %v", err)
	}
}
