package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	opener     *testsupport.FakeOpener
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t)
	for _, id := range []int{1, 2} {
		testsupport.WriteTaskFolder(t, cfg.Paths.DataDir, testsupport.TaskFixture{
			TaskID:     id,
			VideoStart: 1706123456.0,
			Events: []map[string]any{
				testsupport.Click(1706123460.0, 30, 20, "open settings"),
				testsupport.TypeText(1706123461.0, "dark mode"),
			},
		})
	}
	testsupport.WriteRoster(t, cfg.Paths.RosterCSV, map[int]string{1: "Enable dark mode", 2: "Open settings"})

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, opener: testsupport.NewFakeOpener()}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
roster_csv = %q
output_dir = %q
state_dir = %q
log_dir = %q

[export]
workers = 2

[logging]
level = "warn"
`, cfg.Paths.DataDir, cfg.Paths.RosterCSV, cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(annotator.WithOpener(env.opener))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out)
	}
	return out
}

func TestTasksCommandListsRoster(t *testing.T) {
	env := setupCLITestEnv(t)
	env.mustRun(t, "verdict", "2", "fail")

	out := env.mustRun(t, "tasks")
	for _, want := range []string{"Enable dark mode", "Open settings", "Fail", "Unset", "2 tasks: 0 pass, 1 fail, 0 unclear"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	jsonOut := env.mustRun(t, "tasks", "--json")
	var rows []annotator.TaskStatus
	if err := json.Unmarshal([]byte(jsonOut), &rows); err != nil {
		t.Fatalf("decode tasks json: %v\n%s", err, jsonOut)
	}
	if len(rows) != 2 || rows[0].TaskID != 1 || string(rows[1].Verdict) != "fail" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestShowReflectsOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	env.mustRun(t, "override", "set", "1", "0", "40", "25")
	env.mustRun(t, "step-verdict", "1", "1", "unclear", "--justification", "typed slowly")

	out := env.mustRun(t, "show", "1")
	for _, want := range []string{"Task 1", "Enable dark mode", "40,25*", "pyautogui.click(40, 25)", "Unclear"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	env.mustRun(t, "override", "clear", "1", "0")
	out = env.mustRun(t, "show", "1")
	if !strings.Contains(out, "pyautogui.click(30, 20)") {
		t.Fatalf("expected recorded coordinate after clear:\n%s", out)
	}
}

func TestEditErrorsSurfaceKinds(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "verdict", "7", "pass"); err == nil || !strings.Contains(err.Error(), "unknown task") {
		t.Fatalf("expected unknown task error, got %v", err)
	}
	if _, err := env.run(t, "override", "set", "1", "9", "1", "1"); err == nil || !strings.Contains(err.Error(), "unknown step") {
		t.Fatalf("expected unknown step error, got %v", err)
	}
	if _, err := env.run(t, "scores", "1", "--difficulty", "9"); err == nil {
		t.Fatal("expected out-of-range score to fail")
	}
	if _, err := env.run(t, "scores", "1"); err == nil {
		t.Fatal("expected scores without flags to fail")
	}
}

func TestFrameCommandWritesPNG(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "frame.png")
	env.mustRun(t, "frame", "1", "0", "-o", target)

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("expected PNG output")
	}
}

func TestErrorTextOnlyNamesKnownKinds(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "frame", "x", "0")
	if err == nil {
		t.Fatal("expected invalid task id to fail")
	}
	if text := errorText(err); strings.Contains(text, "ExternalTool") || !strings.Contains(text, "task id") {
		t.Fatalf("usage error printed with a kind: %q", text)
	}

	_, err = env.run(t, "frame", "1", "999")
	if err == nil {
		t.Fatal("expected unknown step to fail")
	}
	if text := errorText(err); !strings.HasPrefix(text, "UnknownStep: ") {
		t.Fatalf("expected UnknownStep prefix, got %q", text)
	}
}

func TestExportCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.mustRun(t, "verdict", "1", "pass", "--reason", "dark mode enabled")
	env.mustRun(t, "scores", "1", "--correctness", "5", "--value", "3")

	if _, err := env.run(t, "export", "2"); err == nil || !strings.Contains(err.Error(), "not approved") {
		t.Fatalf("expected not approved error, got %v", err)
	}

	out := env.mustRun(t, "export")
	if !strings.Contains(out, "1 tasks") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
	record := filepath.Join(env.cfg.Paths.OutputDir, "task_1", "task_1.json")
	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if !strings.Contains(string(data), `"pass_reason": "dark mode enabled"`) {
		t.Fatalf("unexpected record:\n%s", data)
	}
}

func TestSnapshotCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.mustRun(t, "verdict", "1", "pass")
	dir := filepath.Join(t.TempDir(), "snap")
	env.mustRun(t, "snapshot", "write", dir)

	env.mustRun(t, "verdict", "1", "unset")
	out := env.mustRun(t, "snapshot", "import", dir)
	if !strings.Contains(out, "Imported 1 tasks") {
		t.Fatalf("unexpected import output:\n%s", out)
	}
	if tasks := env.mustRun(t, "tasks"); !strings.Contains(tasks, "1 pass") {
		t.Fatalf("expected restored verdict:\n%s", tasks)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cfg", "config.toml")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "config", "show")
	for _, want := range []string{"[paths]", env.cfg.Paths.OutputDir, "capture_policy"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out = env.mustRun(t, "config", "validate")
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.cfg.Paths.StateDir) {
		t.Fatalf("unexpected validate output:\n%s", out)
	}
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Roster", statusError, "missing", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Roster:", "[ERROR] missing")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("expected non-file writer to disable color")
	}
}

func TestLogsCommandFiltersByTask(t *testing.T) {
	env := setupCLITestEnv(t)
	content := strings.Join([]string{
		`{"ts":"2026-01-02T03:04:05Z","level":"info","msg":"task exported","task_id":1}`,
		`{"ts":"2026-01-02T03:04:06Z","level":"info","msg":"task exported","task_id":2}`,
		`{"ts":"2026-01-02T03:04:07Z","level":"debug","msg":"cache hit","task_id":1}`,
	}, "\n") + "\n"
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "cua-annotate.log"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "logs", "--task", "1")
	if !strings.Contains(out, "task exported task_id=1") || strings.Contains(out, "task_id=2") || strings.Contains(out, "cache hit") {
		t.Fatalf("unexpected logs output:\n%s", out)
	}
}
