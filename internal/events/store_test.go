package events_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/testsupport"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

func newStore(t *testing.T) (*events.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	return events.NewStore(events.Options{DataDir: dataDir, VideoGlob: "*.mp4", ExcludeDir: "video_clips"}, logging.NewNop()), dataDir
}

func TestLoadParsesTrajectory(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:     1,
		VideoStart: 1706123456.0,
		Events: []map[string]any{
			testsupport.Click(1706123460.0, 500, 300, "open menu"),
			testsupport.TypeText(1706123461.0, "hello"),
			{"action": "scroll", "start_time": 1706123462.0},
		},
		Descriptions: []string{"Click the File menu"},
	})
	testsupport.WriteFile(t, filepath.Join(dataDir, "1", "video_clips", "clip.mp4"), 8)

	traj, err := store.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if traj.Len() != 3 {
		t.Fatalf("expected 3 steps, got %d", traj.Len())
	}
	if filepath.Base(traj.VideoPath) != "recording.mp4" {
		t.Fatalf("unexpected video path %q", traj.VideoPath)
	}

	click, _ := traj.Step(0)
	if click.Index != 0 || click.Coordinate == nil || *click.Coordinate != (events.Coordinate{X: 500, Y: 300}) {
		t.Fatalf("unexpected click: %+v", click)
	}
	if click.Description != "Click the File menu" {
		t.Fatalf("expected vis description, got %q", click.Description)
	}
	if click.Justification != "open menu" {
		t.Fatalf("unexpected justification %q", click.Justification)
	}

	typed, _ := traj.Step(1)
	if typed.Coordinate != nil {
		t.Fatalf("keyboard event should have no coordinate, got %+v", typed.Coordinate)
	}
	if !strings.HasSuffix(typed.Description, "hello") {
		t.Fatalf("expected fallback description, got %q", typed.Description)
	}

	scroll, _ := traj.Step(2)
	if scroll.EndTime != scroll.StartTime || scroll.PreMove != nil {
		t.Fatalf("expected defaults for optional fields, got %+v", scroll)
	}

	offset, err := traj.Offset(0, timeline.PolicyStart)
	if err != nil || offset != 4.0 {
		t.Fatalf("expected 4.0s offset, got %v %v", offset, err)
	}
}

func TestLoadMalformedLineNamesLine(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:     2,
		VideoStart: 100,
		RawLines: []string{
			`{"action":"click","start_time":101,"coordinate":{"x":1,"y":2}}`,
			``,
			`{"action":"click","start_time":"soon"}`,
		},
	})

	_, err := store.Load(context.Background(), 2)
	if !errors.Is(err, services.ErrMalformedEventLog) {
		t.Fatalf("expected MalformedEventLog, got %v", err)
	}
	var stepErr *services.StepError
	if !errors.As(err, &stepErr) || stepErr.Line != 3 || stepErr.TaskID != 2 {
		t.Fatalf("expected line 3 of task 2, got %+v", stepErr)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:     3,
		VideoStart: 100,
		RawLines:   []string{`{"action":"click","start_time":101`},
	})
	_, err := store.Load(context.Background(), 3)
	if !errors.Is(err, services.ErrMalformedEventLog) || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected MalformedEventLog on line 1, got %v", err)
	}
}

func TestLoadRejectsEventBeforeVideoStart(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:     4,
		VideoStart: 200,
		Events: []map[string]any{
			testsupport.Click(201, 10, 10, ""),
			testsupport.Click(199.5, 10, 10, ""),
		},
	})
	_, err := store.Load(context.Background(), 4)
	if !errors.Is(err, services.ErrNegativeOffset) {
		t.Fatalf("expected NegativeOffset, got %v", err)
	}
	task, step, ok := services.StepOf(err)
	if !ok || task != 4 || step != 1 {
		t.Fatalf("expected task 4 step 1, got %d %d %v", task, step, ok)
	}
	if !strings.Contains(err.Error(), "199.5") {
		t.Fatalf("expected timestamp in %q", err.Error())
	}
}

func TestLoadRequiresVideoStart(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:       5,
		OmitMetadata: true,
		Events:       []map[string]any{testsupport.Click(1, 1, 1, "")},
	})
	if _, err := store.Load(context.Background(), 5); !errors.Is(err, services.ErrMalformedEventLog) {
		t.Fatalf("expected MalformedEventLog, got %v", err)
	}
}

func TestLoadMissingTaskIsNotFound(t *testing.T) {
	store, _ := newStore(t)
	if _, err := store.Load(context.Background(), 404); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.Exists(404) {
		t.Fatal("expected Exists to be false")
	}
}

func TestLoadToleratesMissingVideo(t *testing.T) {
	store, dataDir := newStore(t)
	testsupport.WriteTaskFolder(t, dataDir, testsupport.TaskFixture{
		TaskID:     6,
		VideoStart: 1,
		VideoName:  "-",
		Events:     []map[string]any{testsupport.Click(2, 3, 4, "")},
	})
	traj, err := store.Load(context.Background(), 6)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if traj.VideoPath != "" {
		t.Fatalf("expected empty video path, got %q", traj.VideoPath)
	}
}

func TestTrajectoryOffsetUnknownStep(t *testing.T) {
	traj := &events.Trajectory{TaskID: 9, VideoStart: 1}
	if _, err := traj.Offset(0, timeline.PolicyStart); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected UnknownStep, got %v", err)
	}
}
