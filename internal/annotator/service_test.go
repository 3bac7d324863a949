package annotator_test

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/testsupport"
)

const videoStart = 1706123456.0

func newService(t *testing.T, opener *testsupport.FakeOpener, tasks ...testsupport.TaskFixture) (*annotator.Service, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	instructions := map[int]string{}
	for _, fixture := range tasks {
		testsupport.WriteTaskFolder(t, cfg.Paths.DataDir, fixture)
		instructions[fixture.TaskID] = "Change the wallpaper"
	}
	testsupport.WriteRoster(t, cfg.Paths.RosterCSV, instructions)

	svc, err := annotator.New(cfg, logging.NewNop(), annotator.WithOpener(opener))
	if err != nil {
		t.Fatalf("annotator.New failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, cfg
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func TestLoadTaskView(t *testing.T) {
	svc, _ := newService(t, testsupport.NewFakeOpener(), testsupport.TaskFixture{
		TaskID:     1,
		VideoStart: videoStart,
		Events: []map[string]any{
			testsupport.Click(1706123460.0, 500, 300, "open menu"),
			testsupport.TypeText(1706123461.5, "wallpaper"),
		},
	})
	ctx := context.Background()

	if err := svc.SetOverride(ctx, 1, 0, events.Coordinate{X: 510, Y: 290}); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := svc.SetStepVerdict(ctx, 1, 1, "fail", "typed into the wrong field"); err != nil {
		t.Fatalf("SetStepVerdict failed: %v", err)
	}

	view, err := svc.LoadTask(ctx, 1)
	if err != nil {
		t.Fatalf("LoadTask failed: %v", err)
	}
	if view.Task.Instruction != "Change the wallpaper" || len(view.Steps) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Video == nil || view.Video.FPS != 30 {
		t.Fatalf("expected probed video info, got %+v", view.Video)
	}

	click := view.Steps[0]
	if click.Offset != 4.0 {
		t.Fatalf("expected 4.0s offset, got %v", click.Offset)
	}
	if !click.Overridden || *click.Coordinate != (events.Coordinate{X: 510, Y: 290}) || *click.Recorded != (events.Coordinate{X: 500, Y: 300}) {
		t.Fatalf("unexpected click step: %+v", click)
	}
	if click.Code != "pyautogui.click(510, 290)" {
		t.Fatalf("unexpected code %q", click.Code)
	}

	typed := view.Steps[1]
	if typed.Coordinate != nil || typed.Code != "pyautogui.write('wallpaper')" {
		t.Fatalf("unexpected type step: %+v", typed)
	}
	if typed.Review == nil || typed.Review.Verdict != annotations.VerdictFail {
		t.Fatalf("expected step review, got %+v", typed.Review)
	}
}

func TestLoadTaskMalformedLogFails(t *testing.T) {
	svc, _ := newService(t, testsupport.NewFakeOpener(), testsupport.TaskFixture{
		TaskID:     2,
		VideoStart: videoStart,
		RawLines:   []string{`{"action":"click","start_time":1706123457.0}`, `{not json`},
	})
	_, err := svc.LoadTask(context.Background(), 2)
	if !errors.Is(err, services.ErrMalformedEventLog) {
		t.Fatalf("expected MalformedEventLog, got %v", err)
	}
}

func TestUnknownIDs(t *testing.T) {
	svc, _ := newService(t, testsupport.NewFakeOpener(), testsupport.TaskFixture{
		TaskID:     1,
		VideoStart: videoStart,
		Events:     []map[string]any{testsupport.Click(videoStart+1, 1, 1, "")},
	})
	ctx := context.Background()

	if _, err := svc.LoadTask(ctx, 9); !errors.Is(err, services.ErrUnknownTask) {
		t.Fatalf("expected UnknownTask, got %v", err)
	}
	if err := svc.SetVerdict(ctx, 9, "pass", ""); !errors.Is(err, services.ErrUnknownTask) {
		t.Fatalf("expected UnknownTask from verdict, got %v", err)
	}
	if _, err := svc.GetFrame(ctx, 1, 3, annotator.FrameOptions{}); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected UnknownStep, got %v", err)
	}
	if err := svc.ClearOverride(ctx, 1, 5); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected UnknownStep from clear, got %v", err)
	}
	if err := svc.SetVerdict(ctx, 1, "great", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetFrameOverlayAndReextract(t *testing.T) {
	opener := testsupport.NewFakeOpener()
	svc, _ := newService(t, opener, testsupport.TaskFixture{
		TaskID:     3,
		VideoStart: videoStart,
		Events:     []map[string]any{testsupport.Click(videoStart+4, 30, 20, "")},
	})
	ctx := context.Background()

	plain, err := svc.GetFrame(ctx, 3, 0, annotator.FrameOptions{})
	if err != nil {
		t.Fatalf("GetFrame failed: %v", err)
	}
	if !sameColor(plain.At(30+18, 20), testsupport.FrameColor(120)) {
		t.Fatal("expected no marker without overlay")
	}

	marked, err := svc.GetFrame(ctx, 3, 0, annotator.FrameOptions{Overlay: true})
	if err != nil {
		t.Fatalf("GetFrame failed: %v", err)
	}
	if !sameColor(marked.At(30+18, 20), color.RGBA{R: 0xff, G: 0x30, B: 0x30, A: 0xff}) {
		t.Fatalf("expected default marker at radius 18, got %v", marked.At(48, 20))
	}
	if opener.Seeks() != 1 {
		t.Fatalf("expected one decode for two renders, got %d", opener.Seeks())
	}

	if err := svc.Reextract(ctx, 3, 999); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected UnknownStep for step 999, got %v", err)
	}
	if err := svc.Reextract(ctx, 9, 0); !errors.Is(err, services.ErrUnknownTask) {
		t.Fatalf("expected UnknownTask, got %v", err)
	}
	if err := svc.Reextract(ctx, 3, 0); err != nil {
		t.Fatal(err)
	}
	data, err := svc.FramePNG(ctx, 3, 0, annotator.FrameOptions{})
	if err != nil {
		t.Fatalf("FramePNG failed: %v", err)
	}
	if opener.Seeks() != 2 {
		t.Fatalf("expected re-extraction to decode again, got %d seeks", opener.Seeks())
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if !sameColor(img.At(0, 0), testsupport.FrameColor(120)) {
		t.Fatalf("unexpected pixel %v", img.At(0, 0))
	}
}

func TestReextractTaskDecodesEveryStepAgain(t *testing.T) {
	opener := testsupport.NewFakeOpener()
	svc, _ := newService(t, opener, testsupport.TaskFixture{
		TaskID:     4,
		VideoStart: videoStart,
		Events: []map[string]any{
			testsupport.Click(videoStart+1, 10, 10, ""),
			testsupport.Click(videoStart+2, 20, 20, ""),
		},
	})
	ctx := context.Background()
	for step := 0; step < 2; step++ {
		if _, err := svc.GetFrame(ctx, 4, step, annotator.FrameOptions{}); err != nil {
			t.Fatalf("GetFrame step %d: %v", step, err)
		}
	}
	if err := svc.ReextractTask(4); err != nil {
		t.Fatalf("ReextractTask: %v", err)
	}
	if err := svc.ReextractTask(9); !errors.Is(err, services.ErrUnknownTask) {
		t.Fatalf("expected UnknownTask, got %v", err)
	}
	for step := 0; step < 2; step++ {
		if _, err := svc.GetFrame(ctx, 4, step, annotator.FrameOptions{}); err != nil {
			t.Fatalf("GetFrame step %d: %v", step, err)
		}
	}
	if opener.Seeks() != 4 {
		t.Fatalf("expected every step to decode again, got %d seeks", opener.Seeks())
	}
}

func TestEndToEndExport(t *testing.T) {
	opener := testsupport.NewFakeOpener()
	opener.Width, opener.Height = 800, 600
	svc, cfg := newService(t, opener, testsupport.TaskFixture{
		TaskID:     1,
		VideoStart: videoStart,
		Events:     []map[string]any{testsupport.Click(1706123460.0, 500, 300, "open settings")},
	})
	ctx := context.Background()

	if _, err := svc.ExportTask(ctx, 1); !errors.Is(err, services.ErrNotApproved) {
		t.Fatalf("expected NotApproved before verdict, got %v", err)
	}
	if err := svc.SetVerdict(ctx, 1, "pass", "settings opened"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetScores(ctx, 1, annotations.Scores{Correctness: annotations.Score(5)}); err != nil {
		t.Fatal(err)
	}

	manifest, err := svc.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}
	if len(manifest.Exported) != 1 || manifest.Exported[0] != 1 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	for _, name := range []string{"task_1/step_0.png", "task_1/task_1.json", "all_tasks.json", "export.zip"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status) != 1 || status[0].Verdict != annotations.VerdictPass || !status[0].Exported || !status[0].HasRecording {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSnapshotRoundTripThroughService(t *testing.T) {
	svc, _ := newService(t, testsupport.NewFakeOpener(), testsupport.TaskFixture{
		TaskID:     1,
		VideoStart: videoStart,
		Events:     []map[string]any{testsupport.Click(videoStart+1, 1, 1, "")},
	})
	ctx := context.Background()
	if err := svc.SetVerdict(ctx, 1, "unclear", ""); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if _, err := svc.WriteSnapshot(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetVerdict(ctx, 1, "pass", ""); err != nil {
		t.Fatal(err)
	}
	report, err := svc.ImportSnapshot(ctx, dir)
	if err != nil || report.Tasks != 1 {
		t.Fatalf("unexpected import: %+v %v", report, err)
	}
	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unclear != 1 || sum.Pass != 0 {
		t.Fatalf("expected snapshot state restored, got %+v", sum)
	}
}
