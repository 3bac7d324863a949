package annotations_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/testsupport"
)

func TestVerdictAndScoresAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, testsupport.StaticCatalog{1: 3})
	ctx := context.Background()

	if err := store.SetScores(ctx, 1, annotations.Scores{Correctness: annotations.Score(4), TaskValue: annotations.Score(5)}); err != nil {
		t.Fatalf("SetScores failed: %v", err)
	}
	if err := store.SetVerdict(ctx, 1, annotations.VerdictPass, "clean run"); err != nil {
		t.Fatalf("SetVerdict failed: %v", err)
	}
	if err := store.SetScores(ctx, 1, annotations.Scores{Difficulty: annotations.Score(2), TaskValue: annotations.Score(0)}); err != nil {
		t.Fatalf("SetScores failed: %v", err)
	}

	ann, err := store.TaskAnnotation(ctx, 1)
	if err != nil {
		t.Fatalf("TaskAnnotation failed: %v", err)
	}
	if ann.Verdict != annotations.VerdictPass || ann.PassReason != "clean run" {
		t.Fatalf("unexpected verdict: %#v", ann)
	}
	if ann.Scores.Correctness == nil || *ann.Scores.Correctness != 4 {
		t.Fatalf("expected correctness kept, got %v", ann.Scores.Correctness)
	}
	if ann.Scores.Difficulty == nil || *ann.Scores.Difficulty != 2 {
		t.Fatalf("expected difficulty set, got %v", ann.Scores.Difficulty)
	}
	if ann.Scores.TaskValue != nil {
		t.Fatalf("expected task value cleared, got %v", *ann.Scores.TaskValue)
	}
	if ann.Scores.KnowledgeRichness != nil {
		t.Fatal("expected knowledge richness unset")
	}
	if ann.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at stamp")
	}

	if err := store.SetVerdict(ctx, 1, annotations.VerdictFail, ""); err != nil {
		t.Fatalf("SetVerdict failed: %v", err)
	}
	ann, _ = store.TaskAnnotation(ctx, 1)
	if ann.Verdict != annotations.VerdictFail || ann.Scores.Correctness == nil {
		t.Fatalf("expected verdict replaced and scores untouched, got %#v", ann)
	}
}

func TestScoresOutOfRangeRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, nil)

	err := store.SetScores(context.Background(), 1, annotations.Scores{Difficulty: annotations.Score(6)})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := annotations.ParseVerdict(" PASS ")
	if err != nil || v != annotations.VerdictPass {
		t.Fatalf("unexpected verdict %q %v", v, err)
	}
	if _, err := annotations.ParseVerdict("maybe"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnknownTaskAndStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, testsupport.StaticCatalog{1: 2})
	ctx := context.Background()

	err := store.SetVerdict(ctx, 99, annotations.VerdictPass, "")
	if !errors.Is(err, services.ErrUnknownTask) {
		t.Fatalf("expected unknown task, got %v", err)
	}
	if task, _, ok := services.StepOf(err); !ok || task != 99 {
		t.Fatalf("expected error pinned to task 99, got %v", err)
	}

	err = store.SetOverride(ctx, 1, 2, events.Coordinate{X: 1, Y: 1}, nil)
	if !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected unknown step, got %v", err)
	}
	if _, step, _ := services.StepOf(err); step != 2 {
		t.Fatalf("expected step 2 in error, got %d", step)
	}

	if err := store.SetStepVerdict(ctx, 1, -1, annotations.VerdictFail, ""); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected unknown step for negative index, got %v", err)
	}
}

func TestOverrideKeepsFirstOriginal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, testsupport.StaticCatalog{7: 4})
	ctx := context.Background()

	if err := store.SetOverride(ctx, 7, 1, events.Coordinate{X: 510, Y: 305}, &events.Coordinate{X: 500, Y: 300}); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := store.SetOverride(ctx, 7, 1, events.Coordinate{X: 520, Y: 310}, &events.Coordinate{X: 510, Y: 305}); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}

	o, err := store.GetOverride(ctx, 7, 1)
	if err != nil {
		t.Fatalf("GetOverride failed: %v", err)
	}
	if o == nil || o.Coordinate() != (events.Coordinate{X: 520, Y: 310}) {
		t.Fatalf("unexpected override %#v", o)
	}
	if o.Original == nil || *o.Original != (events.Coordinate{X: 500, Y: 300}) {
		t.Fatalf("expected first original kept, got %#v", o.Original)
	}

	all, err := store.Overrides(ctx, 7)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one override, got %d (%v)", len(all), err)
	}

	if err := store.ClearOverride(ctx, 7, 1); err != nil {
		t.Fatalf("ClearOverride failed: %v", err)
	}
	if o, err := store.GetOverride(ctx, 7, 1); err != nil || o != nil {
		t.Fatalf("expected override cleared, got %#v (%v)", o, err)
	}
	if err := store.ClearOverride(ctx, 7, 1); err != nil {
		t.Fatalf("second ClearOverride should be a no-op: %v", err)
	}
}

func TestNegativeOverrideRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, nil)
	err := store.SetOverride(context.Background(), 1, 0, events.Coordinate{X: -1, Y: 4}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	opts := annotations.Options{StateDir: cfg.Paths.StateDir}

	store, err := annotations.Open(opts, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.SetVerdict(ctx, 3, annotations.VerdictPass, "ok"); err != nil {
		t.Fatalf("SetVerdict failed: %v", err)
	}
	if err := store.SetVerdict(ctx, 1, annotations.VerdictPass, "ok"); err != nil {
		t.Fatalf("SetVerdict failed: %v", err)
	}
	if err := store.SetVerdict(ctx, 2, annotations.VerdictUnclear, ""); err != nil {
		t.Fatalf("SetVerdict failed: %v", err)
	}
	if err := store.SetStepVerdict(ctx, 3, 0, annotations.VerdictFail, "missed the button"); err != nil {
		t.Fatalf("SetStepVerdict failed: %v", err)
	}
	if err := store.SetOverride(ctx, 3, 0, events.Coordinate{X: 10, Y: 20}, nil); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := annotations.Open(opts, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	approved, err := reopened.ApprovedTasks(ctx)
	if err != nil {
		t.Fatalf("ApprovedTasks failed: %v", err)
	}
	if len(approved) != 2 || approved[0] != 1 || approved[1] != 3 {
		t.Fatalf("unexpected approved tasks: %v", approved)
	}
	steps, err := reopened.StepAnnotations(ctx, 3)
	if err != nil {
		t.Fatalf("StepAnnotations failed: %v", err)
	}
	if steps[0].Verdict != annotations.VerdictFail || steps[0].Justification != "missed the button" {
		t.Fatalf("unexpected step annotation: %#v", steps[0])
	}
	sum, err := reopened.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	want := annotations.Summary{Tasks: 3, Pass: 2, Unclear: 1, StepAnnotations: 1, Overrides: 1}
	if sum != want {
		t.Fatalf("unexpected summary: got %+v want %+v", sum, want)
	}
}

func TestSecondOpenFailsWhileLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustOpenStore(t, cfg, nil)

	_, err := annotations.Open(annotations.Options{StateDir: cfg.Paths.StateDir}, logging.NewNop())
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence failure for locked state dir, got %v", err)
	}
}

func TestOpenRequiresStateDir(t *testing.T) {
	_, err := annotations.Open(annotations.Options{}, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := annotations.Open(annotations.Options{StateDir: dir}, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, annotations.DatabaseFile))
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err = annotations.Open(annotations.Options{StateDir: dir}, logging.NewNop())
	if !errors.Is(err, annotations.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
