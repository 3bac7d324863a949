package testsupport

import (
	"context"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
)

// StaticCatalog maps task ids to their step counts.
type StaticCatalog map[int]int

// Contains reports whether the task is listed.
func (c StaticCatalog) Contains(taskID int) bool {
	_, ok := c[taskID]
	return ok
}

// StepCount returns the listed step count.
func (c StaticCatalog) StepCount(_ context.Context, taskID int) (int, error) {
	return c[taskID], nil
}

// MustOpenStore opens an annotations.Store in the config's state directory
// and registers cleanup. A nil catalog disables id validation.
func MustOpenStore(t testing.TB, cfg *config.Config, catalog annotations.Catalog) *annotations.Store {
	t.Helper()

	store, err := annotations.Open(annotations.Options{StateDir: cfg.Paths.StateDir, Catalog: catalog}, logging.NewNop())
	if err != nil {
		t.Fatalf("annotations.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Approve marks a task as passed.
func Approve(t testing.TB, store *annotations.Store, taskID int) {
	t.Helper()

	if err := store.SetVerdict(context.Background(), taskID, annotations.VerdictPass, "looks right"); err != nil {
		t.Fatalf("store.SetVerdict: %v", err)
	}
}
