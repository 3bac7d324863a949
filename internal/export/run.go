package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HaozheZhao/cua-annotation-tool/internal/fileutil"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

const (
	ManifestFile = "manifest.json"
	SnapshotDir  = "annotations"
)

// Manifest describes one ExportAll run.
type Manifest struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Exported    []int     `json:"exported"`
	Failures    []Failure `json:"failures,omitempty"`
	Removed     []int     `json:"removed,omitempty"`
	Combined    string    `json:"combined,omitempty"`
	Archive     string    `json:"archive,omitempty"`
	Cancelled   bool      `json:"cancelled,omitempty"`
}

// Failure records a task that could not be exported in a run.
type Failure struct {
	TaskID int    `json:"task_id"`
	Step   *int   `json:"step,omitempty"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func newFailure(taskID int, err error) Failure {
	f := Failure{TaskID: taskID, Kind: services.Kind(err), Error: err.Error()}
	if _, step, ok := services.StepOf(err); ok && step >= 0 {
		f.Step = &step
	}
	return f
}

// ExportAll exports every approved task in ascending id order, then writes
// the combined JSON, the manifest, annotation snapshots and the archive.
// A failing task is recorded in the manifest and skipped. Cancellation is
// checked between tasks: folders finished before it are kept, nothing else
// is written, and the partial manifest is returned with the context error.
func (a *Assembler) ExportAll(ctx context.Context) (*Manifest, error) {
	ctx = services.WithNewRequestID(ctx)
	manifest := &Manifest{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Exported:    []int{},
	}
	approved, err := a.state.ApprovedTasks(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("export run started",
		logging.String("run_id", manifest.RunID),
		logging.Int("approved_tasks", len(approved)),
	)

	records := make([]*Record, 0, len(approved))
	for _, taskID := range approved {
		if err := ctx.Err(); err != nil {
			manifest.Cancelled = true
			break
		}
		record, err := a.ExportTask(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				manifest.Cancelled = true
				break
			}
			manifest.Failures = append(manifest.Failures, newFailure(taskID, err))
			continue
		}
		manifest.Exported = append(manifest.Exported, taskID)
		records = append(records, record)
	}
	if manifest.Cancelled {
		logging.WarnWithContext(a.logger, "export run cancelled", "export_cancelled",
			logging.String("run_id", manifest.RunID),
			logging.Int("exported", len(manifest.Exported)),
			logging.String(logging.FieldErrorHint, "run the export again to produce the archive"),
			logging.String(logging.FieldImpact, "combined JSON and archive were not updated"),
		)
		return manifest, ctx.Err()
	}

	removed, err := a.removeStale(approved)
	if err != nil {
		return nil, err
	}
	manifest.Removed = removed

	combinedPath := filepath.Join(a.opts.OutputDir, a.opts.CombinedName)
	if err := fileutil.WriteJSONAtomic(combinedPath, records); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "write combined json", combinedPath, err)
	}
	manifest.Combined = a.opts.CombinedName

	snapshotDir := filepath.Join(a.opts.OutputDir, SnapshotDir)
	if _, err := a.state.WriteSnapshot(ctx, snapshotDir); err != nil {
		return nil, err
	}

	manifest.Archive = a.opts.ArchiveName
	if err := fileutil.WriteJSONAtomic(filepath.Join(a.opts.OutputDir, ManifestFile), manifest); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "write manifest", "", err)
	}

	entries := []string{a.opts.CombinedName, ManifestFile, SnapshotDir}
	for _, taskID := range manifest.Exported {
		entries = append(entries, TaskDirName(taskID))
	}
	archivePath := filepath.Join(a.opts.OutputDir, a.opts.ArchiveName)
	if err := writeArchive(archivePath, a.opts.OutputDir, entries); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "write archive", archivePath, err)
	}

	attrs := []logging.Attr{
		logging.String("run_id", manifest.RunID),
		logging.Int("exported", len(manifest.Exported)),
		logging.Int("failed", len(manifest.Failures)),
		logging.Int("removed", len(manifest.Removed)),
		logging.String("archive_path", archivePath),
	}
	if len(manifest.Failures) > 0 {
		logging.WarnWithContext(a.logger, "export run finished with failures", "export_partial",
			append(attrs,
				logging.String(logging.FieldErrorHint, "see manifest.json failures for task, step and reason"),
				logging.String(logging.FieldImpact, "failed tasks are missing from the archive"),
			)...,
		)
	} else {
		a.logger.Info("export run finished", logging.Args(attrs...)...)
	}
	return manifest, nil
}

// removeStale deletes task folders of tasks that are no longer approved and
// leftover staging folders. Folders of approved tasks that failed this run
// are kept.
func (a *Assembler) removeStale(approved []int) ([]int, error) {
	entries, err := os.ReadDir(a.opts.OutputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "scan output dir", a.opts.OutputDir, err)
	}
	var removed []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".task_") && strings.HasSuffix(name, ".tmp") {
			_ = os.RemoveAll(filepath.Join(a.opts.OutputDir, name))
			continue
		}
		idText, ok := strings.CutPrefix(name, "task_")
		if !ok {
			continue
		}
		taskID, err := strconv.Atoi(idText)
		if err != nil || slices.Contains(approved, taskID) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.opts.OutputDir, name)); err != nil {
			return removed, services.Wrap(services.ErrPersistence, "export", "remove stale task folder", name, err)
		}
		removed = append(removed, taskID)
	}
	slices.Sort(removed)
	return removed, nil
}
