package annotations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/HaozheZhao/cua-annotation-tool/internal/fileutil"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// Snapshot file names, matching the files the browser tool wrote.
const (
	TasksSnapshotFile     = "annotations.json"
	StepsSnapshotFile     = "step_annotations.json"
	OverridesSnapshotFile = "coordinate_adjustments.json"
)

type snapshotTask struct {
	Mark       string `json:"mark"`
	PassReason string `json:"pass_reason"`
	Scores     Scores `json:"scores"`
}

type snapshotStep struct {
	Mark          string `json:"mark"`
	Justification string `json:"justification"`
}

type snapshotPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type snapshotOverride struct {
	TaskID    string         `json:"task_id"`
	StepIndex int            `json:"step_index"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Original  *snapshotPoint `json:"original,omitempty"`
}

// ImportReport summarizes an ImportSnapshot run.
type ImportReport struct {
	Tasks     int      `json:"tasks"`
	Steps     int      `json:"steps"`
	Overrides int      `json:"overrides"`
	Skipped   []string `json:"skipped,omitempty"`
}

// WriteSnapshot writes the three snapshot files into dir and returns their
// paths. Output is deterministic for a given database state.
func (s *Store) WriteSnapshot(ctx context.Context, dir string) ([]string, error) {
	tasks, err := s.TaskAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := s.queryStepAnnotations(ctx, "")
	if err != nil {
		return nil, err
	}
	overrides, err := s.queryOverrides(ctx, "")
	if err != nil {
		return nil, err
	}

	taskDoc := make(map[string]snapshotTask, len(tasks))
	for _, ann := range tasks {
		taskDoc[strconv.Itoa(ann.TaskID)] = snapshotTask{
			Mark:       string(ann.Verdict),
			PassReason: ann.PassReason,
			Scores:     ann.Scores,
		}
	}
	stepDoc := make(map[string]snapshotStep, len(steps))
	for _, ann := range steps {
		stepDoc[stepKey(ann.TaskID, ann.Step)] = snapshotStep{
			Mark:          string(ann.Verdict),
			Justification: ann.Justification,
		}
	}
	overrideDoc := make(map[string]snapshotOverride, len(overrides))
	for _, o := range overrides {
		entry := snapshotOverride{
			TaskID:    strconv.Itoa(o.TaskID),
			StepIndex: o.Step,
			X:         float64(o.X),
			Y:         float64(o.Y),
		}
		if o.Original != nil {
			x, y := float64(o.Original.X), float64(o.Original.Y)
			entry.Original = &snapshotPoint{X: &x, Y: &y}
		}
		overrideDoc[stepKey(o.TaskID, o.Step)] = entry
	}

	docs := []struct {
		name string
		doc  any
	}{
		{TasksSnapshotFile, taskDoc},
		{StepsSnapshotFile, stepDoc},
		{OverridesSnapshotFile, overrideDoc},
	}
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		path := filepath.Join(dir, d.name)
		if err := fileutil.WriteJSONAtomic(path, d.doc); err != nil {
			return nil, persistenceError("write snapshot", err)
		}
		paths = append(paths, path)
	}
	s.logger.Debug("annotation snapshot written", logging.String("snapshot_dir", dir))
	return paths, nil
}

// ImportSnapshot replaces the database contents with the snapshot files in
// dir. Missing files count as empty. Entries that reference tasks outside
// the catalog or carry invalid values are skipped and listed in the report.
// The replacement happens in one transaction.
func (s *Store) ImportSnapshot(ctx context.Context, dir string) (ImportReport, error) {
	var (
		report    ImportReport
		taskDoc   map[string]snapshotTask
		stepDoc   map[string]snapshotStep
		overrides map[string]snapshotOverride
	)
	if err := readSnapshotFile(filepath.Join(dir, TasksSnapshotFile), &taskDoc); err != nil {
		return report, err
	}
	if err := readSnapshotFile(filepath.Join(dir, StepsSnapshotFile), &stepDoc); err != nil {
		return report, err
	}
	if err := readSnapshotFile(filepath.Join(dir, OverridesSnapshotFile), &overrides); err != nil {
		return report, err
	}

	skip := func(file, key, reason string) {
		report.Skipped = append(report.Skipped, fmt.Sprintf("%s[%s]: %s", file, key, reason))
	}
	known := func(taskID int) bool {
		return s.catalog == nil || s.catalog.Contains(taskID)
	}
	stepCounts, err := s.snapshotStepCounts(ctx, known, sortedKeys(stepDoc), sortedKeys(overrides))
	if err != nil {
		return report, err
	}
	// stepProblem mirrors checkStep for entries keyed by <task>_<step>.
	stepProblem := func(taskID, step int) string {
		if !known(taskID) {
			return "unknown task"
		}
		if s.catalog == nil {
			return ""
		}
		count, ok := stepCounts[taskID]
		if !ok {
			return "step count unavailable"
		}
		if step >= count {
			return fmt.Sprintf("unknown step (task has %d steps)", count)
		}
		return ""
	}

	stamp := s.timestamp()
	err = s.write(ctx, "import snapshot", func(tx *sql.Tx) error {
		report = ImportReport{}
		for _, table := range []string{"task_annotations", "step_annotations", "coordinate_overrides"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}

		for _, key := range sortedKeys(taskDoc) {
			entry := taskDoc[key]
			taskID, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				skip(TasksSnapshotFile, key, "task id is not an integer")
				continue
			}
			if !known(taskID) {
				skip(TasksSnapshotFile, key, "unknown task")
				continue
			}
			verdict, err := ParseVerdict(entry.Mark)
			if err != nil {
				skip(TasksSnapshotFile, key, err.Error())
				continue
			}
			if err := entry.Scores.Validate(); err != nil {
				skip(TasksSnapshotFile, key, err.Error())
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO task_annotations (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				taskID, string(verdict), entry.PassReason,
				nullableInt(entry.Scores.Correctness), nullableInt(entry.Scores.Difficulty),
				nullableInt(entry.Scores.KnowledgeRichness), nullableInt(entry.Scores.TaskValue),
				stamp,
			); err != nil {
				return err
			}
			report.Tasks++
		}

		for _, key := range sortedKeys(stepDoc) {
			entry := stepDoc[key]
			taskID, step, ok := parseStepKey(key)
			if !ok {
				skip(StepsSnapshotFile, key, "key is not <task>_<step>")
				continue
			}
			if reason := stepProblem(taskID, step); reason != "" {
				skip(StepsSnapshotFile, key, reason)
				continue
			}
			verdict, err := ParseVerdict(entry.Mark)
			if err != nil {
				skip(StepsSnapshotFile, key, err.Error())
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO step_annotations (task_id, step, verdict, justification, updated_at) VALUES (?, ?, ?, ?, ?)`,
				taskID, step, string(verdict), entry.Justification, stamp,
			); err != nil {
				return err
			}
			report.Steps++
		}

		for _, key := range sortedKeys(overrides) {
			entry := overrides[key]
			taskID, step, ok := parseStepKey(key)
			if !ok {
				skip(OverridesSnapshotFile, key, "key is not <task>_<step>")
				continue
			}
			if reason := stepProblem(taskID, step); reason != "" {
				skip(OverridesSnapshotFile, key, reason)
				continue
			}
			x, y := roundCoordinate(entry.X), roundCoordinate(entry.Y)
			if x < 0 || y < 0 {
				skip(OverridesSnapshotFile, key, "negative coordinate")
				continue
			}
			var origX, origY any
			if p := entry.Original; p != nil && p.X != nil && p.Y != nil {
				origX, origY = roundCoordinate(*p.X), roundCoordinate(*p.Y)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO coordinate_overrides (task_id, step, x, y, original_x, original_y, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				taskID, step, x, y, origX, origY, stamp,
			); err != nil {
				return err
			}
			report.Overrides++
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, err
	}

	if len(report.Skipped) > 0 {
		logging.WarnWithContext(s.logger, "snapshot entries skipped during import", "annotations_import_skipped",
			logging.Int("skipped", len(report.Skipped)),
			logging.String("snapshot_dir", dir),
			logging.String(logging.FieldErrorHint, "fix the listed entries in the snapshot and import again"),
			logging.String(logging.FieldImpact, "skipped entries are not in the database"),
		)
	}
	s.logger.Info("annotation snapshot imported",
		logging.Int("tasks", report.Tasks),
		logging.Int("steps", report.Steps),
		logging.Int("overrides", report.Overrides),
	)
	return report, nil
}

// snapshotStepCounts loads the step count of every known task referenced by
// the step keyed snapshot entries. Tasks whose events cannot be loaded are
// left out, so their entries are skipped.
func (s *Store) snapshotStepCounts(ctx context.Context, known func(int) bool, keySets ...[]string) (map[int]int, error) {
	counts := make(map[int]int)
	if s.catalog == nil {
		return counts, nil
	}
	failed := make(map[int]bool)
	for _, keys := range keySets {
		for _, key := range keys {
			taskID, _, ok := parseStepKey(key)
			if !ok || !known(taskID) || failed[taskID] {
				continue
			}
			if _, done := counts[taskID]; done {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			count, err := s.catalog.StepCount(ctx, taskID)
			if err != nil {
				s.logger.Debug("step count unavailable for snapshot import",
					logging.Int(logging.FieldTaskID, taskID),
					logging.Error(err),
				)
				failed[taskID] = true
				continue
			}
			counts[taskID] = count
		}
	}
	return counts, nil
}

func readSnapshotFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return persistenceError("read snapshot", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return services.Wrap(services.ErrValidation, "annotations", "read snapshot", filepath.Base(path), err)
	}
	return nil
}

func stepKey(taskID, step int) string {
	return strconv.Itoa(taskID) + "_" + strconv.Itoa(step)
}

func parseStepKey(key string) (int, int, bool) {
	taskPart, stepPart, ok := strings.Cut(strings.TrimSpace(key), "_")
	if !ok {
		return 0, 0, false
	}
	taskID, err := strconv.Atoi(taskPart)
	if err != nil {
		return 0, 0, false
	}
	step, err := strconv.Atoi(stepPart)
	if err != nil || step < 0 {
		return 0, 0, false
	}
	return taskID, step, true
}

func roundCoordinate(v float64) int {
	return int(math.Round(v))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
