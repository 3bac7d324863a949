package annotations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// SetVerdict records the task verdict and pass reason. Scores are left as
// they are.
func (s *Store) SetVerdict(ctx context.Context, taskID int, verdict Verdict, reason string) error {
	if err := s.checkTask(taskID, "set verdict"); err != nil {
		return err
	}
	verdict, err := ParseVerdict(string(verdict))
	if err != nil {
		return err
	}
	err = s.write(ctx, "set verdict", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_annotations (task_id, verdict, pass_reason, updated_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(task_id) DO UPDATE SET
                 verdict = excluded.verdict,
                 pass_reason = excluded.pass_reason,
                 updated_at = excluded.updated_at`,
			taskID, string(verdict), reason, s.timestamp(),
		)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("task verdict recorded",
		logging.Int(logging.FieldTaskID, taskID),
		logging.String("verdict", verdict.String()),
	)
	return nil
}

// SetScores updates the dimensions that are non-nil in scores. A zero value
// clears that dimension; nil dimensions keep their stored value.
func (s *Store) SetScores(ctx context.Context, taskID int, scores Scores) error {
	if err := s.checkTask(taskID, "set scores"); err != nil {
		return err
	}
	if err := scores.Validate(); err != nil {
		return &services.StepError{Marker: services.ErrValidation, TaskID: taskID, Step: services.NoStep, Op: "set scores", Err: err}
	}
	if scores.Empty() {
		return nil
	}
	err := s.write(ctx, "set scores", func(tx *sql.Tx) error {
		stamp := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_annotations (task_id, updated_at) VALUES (?, ?)
             ON CONFLICT(task_id) DO UPDATE SET updated_at = excluded.updated_at`,
			taskID, stamp,
		); err != nil {
			return err
		}
		for _, f := range scores.fields() {
			if f.value == nil {
				continue
			}
			// Column names come from the fixed scoreField list.
			query := fmt.Sprintf("UPDATE task_annotations SET %s = ? WHERE task_id = ?", f.column)
			if _, err := tx.ExecContext(ctx, query, nullableInt(f.value), taskID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("task scores recorded", logging.Int(logging.FieldTaskID, taskID))
	return nil
}

// TaskAnnotation returns the stored evaluation for a task. A task without
// any stored state yields a zero annotation with the task id set.
func (s *Store) TaskAnnotation(ctx context.Context, taskID int) (TaskAnnotation, error) {
	if err := s.checkTask(taskID, "get annotation"); err != nil {
		return TaskAnnotation{}, err
	}
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM task_annotations WHERE task_id = ?`, taskID)
	ann, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskAnnotation{TaskID: taskID}, nil
	}
	if err != nil {
		return TaskAnnotation{}, persistenceError("get annotation", err)
	}
	return ann, nil
}

// TaskAnnotations returns every stored task evaluation ordered by task id.
func (s *Store) TaskAnnotations(ctx context.Context) ([]TaskAnnotation, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM task_annotations ORDER BY task_id`)
	if err != nil {
		return nil, persistenceError("list annotations", err)
	}
	defer rows.Close()
	var out []TaskAnnotation
	for rows.Next() {
		ann, err := scanTask(rows)
		if err != nil {
			return nil, persistenceError("list annotations", err)
		}
		out = append(out, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list annotations", err)
	}
	return out, nil
}

// ApprovedTasks returns the ids whose verdict is pass, ascending.
func (s *Store) ApprovedTasks(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT task_id FROM task_annotations WHERE verdict = ? ORDER BY task_id`, string(VerdictPass))
	if err != nil {
		return nil, persistenceError("list approved", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, persistenceError("list approved", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list approved", err)
	}
	return ids, nil
}

// SetStepVerdict records a per-step verdict and justification.
func (s *Store) SetStepVerdict(ctx context.Context, taskID, step int, verdict Verdict, justification string) error {
	if err := s.checkStep(ctx, taskID, step, "set step verdict"); err != nil {
		return err
	}
	verdict, err := ParseVerdict(string(verdict))
	if err != nil {
		return err
	}
	return s.write(ctx, "set step verdict", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO step_annotations (task_id, step, verdict, justification, updated_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(task_id, step) DO UPDATE SET
                 verdict = excluded.verdict,
                 justification = excluded.justification,
                 updated_at = excluded.updated_at`,
			taskID, step, string(verdict), justification, s.timestamp(),
		)
		return err
	})
}

// StepAnnotations returns the per-step verdicts of a task keyed by step.
func (s *Store) StepAnnotations(ctx context.Context, taskID int) (map[int]StepAnnotation, error) {
	if err := s.checkTask(taskID, "get step annotations"); err != nil {
		return nil, err
	}
	all, err := s.queryStepAnnotations(ctx, `WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]StepAnnotation, len(all))
	for _, ann := range all {
		out[ann.Step] = ann
	}
	return out, nil
}

func (s *Store) queryStepAnnotations(ctx context.Context, where string, args ...any) ([]StepAnnotation, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT task_id, step, verdict, justification, updated_at FROM step_annotations `+where+` ORDER BY task_id, step`, args...)
	if err != nil {
		return nil, persistenceError("list step annotations", err)
	}
	defer rows.Close()
	var out []StepAnnotation
	for rows.Next() {
		var (
			ann     StepAnnotation
			verdict string
			updated sql.NullString
		)
		if err := rows.Scan(&ann.TaskID, &ann.Step, &verdict, &ann.Justification, &updated); err != nil {
			return nil, persistenceError("list step annotations", err)
		}
		ann.Verdict = Verdict(verdict)
		ann.UpdatedAt = parseTimestamp(updated)
		out = append(out, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list step annotations", err)
	}
	return out, nil
}

// SetOverride stores an adjusted coordinate for a step. original is the
// recorded coordinate; once a step has an override its first recorded
// original is kept across later adjustments.
func (s *Store) SetOverride(ctx context.Context, taskID, step int, coord events.Coordinate, original *events.Coordinate) error {
	if err := s.checkStep(ctx, taskID, step, "set override"); err != nil {
		return err
	}
	if coord.X < 0 || coord.Y < 0 {
		return &services.StepError{
			Marker: services.ErrValidation,
			TaskID: taskID,
			Step:   step,
			Op:     "set override",
			Err:    fmt.Errorf("coordinate (%d, %d) must be non-negative", coord.X, coord.Y),
		}
	}
	var origX, origY any
	if original != nil {
		origX, origY = original.X, original.Y
	}
	err := s.write(ctx, "set override", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO coordinate_overrides (task_id, step, x, y, original_x, original_y, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(task_id, step) DO UPDATE SET
                 x = excluded.x,
                 y = excluded.y,
                 original_x = COALESCE(coordinate_overrides.original_x, excluded.original_x),
                 original_y = COALESCE(coordinate_overrides.original_y, excluded.original_y),
                 updated_at = excluded.updated_at`,
			taskID, step, coord.X, coord.Y, origX, origY, s.timestamp(),
		)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("coordinate override recorded",
		logging.Int(logging.FieldTaskID, taskID),
		logging.Int(logging.FieldStep, step),
		logging.Int("x", coord.X),
		logging.Int("y", coord.Y),
	)
	return nil
}

// GetOverride returns the override for a step, if any.
func (s *Store) GetOverride(ctx context.Context, taskID, step int) (*Override, error) {
	if err := s.checkStep(ctx, taskID, step, "get override"); err != nil {
		return nil, err
	}
	list, err := s.queryOverrides(ctx, `WHERE task_id = ? AND step = ?`, taskID, step)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// ClearOverride removes a step's override so exports fall back to the
// recorded coordinate. Clearing a step without an override is a no-op.
func (s *Store) ClearOverride(ctx context.Context, taskID, step int) error {
	if err := s.checkStep(ctx, taskID, step, "clear override"); err != nil {
		return err
	}
	err := s.write(ctx, "clear override", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM coordinate_overrides WHERE task_id = ? AND step = ?`, taskID, step)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("coordinate override cleared",
		logging.Int(logging.FieldTaskID, taskID),
		logging.Int(logging.FieldStep, step),
	)
	return nil
}

// Overrides returns a task's overrides keyed by step.
func (s *Store) Overrides(ctx context.Context, taskID int) (map[int]Override, error) {
	if err := s.checkTask(taskID, "list overrides"); err != nil {
		return nil, err
	}
	list, err := s.queryOverrides(ctx, `WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]Override, len(list))
	for _, o := range list {
		out[o.Step] = o
	}
	return out, nil
}

func (s *Store) queryOverrides(ctx context.Context, where string, args ...any) ([]Override, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT task_id, step, x, y, original_x, original_y, updated_at FROM coordinate_overrides `+where+` ORDER BY task_id, step`, args...)
	if err != nil {
		return nil, persistenceError("list overrides", err)
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var (
			o            Override
			origX, origY sql.NullInt64
			updated      sql.NullString
		)
		if err := rows.Scan(&o.TaskID, &o.Step, &o.X, &o.Y, &origX, &origY, &updated); err != nil {
			return nil, persistenceError("list overrides", err)
		}
		if origX.Valid && origY.Valid {
			o.Original = &events.Coordinate{X: int(origX.Int64), Y: int(origY.Int64)}
		}
		o.UpdatedAt = parseTimestamp(updated)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list overrides", err)
	}
	return out, nil
}

// Summary counts stored verdicts, step annotations and overrides.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	var sum Summary
	rows, err := s.db.QueryContext(ctx, `SELECT verdict, COUNT(1) FROM task_annotations GROUP BY verdict`)
	if err != nil {
		return Summary{}, persistenceError("summary", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			verdict string
			count   int
		)
		if err := rows.Scan(&verdict, &count); err != nil {
			return Summary{}, persistenceError("summary", err)
		}
		sum.Tasks += count
		switch Verdict(verdict) {
		case VerdictPass:
			sum.Pass = count
		case VerdictFail:
			sum.Fail = count
		case VerdictUnclear:
			sum.Unclear = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, persistenceError("summary", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM step_annotations`).Scan(&sum.StepAnnotations); err != nil {
		return Summary{}, persistenceError("summary", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM coordinate_overrides`).Scan(&sum.Overrides); err != nil {
		return Summary{}, persistenceError("summary", err)
	}
	return sum, nil
}

const taskColumns = "task_id, verdict, pass_reason, correctness, difficulty, knowledge_richness, task_value, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (TaskAnnotation, error) {
	var (
		ann                                  TaskAnnotation
		verdict                              string
		correctness, difficulty, rich, value sql.NullInt64
		updated                              sql.NullString
	)
	if err := scanner.Scan(&ann.TaskID, &verdict, &ann.PassReason, &correctness, &difficulty, &rich, &value, &updated); err != nil {
		return TaskAnnotation{}, err
	}
	ann.Verdict = Verdict(verdict)
	ann.Scores = Scores{
		Correctness:       intPtr(correctness),
		Difficulty:        intPtr(difficulty),
		KnowledgeRichness: intPtr(rich),
		TaskValue:         intPtr(value),
	}
	ann.UpdatedAt = parseTimestamp(updated)
	return ann, nil
}
