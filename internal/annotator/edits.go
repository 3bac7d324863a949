package annotator

import (
	"context"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/export"
)

// SetOverride replaces the coordinate of a step for rendering and export.
// The recorded coordinate is kept as the override's original.
func (s *Service) SetOverride(ctx context.Context, taskID, step int, coord events.Coordinate) error {
	traj, err := s.trajectory(ctx, taskID)
	if err != nil {
		return err
	}
	ev, ok := traj.Step(step)
	if !ok {
		return stepOutOfRange(taskID, step, traj.Len())
	}
	return s.state.SetOverride(ctx, taskID, step, coord, ev.Coordinate)
}

// ClearOverride reverts a step to its recorded coordinate.
func (s *Service) ClearOverride(ctx context.Context, taskID, step int) error {
	return s.state.ClearOverride(ctx, taskID, step)
}

// SetVerdict records the task verdict. verdict is pass, fail, unclear or
// empty to unset.
func (s *Service) SetVerdict(ctx context.Context, taskID int, verdict, reason string) error {
	v, err := annotations.ParseVerdict(verdict)
	if err != nil {
		return err
	}
	return s.state.SetVerdict(ctx, taskID, v, reason)
}

// SetScores updates the non-nil score dimensions of a task.
func (s *Service) SetScores(ctx context.Context, taskID int, scores annotations.Scores) error {
	return s.state.SetScores(ctx, taskID, scores)
}

// SetStepVerdict records a per-step verdict and justification.
func (s *Service) SetStepVerdict(ctx context.Context, taskID, step int, verdict, justification string) error {
	v, err := annotations.ParseVerdict(verdict)
	if err != nil {
		return err
	}
	return s.state.SetStepVerdict(ctx, taskID, step, v, justification)
}

// ExportTask exports one approved task.
func (s *Service) ExportTask(ctx context.Context, taskID int) (*export.Record, error) {
	return s.assembler.ExportTask(ctx, taskID)
}

// ExportAll exports every approved task and bundles the archive.
func (s *Service) ExportAll(ctx context.Context) (*export.Manifest, error) {
	return s.assembler.ExportAll(ctx)
}

// WriteSnapshot writes the annotation snapshot files into dir.
func (s *Service) WriteSnapshot(ctx context.Context, dir string) ([]string, error) {
	return s.state.WriteSnapshot(ctx, dir)
}

// ImportSnapshot rebuilds annotation state from snapshot files in dir.
func (s *Service) ImportSnapshot(ctx context.Context, dir string) (annotations.ImportReport, error) {
	return s.state.ImportSnapshot(ctx, dir)
}
