package annotator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/HaozheZhao/cua-annotation-tool/internal/actions"
	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/export"
	"github.com/HaozheZhao/cua-annotation-tool/internal/frames"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/roster"
)

// TaskView is everything a front end needs to review one task.
type TaskView struct {
	Task       roster.Task                `json:"task"`
	Annotation annotations.TaskAnnotation `json:"annotation"`
	VideoPath  string                     `json:"video_path"`
	Video      *frames.VideoInfo          `json:"video,omitempty"`
	Steps      []StepView                 `json:"steps"`
}

// StepView is one step with its effective coordinate and review state.
type StepView struct {
	Index         int                         `json:"index"`
	Action        string                      `json:"action"`
	Code          string                      `json:"code"`
	Description   string                      `json:"description,omitempty"`
	Justification string                      `json:"justification,omitempty"`
	StartTime     float64                     `json:"start_time"`
	Offset        float64                     `json:"video_offset"`
	Coordinate    *events.Coordinate          `json:"coordinate,omitempty"`
	Recorded      *events.Coordinate          `json:"recorded_coordinate,omitempty"`
	Overridden    bool                        `json:"overridden"`
	Review        *annotations.StepAnnotation `json:"review,omitempty"`
}

// LoadTask assembles the review view of a task. A malformed event log fails
// the whole call; partial trajectories are never returned.
func (s *Service) LoadTask(ctx context.Context, taskID int) (*TaskView, error) {
	task, err := s.task(taskID)
	if err != nil {
		return nil, err
	}
	traj, err := s.events.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ann, err := s.state.TaskAnnotation(ctx, taskID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.state.Overrides(ctx, taskID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.state.StepAnnotations(ctx, taskID)
	if err != nil {
		return nil, err
	}

	view := &TaskView{
		Task:       task,
		Annotation: ann,
		VideoPath:  traj.VideoPath,
		Steps:      make([]StepView, 0, traj.Len()),
	}
	if traj.VideoPath != "" {
		info, err := s.extractor.Info(ctx, traj.VideoPath)
		if err != nil {
			logging.WarnWithContext(s.logger, "video probe failed", "video_probe_failed",
				append(logging.ErrorAttrs(err),
					logging.Int(logging.FieldTaskID, taskID),
					logging.String(logging.FieldErrorHint, "check the recording with ffprobe"),
					logging.String(logging.FieldImpact, "frames for this task will fail to render"),
				)...,
			)
		} else {
			view.Video = &info
		}
	}

	for _, ev := range traj.Events {
		offset, err := traj.Offset(ev.Index, s.policy)
		if err != nil {
			return nil, err
		}
		step := StepView{
			Index:         ev.Index,
			Action:        ev.Action,
			Description:   ev.Description,
			Justification: ev.Justification,
			StartTime:     ev.StartTime,
			Offset:        offset.Seconds(),
			Coordinate:    ev.Coordinate,
			Recorded:      ev.Coordinate,
		}
		if o, ok := overrides[ev.Index]; ok {
			c := o.Coordinate()
			step.Coordinate = &c
			step.Overridden = true
		}
		if r, ok := reviews[ev.Index]; ok {
			step.Review = &r
		}
		step.Code = actions.Encode(ev, step.Coordinate)
		view.Steps = append(view.Steps, step)
	}
	return view, nil
}

// TaskStatus is one row of the session overview.
type TaskStatus struct {
	TaskID       int                 `json:"task_id"`
	Instruction  string              `json:"instruction"`
	WorkerName   string              `json:"worker_name,omitempty"`
	Verdict      annotations.Verdict `json:"verdict"`
	Scores       annotations.Scores  `json:"scores"`
	HasRecording bool                `json:"has_recording"`
	Exported     bool                `json:"exported"`
}

// Status lists every roster task in id order with its verdict.
func (s *Service) Status(ctx context.Context) ([]TaskStatus, error) {
	stored, err := s.state.TaskAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	byTask := make(map[int]annotations.TaskAnnotation, len(stored))
	for _, ann := range stored {
		byTask[ann.TaskID] = ann
	}

	ids := s.roster.IDs()
	out := make([]TaskStatus, 0, len(ids))
	for _, id := range ids {
		task, _ := s.roster.Get(id)
		ann := byTask[id]
		_, statErr := os.Stat(filepath.Join(s.cfg.Paths.OutputDir, export.TaskDirName(id), export.RecordFileName(id)))
		out = append(out, TaskStatus{
			TaskID:       id,
			Instruction:  task.Instruction,
			WorkerName:   task.WorkerName,
			Verdict:      ann.Verdict,
			Scores:       ann.Scores,
			HasRecording: s.events.Exists(id),
			Exported:     statErr == nil,
		})
	}
	return out, nil
}

// Summary returns the stored annotation counts.
func (s *Service) Summary(ctx context.Context) (annotations.Summary, error) {
	return s.state.Summary(ctx)
}
