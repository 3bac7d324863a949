package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/HaozheZhao/cua-annotation-tool/internal/actions"
	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/fileutil"
	"github.com/HaozheZhao/cua-annotation-tool/internal/frames"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/overlay"
	"github.com/HaozheZhao/cua-annotation-tool/internal/roster"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// Tasks resolves roster entries.
type Tasks interface {
	Get(id int) (roster.Task, bool)
}

// Trajectories loads a task's events.
type Trajectories interface {
	Load(ctx context.Context, taskID int) (*events.Trajectory, error)
}

// Frames extracts one step's frame.
type Frames interface {
	Extract(ctx context.Context, req frames.Request) (image.Image, error)
}

// State is the subset of the annotation store the assembler reads.
type State interface {
	TaskAnnotation(ctx context.Context, taskID int) (annotations.TaskAnnotation, error)
	StepAnnotations(ctx context.Context, taskID int) (map[int]annotations.StepAnnotation, error)
	Overrides(ctx context.Context, taskID int) (map[int]annotations.Override, error)
	ApprovedTasks(ctx context.Context) ([]int, error)
	WriteSnapshot(ctx context.Context, dir string) ([]string, error)
}

// Options configures an Assembler.
type Options struct {
	OutputDir    string
	Workers      int
	Policy       timeline.Policy
	Overlay      bool
	Style        overlay.Style
	ArchiveName  string
	CombinedName string
}

// Assembler joins roster, events, frames and annotation state into export
// records.
type Assembler struct {
	opts   Options
	tasks  Tasks
	events Trajectories
	frames Frames
	state  State
	logger *slog.Logger
}

// NewAssembler constructs an assembler. Zero option values fall back to one
// worker, the start capture policy and the default file names.
func NewAssembler(opts Options, tasks Tasks, trajectories Trajectories, extractor Frames, state State, logger *slog.Logger) *Assembler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Policy == "" {
		opts.Policy = timeline.PolicyStart
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = "export.zip"
	}
	if opts.CombinedName == "" {
		opts.CombinedName = "all_tasks.json"
	}
	return &Assembler{
		opts:   opts,
		tasks:  tasks,
		events: trajectories,
		frames: extractor,
		state:  state,
		logger: logging.NewComponentLogger(logger, "export"),
	}
}

// OutputDir returns the export root.
func (a *Assembler) OutputDir() string {
	return a.opts.OutputDir
}

// ExportTask renders an approved task into task_<id>/ under the output
// directory. Tasks whose verdict is not pass fail with NotApproved before
// any file is touched. Any step failure aborts the task and leaves an
// earlier export of the same task in place.
func (a *Assembler) ExportTask(ctx context.Context, taskID int) (*Record, error) {
	ctx = services.WithTaskID(ctx, taskID)
	task, ok := a.tasks.Get(taskID)
	if !ok {
		return nil, &services.StepError{Marker: services.ErrUnknownTask, TaskID: taskID, Step: services.NoStep, Op: "export"}
	}
	ann, err := a.state.TaskAnnotation(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if ann.Verdict != annotations.VerdictPass {
		return nil, &services.StepError{
			Marker: services.ErrNotApproved,
			TaskID: taskID,
			Step:   services.NoStep,
			Op:     "export",
			Err:    fmt.Errorf("verdict is %s", ann.Verdict),
		}
	}

	traj, err := a.events.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	overrides, err := a.state.Overrides(ctx, taskID)
	if err != nil {
		return nil, err
	}
	reviews, err := a.state.StepAnnotations(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.opts.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "create output dir", a.opts.OutputDir, err)
	}
	staging := filepath.Join(a.opts.OutputDir, stagingDirName(taskID))
	if err := os.RemoveAll(staging); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "clear staging dir", staging, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "create staging dir", staging, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	steps := make([]Step, traj.Len())
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.opts.Workers)
	for i := range traj.Events {
		ev := traj.Events[i]
		var override *annotations.Override
		if o, ok := overrides[i]; ok {
			override = &o
		}
		var review *StepReview
		if r, ok := reviews[i]; ok && (r.Verdict != annotations.VerdictUnset || r.Justification != "") {
			review = &StepReview{Verdict: string(r.Verdict), Justification: r.Justification}
		}
		group.Go(func() error {
			step, err := a.renderStep(groupCtx, traj, ev, override, staging)
			if err != nil {
				return err
			}
			step.Review = review
			steps[i] = step
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		logging.WarnWithContext(a.logger, "task export aborted", "export_task_failed",
			append(logging.ErrorAttrs(err),
				logging.String(logging.FieldErrorHint, "fix the named step's recording or log, then export again"),
				logging.String(logging.FieldImpact, "previous export of this task left unchanged"),
			)...,
		)
		return nil, err
	}

	record := &Record{
		TaskID:      taskID,
		Instruction: task.Instruction,
		Evaluation:  newEvaluation(ann),
		Trajectory:  steps,
	}
	if err := fileutil.WriteJSONAtomic(filepath.Join(staging, RecordFileName(taskID)), record); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "write task record", "", err)
	}
	final := filepath.Join(a.opts.OutputDir, TaskDirName(taskID))
	if err := fileutil.ReplaceDir(staging, final); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "export", "publish task folder", final, err)
	}
	committed = true

	a.logger.Info("task exported",
		logging.Int(logging.FieldTaskID, taskID),
		logging.Int("steps", len(steps)),
		logging.Int("adjusted_steps", len(overrides)),
		logging.String("task_dir", final),
	)
	return record, nil
}

func (a *Assembler) renderStep(ctx context.Context, traj *events.Trajectory, ev events.Event, override *annotations.Override, staging string) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	coord := ev.Coordinate
	if override != nil {
		c := override.Coordinate()
		coord = &c
	}

	offset, err := traj.Offset(ev.Index, a.opts.Policy)
	if err != nil {
		marker := services.ErrNegativeOffset
		if errors.Is(err, services.ErrMalformedEventLog) {
			marker = services.ErrMalformedEventLog
		}
		return Step{}, pinStep(err, traj.TaskID, ev.Index, marker, "align")
	}
	img, err := a.frames.Extract(ctx, frames.Request{
		TaskID:    traj.TaskID,
		Step:      ev.Index,
		VideoPath: traj.VideoPath,
		Offset:    offset,
	})
	if err != nil {
		return Step{}, err
	}
	if a.opts.Overlay && coord != nil {
		pt := coord.Point()
		img = overlay.Overlay(img, &pt, a.opts.Style)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Step{}, pinStep(err, traj.TaskID, ev.Index, services.ErrDecodeFailure, "encode png")
	}
	name := ScreenshotName(ev.Index)
	if err := os.WriteFile(filepath.Join(staging, name), buf.Bytes(), 0o644); err != nil {
		return Step{}, pinStep(err, traj.TaskID, ev.Index, services.ErrPersistence, "write screenshot")
	}

	step := Step{
		Index:          ev.Index,
		Action:         actions.Encode(ev, coord),
		ScreenshotPath: path.Join(TaskDirName(traj.TaskID), name),
		Justification:  ev.Justification,
		Description:    ev.Description,
		Coordinate:     coord,
		Adjusted:       override != nil,
		VideoOffset:    offset.Seconds(),
	}
	return step, nil
}

// pinStep attaches task and step to an error that does not already carry them.
func pinStep(err error, taskID, step int, marker error, op string) error {
	var stepErr *services.StepError
	if errors.As(err, &stepErr) {
		return err
	}
	return &services.StepError{Marker: marker, TaskID: taskID, Step: step, Op: op, Err: err}
}
