package annotator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/export"
	"github.com/HaozheZhao/cua-annotation-tool/internal/frames"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/overlay"
	"github.com/HaozheZhao/cua-annotation-tool/internal/roster"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/staging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// Option customizes New.
type Option func(*options)

type options struct {
	opener frames.Opener
	roster *roster.Roster
}

// WithOpener replaces the ffmpeg frame backend.
func WithOpener(opener frames.Opener) Option {
	return func(o *options) { o.opener = opener }
}

// WithRoster supplies an already loaded roster instead of reading the CSV.
func WithRoster(r *roster.Roster) Option {
	return func(o *options) { o.roster = r }
}

// Service wires the annotation core together.
type Service struct {
	cfg       *config.Config
	roster    *roster.Roster
	rowErrors []roster.RowError
	events    *events.Store
	extractor *frames.Extractor
	state     *annotations.Store
	assembler *export.Assembler
	policy    timeline.Policy
	style     overlay.Style
	logger    *slog.Logger
}

// New loads the roster and opens the annotation store. The returned Service
// holds the state directory lock until Close.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "annotator", "init", "config is required", nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.NewComponentLogger(logger, "annotator")

	policy, err := timeline.ParsePolicy(cfg.Frames.CapturePolicy)
	if err != nil {
		return nil, err
	}
	style, err := overlayStyle(cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "annotator", "ensure directories", "", err)
	}

	tasks := o.roster
	var rowErrors []roster.RowError
	if tasks == nil {
		tasks, rowErrors, err = roster.Load(cfg.Paths.RosterCSV)
		if err != nil {
			return nil, err
		}
	}
	for _, rowErr := range rowErrors {
		logging.WarnWithContext(logger, "roster row skipped", "roster_row_skipped",
			logging.Int("line", rowErr.Line),
			logging.String("reason", rowErr.Reason),
			logging.String(logging.FieldErrorHint, "fix the row in the roster CSV"),
			logging.String(logging.FieldImpact, "task is hidden from the session"),
		)
	}

	eventStore := events.NewStore(events.Options{
		DataDir:    cfg.Paths.DataDir,
		VideoGlob:  cfg.Media.VideoGlob,
		ExcludeDir: cfg.Media.ExcludeDir,
	}, logger)

	opener := o.opener
	if opener == nil {
		opener = frames.NewFFmpegOpener(frames.FFmpegOptions{
			FFmpegBinary:  cfg.Media.FFmpegBinary,
			FFprobeBinary: cfg.Media.FFprobeBinary,
			SeekTimeout:   cfg.SeekTimeout(),
			ProbeTimeout:  cfg.ProbeTimeout(),
			FallbackFPS:   cfg.Frames.FallbackFPS,
		}, logger)
	}
	extractor := frames.NewExtractor(opener, cfg.Frames.CacheEntries, logger)

	state, err := annotations.Open(annotations.Options{
		StateDir: cfg.Paths.StateDir,
		Catalog:  catalog{roster: tasks, events: eventStore},
	}, logger)
	if err != nil {
		_ = extractor.Close()
		return nil, err
	}
	if cleaned := staging.Recover(context.Background(), cfg.Paths.OutputDir, 0, logger); len(cleaned.Errors) > 0 {
		logger.Debug("export leftovers not fully cleaned", logging.Int("errors", len(cleaned.Errors)))
	}

	assembler := export.NewAssembler(export.Options{
		OutputDir:    cfg.Paths.OutputDir,
		Workers:      cfg.Export.Workers,
		Policy:       policy,
		Overlay:      cfg.Overlay.Enabled,
		Style:        style,
		ArchiveName:  cfg.Export.ArchiveName,
		CombinedName: cfg.Export.CombinedName,
	}, tasks, eventStore, extractor, state, logger)

	logger.Debug("annotator ready",
		logging.Int("tasks", tasks.Len()),
		logging.Int("skipped_rows", len(rowErrors)),
		logging.String("capture_policy", string(policy)),
	)
	return &Service{
		cfg:       cfg,
		roster:    tasks,
		rowErrors: rowErrors,
		events:    eventStore,
		extractor: extractor,
		state:     state,
		assembler: assembler,
		policy:    policy,
		style:     style,
		logger:    logger,
	}, nil
}

func overlayStyle(cfg *config.Config) (overlay.Style, error) {
	c, err := overlay.ParseColor(cfg.Overlay.Color)
	if err != nil {
		return overlay.Style{}, services.Wrap(services.ErrConfiguration, "annotator", "overlay color", "", err)
	}
	return overlay.Style{Radius: cfg.Overlay.Radius, LineWidth: cfg.Overlay.LineWidth, Color: c}, nil
}

// Close releases video sources and the annotation store.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.extractor.Close(), s.state.Close())
}

// Roster returns the loaded roster.
func (s *Service) Roster() *roster.Roster { return s.roster }

// RosterErrors returns the rows skipped while loading the roster.
func (s *Service) RosterErrors() []roster.RowError { return s.rowErrors }

// FrameStats reports extraction cache activity.
func (s *Service) FrameStats() frames.Stats { return s.extractor.Stats() }

// catalog validates ids against the roster and the recorded events.
type catalog struct {
	roster *roster.Roster
	events *events.Store
}

func (c catalog) Contains(taskID int) bool {
	return c.roster.Contains(taskID)
}

func (c catalog) StepCount(ctx context.Context, taskID int) (int, error) {
	traj, err := c.events.Load(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return traj.Len(), nil
}

func (s *Service) task(taskID int) (roster.Task, error) {
	task, ok := s.roster.Get(taskID)
	if !ok {
		return roster.Task{}, &services.StepError{Marker: services.ErrUnknownTask, TaskID: taskID, Step: services.NoStep, Op: "lookup"}
	}
	return task, nil
}

func (s *Service) trajectory(ctx context.Context, taskID int) (*events.Trajectory, error) {
	if _, err := s.task(taskID); err != nil {
		return nil, err
	}
	return s.events.Load(ctx, taskID)
}

func stepOutOfRange(taskID, step, count int) error {
	return &services.StepError{
		Marker: services.ErrUnknownStep,
		TaskID: taskID,
		Step:   step,
		Op:     "lookup",
		Err:    fmt.Errorf("task has %d steps", count),
	}
}
