package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// File names inside a task folder.
const (
	MetadataFile     = "metadata.json"
	CompleteLogFile  = "reduced_events_complete.jsonl"
	DescriptionsFile = "reduced_events_vis.jsonl"
)

const maxLineBytes = 16 << 20

// Options locates task folders and their recordings.
type Options struct {
	DataDir    string
	VideoGlob  string
	ExcludeDir string
}

// Store loads trajectories from task folders under DataDir.
type Store struct {
	opts   Options
	logger *slog.Logger
}

// NewStore constructs a Store.
func NewStore(opts Options, logger *slog.Logger) *Store {
	if strings.TrimSpace(opts.VideoGlob) == "" {
		opts.VideoGlob = "*.mp4"
	}
	return &Store{opts: opts, logger: logging.NewComponentLogger(logger, "events")}
}

// TaskDir returns the folder holding taskID's inputs.
func (s *Store) TaskDir(taskID int) string {
	return filepath.Join(s.opts.DataDir, fmt.Sprint(taskID))
}

// Exists reports whether taskID has an event log on disk.
func (s *Store) Exists(taskID int) bool {
	info, err := os.Stat(filepath.Join(s.TaskDir(taskID), CompleteLogFile))
	return err == nil && !info.IsDir()
}

type rawCoordinate struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type rawInterval struct {
	Start *float64 `json:"start_time"`
	End   *float64 `json:"end_time"`
}

type rawEvent struct {
	Action        string         `json:"action"`
	StartTime     float64        `json:"start_time"`
	EndTime       *float64       `json:"end_time"`
	Coordinate    *rawCoordinate `json:"coordinate"`
	PreMove       *rawInterval   `json:"pre_move"`
	Justification *string        `json:"justification"`
	Description   *string        `json:"description"`
}

type metadata struct {
	VideoStartTimestamp *float64 `json:"video_start_timestamp"`
}

// Load reads and validates taskID's trajectory. Any malformed line, missing
// video-start reference, or event predating the recording fails the load.
func (s *Store) Load(ctx context.Context, taskID int) (*Trajectory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.TaskDir(taskID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &services.StepError{Marker: services.ErrNotFound, TaskID: taskID, Step: services.NoStep, Op: "task folder " + dir, Err: err}
	}

	videoStart, err := s.readMetadata(taskID, dir)
	if err != nil {
		return nil, err
	}

	evs, err := s.readEvents(taskID, filepath.Join(dir, CompleteLogFile))
	if err != nil {
		return nil, err
	}

	descriptions, err := s.readDescriptions(taskID, filepath.Join(dir, DescriptionsFile))
	if err != nil {
		return nil, err
	}
	for i := range evs {
		if i < len(descriptions) && descriptions[i] != nil {
			evs[i].Description = *descriptions[i]
		}
	}

	for i, ev := range evs {
		if _, err := timeline.ToFrameOffset(videoStart, ev.StartTime); err != nil {
			marker := services.ErrNegativeOffset
			if errors.Is(err, services.ErrMalformedEventLog) {
				marker = services.ErrMalformedEventLog
			}
			return nil, &services.StepError{
				Marker:    marker,
				TaskID:    taskID,
				Step:      i,
				Line:      i + 1,
				Timestamp: ev.StartTime,
				Offset:    ev.StartTime - videoStart,
				HasOffset: true,
				Op:        CompleteLogFile,
				Err:       err,
			}
		}
	}

	videoPath, err := s.findVideo(dir)
	if err != nil {
		return nil, err
	}
	if videoPath == "" {
		logging.WarnWithContext(s.logger, "task folder has no recording", "video_missing",
			logging.Int(logging.FieldTaskID, taskID),
			logging.String("task_dir", dir),
			logging.String(logging.FieldErrorHint, "add the screen recording to the task folder"),
			logging.String(logging.FieldImpact, "frames cannot be extracted for this task"),
		)
	}

	s.logger.Debug("trajectory loaded",
		logging.Int(logging.FieldTaskID, taskID),
		logging.Int("steps", len(evs)),
		logging.String("video_path", videoPath),
	)
	return &Trajectory{TaskID: taskID, VideoStart: videoStart, VideoPath: videoPath, Events: evs}, nil
}

func (s *Store) readMetadata(taskID int, dir string) (float64, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: MetadataFile, Err: errors.New("metadata.json missing; video_start_timestamp is required")}
		}
		return 0, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: MetadataFile, Err: err}
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: MetadataFile, Err: err}
	}
	if meta.VideoStartTimestamp == nil || math.IsNaN(*meta.VideoStartTimestamp) {
		return 0, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: MetadataFile, Err: errors.New("video_start_timestamp missing")}
	}
	return *meta.VideoStartTimestamp, nil
}

func (s *Store) readEvents(taskID int, path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		marker := services.ErrMalformedEventLog
		if errors.Is(err, os.ErrNotExist) {
			marker = services.ErrNotFound
		}
		return nil, &services.StepError{Marker: marker, TaskID: taskID, Step: services.NoStep, Op: CompleteLogFile, Err: err}
	}
	defer file.Close()

	var evs []Event
	err = scanLines(file, func(lineNo int, line []byte) error {
		ev, err := parseEvent(line)
		if err != nil {
			return &services.StepError{
				Marker: services.ErrMalformedEventLog,
				TaskID: taskID,
				Step:   len(evs),
				Line:   lineNo,
				Op:     CompleteLogFile,
				Err:    err,
			}
		}
		ev.Index = len(evs)
		evs = append(evs, ev)
		return nil
	})
	if err != nil {
		var stepErr *services.StepError
		if errors.As(err, &stepErr) {
			return nil, err
		}
		return nil, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: CompleteLogFile, Err: err}
	}
	return evs, nil
}

// readDescriptions returns the optional per-step display descriptions. A
// missing file is not an error.
func (s *Store) readDescriptions(taskID int, path string) ([]*string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: services.NoStep, Op: DescriptionsFile, Err: err}
	}
	defer file.Close()

	var out []*string
	err = scanLines(file, func(lineNo int, line []byte) error {
		var entry struct {
			Description *string `json:"description"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			return &services.StepError{Marker: services.ErrMalformedEventLog, TaskID: taskID, Step: len(out), Line: lineNo, Op: DescriptionsFile, Err: err}
		}
		out = append(out, entry.Description)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanLines calls fn for every non-blank line with its 1-based line number.
func scanLines(r io.Reader, fn func(lineNo int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseEvent(line []byte) (Event, error) {
	var instance any
	if err := json.Unmarshal(line, &instance); err != nil {
		return Event{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := validateLine(instance); err != nil {
		return Event{}, err
	}
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	ev := Event{
		Action:    strings.TrimSpace(raw.Action),
		StartTime: raw.StartTime,
		EndTime:   raw.StartTime,
	}
	if raw.EndTime != nil {
		ev.EndTime = *raw.EndTime
	}
	if raw.Justification != nil {
		ev.Justification = *raw.Justification
	}
	if raw.Description != nil {
		ev.Description = *raw.Description
	}
	if raw.PreMove != nil && (raw.PreMove.Start != nil || raw.PreMove.End != nil) {
		pm := &timeline.Interval{}
		if raw.PreMove.Start != nil {
			pm.Start = *raw.PreMove.Start
		}
		if raw.PreMove.End != nil {
			pm.End = *raw.PreMove.End
		}
		ev.PreMove = pm
	}
	ev.Coordinate = pointerCoordinate(ev.Action, raw.Coordinate)
	return ev, nil
}

// pointerCoordinate keeps a coordinate only for pointer actions with a
// non-origin point; recorders emit {0,0} for keyboard events.
func pointerCoordinate(action string, raw *rawCoordinate) *Coordinate {
	if raw == nil || raw.X == nil || raw.Y == nil {
		return nil
	}
	if action != ActionClick && action != ActionDrag {
		return nil
	}
	c := Coordinate{X: int(math.Round(*raw.X)), Y: int(math.Round(*raw.Y))}
	if c.X == 0 && c.Y == 0 {
		return nil
	}
	return &c
}

func (s *Store) findVideo(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, s.opts.VideoGlob))
	if err != nil {
		return "", fmt.Errorf("glob videos: %w", err)
	}
	slices.Sort(matches)
	for _, match := range matches {
		rel, err := filepath.Rel(dir, match)
		if err != nil {
			continue
		}
		if s.opts.ExcludeDir != "" && strings.Contains(rel, s.opts.ExcludeDir) {
			continue
		}
		if info, err := os.Stat(match); err == nil && info.Mode().IsRegular() {
			return match, nil
		}
	}
	return "", nil
}

func errStepRange(t *Trajectory, index int) error {
	taskID := 0
	if t != nil {
		taskID = t.TaskID
	}
	return &services.StepError{
		Marker: services.ErrUnknownStep,
		TaskID: taskID,
		Step:   index,
		Err:    fmt.Errorf("task has %d steps", t.Len()),
	}
}
