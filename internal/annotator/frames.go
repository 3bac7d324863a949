package annotator

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/HaozheZhao/cua-annotation-tool/internal/frames"
	"github.com/HaozheZhao/cua-annotation-tool/internal/overlay"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// FrameOptions controls GetFrame rendering.
type FrameOptions struct {
	// Overlay burns the effective coordinate into the frame when the
	// configuration enables markers.
	Overlay bool
}

// GetFrame returns the representative frame of a step, with the effective
// coordinate (override, else recorded) marked when requested.
func (s *Service) GetFrame(ctx context.Context, taskID, step int, opts FrameOptions) (image.Image, error) {
	ctx = services.WithStep(services.WithTaskID(ctx, taskID), step)
	traj, err := s.trajectory(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ev, ok := traj.Step(step)
	if !ok {
		return nil, stepOutOfRange(taskID, step, traj.Len())
	}
	offset, err := traj.Offset(step, s.policy)
	if err != nil {
		return nil, err
	}
	img, err := s.extractor.Extract(ctx, frames.Request{
		TaskID:    taskID,
		Step:      step,
		VideoPath: traj.VideoPath,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	if !opts.Overlay || !s.cfg.Overlay.Enabled {
		return img, nil
	}

	coord := ev.Coordinate
	override, err := s.state.GetOverride(ctx, taskID, step)
	if err != nil {
		return nil, err
	}
	if override != nil {
		c := override.Coordinate()
		coord = &c
	}
	if coord == nil {
		return img, nil
	}
	pt := coord.Point()
	return overlay.Overlay(img, &pt, s.style), nil
}

// FramePNG is GetFrame encoded as PNG.
func (s *Service) FramePNG(ctx context.Context, taskID, step int, opts FrameOptions) ([]byte, error) {
	img, err := s.GetFrame(ctx, taskID, step, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &services.StepError{Marker: services.ErrDecodeFailure, TaskID: taskID, Step: step, Op: "encode png", Err: err}
	}
	return buf.Bytes(), nil
}

// Reextract drops the cached frame of a step so the next GetFrame decodes
// it again.
func (s *Service) Reextract(ctx context.Context, taskID, step int) error {
	traj, err := s.trajectory(ctx, taskID)
	if err != nil {
		return err
	}
	if _, ok := traj.Step(step); !ok {
		return stepOutOfRange(taskID, step, traj.Len())
	}
	s.extractor.Invalidate(taskID, step)
	return nil
}

// ReextractTask drops every cached frame of a task, for example after its
// recording was replaced on disk.
func (s *Service) ReextractTask(taskID int) error {
	if _, err := s.task(taskID); err != nil {
		return err
	}
	s.extractor.InvalidateTask(taskID)
	return nil
}
