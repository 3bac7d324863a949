package frames

import (
	"context"
	"image"

	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// VideoInfo describes a probed recording.
type VideoInfo struct {
	Path string `json:"path"`
	// Duration is the container duration in seconds.
	Duration   float64 `json:"duration_seconds"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frame_count,omitempty"`
}

// Source decodes frames from one video. Implementations must allow
// concurrent Seek calls.
type Source interface {
	// Seek decodes the first frame at or after offset.
	Seek(ctx context.Context, offset timeline.Offset) (image.Image, error)
	Info() VideoInfo
	Close() error
}

// Opener opens a Source for a video path.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// ResolveFrame maps offset onto the frame index and presentation time that
// Seek must return. Offsets past the container duration are out of range;
// offsets inside the duration but past the last frame clamp to the last frame.
func ResolveFrame(info VideoInfo, offset timeline.Offset) (int, timeline.Offset, bool) {
	if offset < 0 {
		return 0, 0, false
	}
	if info.Duration > 0 && float64(offset) > info.Duration {
		return 0, 0, false
	}
	if info.FPS <= 0 {
		return 0, offset, true
	}
	index := timeline.FrameIndex(offset, info.FPS)
	last := info.FrameCount - 1
	if info.FrameCount <= 0 && info.Duration > 0 {
		last = int(info.Duration*info.FPS) - 1
	}
	if last >= 0 && index > last {
		index = last
	}
	return index, timeline.FrameTime(index, info.FPS), true
}
