// Package timeline converts absolute event timestamps into positions inside a
// task's screen recording.
//
// Event logs and the video-start reference share one epoch clock; the video
// itself is addressed in seconds from its first frame. Every frame request in
// the pipeline goes through ToFrameOffset so the two clocks are reconciled in
// exactly one place.
package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// Offset is a non-negative position in seconds from the start of a video.
type Offset float64

// Seconds returns the offset as float seconds.
func (o Offset) Seconds() float64 { return float64(o) }

// Duration converts the offset to a time.Duration, rounded to the microsecond.
func (o Offset) Duration() time.Duration {
	return time.Duration(math.Round(float64(o)*1e6)) * time.Microsecond
}

// String renders the offset as ffmpeg-compatible seconds with millisecond precision.
func (o Offset) String() string {
	return strconv.FormatFloat(float64(o), 'f', 3, 64)
}

// ToFrameOffset returns eventTimestamp - videoStart. Events that predate the
// recording are a data-integrity error and are never clamped. Non-finite
// timestamps are reported as a malformed log.
func ToFrameOffset(videoStart, eventTimestamp float64) (Offset, error) {
	if !finite(videoStart) || !finite(eventTimestamp) {
		return 0, fmt.Errorf("%w: non-finite timestamp (video start %v, event %v)", services.ErrMalformedEventLog, videoStart, eventTimestamp)
	}
	delta := eventTimestamp - videoStart
	if delta < 0 {
		return Offset(delta), fmt.Errorf("%w: event at %s precedes video start %s by %.3fs",
			services.ErrNegativeOffset,
			strconv.FormatFloat(eventTimestamp, 'f', -1, 64),
			strconv.FormatFloat(videoStart, 'f', -1, 64),
			-delta)
	}
	return Offset(delta), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Interval is a start/end pair on the event clock.
type Interval struct {
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// Policy selects which instant of an event represents the step.
type Policy string

const (
	// PolicyStart uses the event start_time.
	PolicyStart Policy = "start"
	// PolicyPreMove uses a point late in the pointer's pre-move window, which
	// shows the target before the click changes the screen.
	PolicyPreMove Policy = "premove"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyStart:
		return PolicyStart, nil
	case PolicyPreMove:
		return PolicyPreMove, nil
	default:
		return "", fmt.Errorf("%w: unknown capture policy %q", services.ErrConfiguration, value)
	}
}

const (
	preMoveFraction   = 0.8
	preMoveEndBackoff = 0.3
	startBackoff      = 0.1
)

// CaptureTime returns the event-clock instant used for the step's frame.
// Under PolicyPreMove the result never precedes videoStart.
func CaptureTime(start float64, preMove *Interval, videoStart float64, policy Policy) float64 {
	if policy != PolicyPreMove {
		return start
	}
	var capture float64
	switch {
	case preMove != nil && preMove.Start > 0 && preMove.End > 0:
		capture = preMove.Start + (preMove.End-preMove.Start)*preMoveFraction
	case preMove != nil && preMove.End > 0:
		capture = preMove.End - preMoveEndBackoff
	default:
		capture = start - startBackoff
	}
	return math.Max(capture, videoStart)
}

// frameEpsilon is measured in frames. It absorbs float error on exact frame
// boundaries (4.0s at 30fps is frame 120, not 121).
const frameEpsilon = 1e-6

// FrameIndex returns the index of the first frame whose presentation time is
// at or after offset.
func FrameIndex(offset Offset, fps float64) int {
	if fps <= 0 || offset <= 0 {
		return 0
	}
	return int(math.Ceil(float64(offset)*fps - frameEpsilon))
}

// FrameTime returns the presentation time of frame index at fps.
func FrameTime(index int, fps float64) Offset {
	if fps <= 0 || index <= 0 {
		return 0
	}
	return Offset(float64(index) / fps)
}
