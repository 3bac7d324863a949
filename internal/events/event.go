package events

import (
	"image"

	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// Pointer actions carry a meaningful coordinate.
const (
	ActionClick = "click"
	ActionDrag  = "drag"
)

// Coordinate is a screen position in video pixels.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Point converts the coordinate for image drawing.
func (c Coordinate) Point() image.Point { return image.Pt(c.X, c.Y) }

// Event is one recorded action. Index is its zero-based step.
type Event struct {
	Index         int
	Action        string
	Coordinate    *Coordinate
	StartTime     float64
	EndTime       float64
	PreMove       *timeline.Interval
	Justification string
	Description   string
}

// IsPointer reports whether the action kind targets a screen position.
func (e Event) IsPointer() bool {
	return e.Action == ActionClick || e.Action == ActionDrag
}

// CaptureTime returns the event-clock instant used for the step's frame.
func (e Event) CaptureTime(videoStart float64, policy timeline.Policy) float64 {
	return timeline.CaptureTime(e.StartTime, e.PreMove, videoStart, policy)
}

// Trajectory is one task's ordered events plus its video reference.
type Trajectory struct {
	TaskID     int
	VideoStart float64
	// VideoPath is empty when the folder holds no recording.
	VideoPath string
	Events    []Event
}

// Step returns the event at index.
func (t *Trajectory) Step(index int) (Event, bool) {
	if t == nil || index < 0 || index >= len(t.Events) {
		return Event{}, false
	}
	return t.Events[index], true
}

// Len returns the number of steps.
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Events)
}

// Offset returns the video position for step index under policy.
func (t *Trajectory) Offset(index int, policy timeline.Policy) (timeline.Offset, error) {
	ev, ok := t.Step(index)
	if !ok {
		return 0, errStepRange(t, index)
	}
	return timeline.ToFrameOffset(t.VideoStart, ev.CaptureTime(t.VideoStart, policy))
}
