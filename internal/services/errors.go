package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedEventLog = errors.New("malformed event log")
	ErrNegativeOffset    = errors.New("negative offset")
	ErrSeekOutOfRange    = errors.New("seek out of range")
	ErrDecodeFailure     = errors.New("decode failure")
	ErrUnknownTask       = errors.New("unknown task")
	ErrUnknownStep       = errors.New("unknown step")
	ErrNotApproved       = errors.New("not approved")
	ErrPersistence       = errors.New("persistence failure")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// NoStep marks a StepError that concerns the whole task.
const NoStep = -1

// StepError locates a failure within a task. Marker is one of the sentinel
// errors above and is what errors.Is matches against.
type StepError struct {
	Marker error
	TaskID int
	Step   int
	// Line is the 1-based event log line, 0 when not applicable.
	Line int
	// Timestamp is the offending absolute event time, 0 when not applicable.
	Timestamp float64
	// Offset is the offending video-relative position in seconds.
	Offset    float64
	HasOffset bool
	Op        string
	Err       error
}

func (e *StepError) Error() string {
	var b strings.Builder
	if e.Marker != nil {
		b.WriteString(e.Marker.Error())
	} else {
		b.WriteString("pipeline failure")
	}
	b.WriteString(": task ")
	b.WriteString(strconv.Itoa(e.TaskID))
	if e.Step >= 0 {
		b.WriteString(" step ")
		b.WriteString(strconv.Itoa(e.Step))
	}
	if e.Line > 0 {
		b.WriteString(" line ")
		b.WriteString(strconv.Itoa(e.Line))
	}
	if e.Timestamp != 0 {
		b.WriteString(" timestamp ")
		b.WriteString(strconv.FormatFloat(e.Timestamp, 'f', -1, 64))
	}
	if e.HasOffset {
		b.WriteString(" offset ")
		b.WriteString(strconv.FormatFloat(e.Offset, 'f', 3, 64))
		b.WriteString("s")
	}
	if op := strings.TrimSpace(e.Op); op != "" {
		b.WriteString(" (")
		b.WriteString(op)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the marker and the cause to errors.Is / errors.As.
func (e *StepError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ErrorKind reports the taxonomy name of the marker.
func (e *StepError) ErrorKind() string {
	return Kind(e.Marker)
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to the taxonomy name shown to annotators.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedEventLog):
		return "MalformedEventLog"
	case errors.Is(err, ErrNegativeOffset):
		return "NegativeOffset"
	case errors.Is(err, ErrSeekOutOfRange):
		return "SeekOutOfRange"
	case errors.Is(err, ErrDecodeFailure):
		return "DecodeFailure"
	case errors.Is(err, ErrUnknownTask):
		return "UnknownTask"
	case errors.Is(err, ErrUnknownStep):
		return "UnknownStep"
	case errors.Is(err, ErrNotApproved):
		return "NotApproved"
	case errors.Is(err, ErrPersistence):
		return "PersistenceFailure"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConfiguration):
		return "Configuration"
	default:
		return "ExternalTool"
	}
}

// KnownKind is Kind for errors that carry one of the markers above or a
// *StepError. Plain errors, such as command usage mistakes, report false.
func KnownKind(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return Kind(err), true
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return Kind(err), true
		}
	}
	return "", false
}

var markers = []error{
	ErrMalformedEventLog, ErrNegativeOffset, ErrSeekOutOfRange, ErrDecodeFailure,
	ErrUnknownTask, ErrUnknownStep, ErrNotApproved, ErrPersistence,
	ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound,
}

// StepOf returns the task and step a failure was pinned to, if any.
func StepOf(err error) (taskID, step int, ok bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.TaskID, stepErr.Step, true
	}
	return 0, NoStep, false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
