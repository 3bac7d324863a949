package annotations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

// Verdict is the annotator's judgment on a task or a single step.
type Verdict string

const (
	VerdictUnset   Verdict = ""
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictUnclear Verdict = "unclear"
)

// ParseVerdict accepts pass, fail, unclear or an empty string (unset).
func ParseVerdict(value string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(value))); v {
	case VerdictUnset, VerdictPass, VerdictFail, VerdictUnclear:
		return v, nil
	default:
		return VerdictUnset, fmt.Errorf("%w: verdict %q must be pass, fail or unclear", services.ErrValidation, value)
	}
}

func (v Verdict) String() string {
	if v == VerdictUnset {
		return "unset"
	}
	return string(v)
}

const (
	MinScore = 1
	MaxScore = 5
)

// Scores are the four per-task evaluation dimensions. A nil field is unset.
type Scores struct {
	Correctness       *int `json:"correctness,omitempty"`
	Difficulty        *int `json:"difficulty,omitempty"`
	KnowledgeRichness *int `json:"knowledge_richness,omitempty"`
	TaskValue         *int `json:"task_value,omitempty"`
}

// Score returns a pointer to v for building Scores literals.
func Score(v int) *int { return &v }

type scoreField struct {
	column string
	value  *int
}

func (s Scores) fields() []scoreField {
	return []scoreField{
		{"correctness", s.Correctness},
		{"difficulty", s.Difficulty},
		{"knowledge_richness", s.KnowledgeRichness},
		{"task_value", s.TaskValue},
	}
}

// Validate rejects any set score outside MinScore..MaxScore. Zero is accepted
// and means "clear this dimension".
func (s Scores) Validate() error {
	for _, f := range s.fields() {
		if f.value == nil || *f.value == 0 {
			continue
		}
		if *f.value < MinScore || *f.value > MaxScore {
			return fmt.Errorf("%w: %s score %d outside %d-%d", services.ErrValidation, f.column, *f.value, MinScore, MaxScore)
		}
	}
	return nil
}

// Empty reports whether no dimension is set.
func (s Scores) Empty() bool {
	for _, f := range s.fields() {
		if f.value != nil {
			return false
		}
	}
	return true
}

// TaskAnnotation is the whole-task evaluation.
type TaskAnnotation struct {
	TaskID     int       `json:"task_id"`
	Verdict    Verdict   `json:"verdict"`
	PassReason string    `json:"pass_reason"`
	Scores     Scores    `json:"scores"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StepAnnotation is a per-step verdict with justification.
type StepAnnotation struct {
	TaskID        int       `json:"task_id"`
	Step          int       `json:"step"`
	Verdict       Verdict   `json:"verdict"`
	Justification string    `json:"justification"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Override replaces the recorded coordinate of one step. Original is the
// coordinate recorded the first time the step was adjusted.
type Override struct {
	TaskID    int                `json:"task_id"`
	Step      int                `json:"step"`
	X         int                `json:"x"`
	Y         int                `json:"y"`
	Original  *events.Coordinate `json:"original,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Coordinate returns the adjusted position.
func (o Override) Coordinate() events.Coordinate {
	return events.Coordinate{X: o.X, Y: o.Y}
}

// Summary counts persisted state.
type Summary struct {
	Tasks           int `json:"tasks"`
	Pass            int `json:"pass"`
	Fail            int `json:"fail"`
	Unclear         int `json:"unclear"`
	StepAnnotations int `json:"step_annotations"`
	Overrides       int `json:"overrides"`
}

// Catalog answers which tasks and steps exist. The annotator service backs
// it with the roster and the event store.
type Catalog interface {
	Contains(taskID int) bool
	StepCount(ctx context.Context, taskID int) (int, error)
}
