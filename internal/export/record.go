package export

import (
	"fmt"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
)

// Record is the exported form of one approved task.
type Record struct {
	TaskID      int        `json:"task_id"`
	Instruction string     `json:"instruction"`
	Evaluation  Evaluation `json:"evaluation"`
	Trajectory  []Step     `json:"trajectory"`
}

// Evaluation carries the annotator's task-level judgment. Unset scores are
// exported as 0.
type Evaluation struct {
	Verdict    string    `json:"verdict"`
	PassReason string    `json:"pass_reason"`
	Scores     ScoreCard `json:"scores"`
}

// ScoreCard flattens annotations.Scores for export.
type ScoreCard struct {
	Correctness       int `json:"correctness"`
	Difficulty        int `json:"difficulty"`
	KnowledgeRichness int `json:"knowledge_richness"`
	TaskValue         int `json:"task_value"`
}

// Step is one trajectory entry.
type Step struct {
	Index          int                `json:"index"`
	Action         string             `json:"action"`
	ScreenshotPath string             `json:"screenshot_path"`
	Justification  string             `json:"justification"`
	Description    string             `json:"description,omitempty"`
	Coordinate     *events.Coordinate `json:"coordinate,omitempty"`
	Adjusted       bool               `json:"coordinate_adjusted,omitempty"`
	VideoOffset    float64            `json:"video_offset"`
	Review         *StepReview        `json:"review,omitempty"`
}

// StepReview is the annotator's per-step verdict, when one was recorded.
type StepReview struct {
	Verdict       string `json:"verdict"`
	Justification string `json:"justification,omitempty"`
}

func newEvaluation(ann annotations.TaskAnnotation) Evaluation {
	return Evaluation{
		Verdict:    string(ann.Verdict),
		PassReason: ann.PassReason,
		Scores: ScoreCard{
			Correctness:       deref(ann.Scores.Correctness),
			Difficulty:        deref(ann.Scores.Difficulty),
			KnowledgeRichness: deref(ann.Scores.KnowledgeRichness),
			TaskValue:         deref(ann.Scores.TaskValue),
		},
	}
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// TaskDirName is the per-task output folder name.
func TaskDirName(taskID int) string {
	return fmt.Sprintf("task_%d", taskID)
}

// ScreenshotName is the per-step image file name.
func ScreenshotName(step int) string {
	return fmt.Sprintf("step_%d.png", step)
}

// RecordFileName is the per-task JSON file name.
func RecordFileName(taskID int) string {
	return fmt.Sprintf("task_%d.json", taskID)
}

func stagingDirName(taskID int) string {
	return fmt.Sprintf(".task_%d.tmp", taskID)
}
