package logging

import "strings"

// FormatSubject builds the task/step subject string used in console output.
func FormatSubject(taskID, step string) string {
	taskID = strings.TrimSpace(taskID)
	step = strings.TrimSpace(step)
	switch {
	case taskID != "" && step != "":
		return "Task #" + taskID + " (step " + step + ")"
	case taskID != "":
		return "Task #" + taskID
	case step != "":
		return "step " + step
	default:
		return ""
	}
}
