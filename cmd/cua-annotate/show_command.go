package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task>",
		Short: "Show a task's trajectory and annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				view, err := svc.LoadTask(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				renderTaskView(cmd, view)
				return nil
			})
		},
	}
}

func renderTaskView(cmd *cobra.Command, view *annotator.TaskView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader(fmt.Sprintf("Task %d", view.Task.ID), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Instruction: %s\n", view.Task.Instruction)
	if view.Task.WorkerName != "" {
		fmt.Fprintf(out, "Worker:      %s\n", view.Task.WorkerName)
	}
	if len(view.Task.RelatedApps) > 0 {
		fmt.Fprintf(out, "Apps:        %s\n", strings.Join(view.Task.RelatedApps, ", "))
	}
	fmt.Fprintf(out, "Verdict:     %s\n", verdictLabel(view.Annotation.Verdict, colorize))
	if view.Annotation.PassReason != "" {
		fmt.Fprintf(out, "Reason:      %s\n", view.Annotation.PassReason)
	}
	fmt.Fprintf(out, "Scores:      %s\n", scoreSummary(view.Annotation.Scores))
	switch {
	case view.Video != nil:
		fmt.Fprintf(out, "Video:       %s (%dx%d, %.2f fps, %.1fs)\n",
			view.VideoPath, view.Video.Width, view.Video.Height, view.Video.FPS, view.Video.Duration)
	case view.VideoPath != "":
		fmt.Fprintf(out, "Video:       %s (probe failed)\n", view.VideoPath)
	default:
		fmt.Fprintln(out, renderStatusLine("Video", statusWarn, "no recording found", colorize))
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(view.Steps))
	for _, step := range view.Steps {
		coord := "-"
		if step.Coordinate != nil {
			coord = fmt.Sprintf("%d,%d", step.Coordinate.X, step.Coordinate.Y)
			if step.Overridden {
				coord += "*"
			}
		}
		review := ""
		if step.Review != nil {
			review = verdictLabel(step.Review.Verdict, colorize)
		}
		rows = append(rows, []string{
			strconv.Itoa(step.Index),
			fmt.Sprintf("%.2f", step.Offset),
			step.Action,
			coord,
			truncate(step.Code, 48),
			review,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Step", "Offset", "Action", "Coord", "Code", "Review"},
		rows, 0, 1,
	))
}
