package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List roster tasks with their review status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				status, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				summary, err := svc.Summary(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(status))
				for _, st := range status {
					rows = append(rows, []string{
						strconv.Itoa(st.TaskID),
						truncate(st.Instruction, 48),
						st.WorkerName,
						verdictLabel(st.Verdict, colorize),
						scoreSummary(st.Scores),
						yesNo(st.HasRecording),
						yesNo(st.Exported),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Instruction", "Worker", "Verdict", "Scores", "Recording", "Exported"},
					rows, 0,
				))
				fmt.Fprintf(out, "%d tasks: %d pass, %d fail, %d unclear\n",
					len(status), summary.Pass, summary.Fail, summary.Unclear)
				if skipped := len(svc.RosterErrors()); skipped > 0 {
					fmt.Fprintln(out, renderStatusLine("Roster", statusWarn, fmt.Sprintf("%d rows skipped", skipped), colorize))
				}
				return nil
			})
		},
	}
}
