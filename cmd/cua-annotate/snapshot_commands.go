package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write or import annotation JSON snapshots",
	}
	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "write <dir>",
		Short: "Write annotation snapshots into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				files, err := svc.WriteSnapshot(cmd.Context(), dir)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, files)
				}
				for _, file := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", file)
				}
				return nil
			})
		},
	})
	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "import <dir>",
		Short: "Replace annotation state with the snapshots in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				report, err := svc.ImportSnapshot(cmd.Context(), dir)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d tasks, %d steps, %d overrides\n", report.Tasks, report.Steps, report.Overrides)
				colorize := shouldColorize(out)
				for _, skipped := range report.Skipped {
					fmt.Fprintln(out, renderStatusLine("Skipped", statusWarn, skipped, colorize))
				}
				return nil
			})
		},
	})
	return snapshotCmd
}
