package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/fileutil"
)

func newFrameCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var noOverlay bool

	cmd := &cobra.Command{
		Use:   "frame <task> <step>",
		Short: "Write a step's frame as PNG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, step, err := parseTaskStep(args)
			if err != nil {
				return err
			}
			target := outputPath
			if target == "" {
				target = fmt.Sprintf("task_%d_step_%d.png", taskID, step)
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				data, err := svc.FramePNG(cmd.Context(), taskID, step, annotator.FrameOptions{Overlay: !noOverlay})
				if err != nil {
					return err
				}
				if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
					return fmt.Errorf("write frame: %w", err)
				}
				abs, _ := filepath.Abs(target)
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"task_id": taskID, "step": step, "path": abs, "bytes": len(data)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", abs)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination PNG path")
	cmd.Flags().BoolVar(&noOverlay, "no-overlay", false, "Skip the coordinate marker")
	return cmd
}
