package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var taskID int
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent annotator log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var filter logs.Filter
			if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
				return fmt.Errorf("invalid level %q", level)
			}
			if cmd.Flags().Changed("task") {
				filter.TaskID = &taskID
			}

			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			out := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			for {
				result, err := logs.Tail(cmd.Context(), path, opts)
				if follow && errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				for _, entry := range filter.Apply(result.Lines) {
					if ctx.jsonOutput() {
						fmt.Fprintln(out, entry.Raw)
						continue
					}
					fmt.Fprintln(out, logs.Format(entry))
				}
				if !follow {
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 30 * time.Second}
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to read")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().IntVar(&taskID, "task", 0, "Only show entries for this task")
	cmd.Flags().StringVar(&level, "level", slog.LevelInfo.String(), "Minimum level (debug, info, warn, error)")
	return cmd
}
