package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/export"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export [task...]",
		Short: "Export approved tasks (all of them when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := parseID("task id", arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if len(ids) == 0 {
					return exportAll(cmd, ctx, svc)
				}
				return exportSelected(cmd, ctx, svc, ids)
			})
		},
	}
}

func exportAll(cmd *cobra.Command, ctx *commandContext, svc *annotator.Service) error {
	manifest, err := svc.ExportAll(cmd.Context())
	if manifest == nil {
		return err
	}
	if ctx.jsonOutput() {
		if jsonErr := writeJSON(cmd, manifest); jsonErr != nil {
			return jsonErr
		}
		return err
	}
	renderManifest(cmd, manifest)
	if err != nil {
		return err
	}
	if len(manifest.Failures) > 0 {
		return fmt.Errorf("%d of %d approved tasks failed to export", len(manifest.Failures), len(manifest.Failures)+len(manifest.Exported))
	}
	return nil
}

func renderManifest(cmd *cobra.Command, manifest *export.Manifest) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStatusLine("Exported", statusOK, fmt.Sprintf("%d tasks", len(manifest.Exported)), colorize))
	if len(manifest.Removed) > 0 {
		fmt.Fprintln(out, renderStatusLine("Removed", statusInfo, fmt.Sprintf("%d stale folders", len(manifest.Removed)), colorize))
	}
	if manifest.Archive != "" {
		fmt.Fprintln(out, renderStatusLine("Archive", statusInfo, manifest.Archive, colorize))
	}
	if manifest.Cancelled {
		fmt.Fprintln(out, renderStatusLine("Run", statusWarn, "cancelled before completion", colorize))
	}
	if len(manifest.Failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(manifest.Failures))
	for _, f := range manifest.Failures {
		step := "-"
		if f.Step != nil {
			step = strconv.Itoa(*f.Step)
		}
		rows = append(rows, []string{strconv.Itoa(f.TaskID), step, f.Kind, truncate(f.Error, 60)})
	}
	fmt.Fprintln(out, renderTable([]string{"Task", "Step", "Kind", "Error"}, rows, 0, 1))
}

func exportSelected(cmd *cobra.Command, ctx *commandContext, svc *annotator.Service, ids []int) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var records []*export.Record
	var errs []error
	for _, id := range ids {
		record, err := svc.ExportTask(cmd.Context(), id)
		label := fmt.Sprintf("Task %d", id)
		if err != nil {
			errs = append(errs, err)
			if !ctx.jsonOutput() {
				fmt.Fprintln(out, renderStatusLine(label, statusError, errorText(err), colorize))
			}
			continue
		}
		records = append(records, record)
		if !ctx.jsonOutput() {
			fmt.Fprintln(out, renderStatusLine(label, statusOK, fmt.Sprintf("%d steps", len(record.Trajectory)), colorize))
		}
	}
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, records); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
