package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
)

func newOverrideCommand(ctx *commandContext) *cobra.Command {
	overrideCmd := &cobra.Command{
		Use:   "override",
		Short: "Adjust the coordinate of a step",
	}
	overrideCmd.AddCommand(&cobra.Command{
		Use:   "set <task> <step> <x> <y>",
		Short: "Replace a step's coordinate",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, step, err := parseTaskStep(args)
			if err != nil {
				return err
			}
			x, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid x %q", args[2])
			}
			y, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid y %q", args[3])
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if err := svc.SetOverride(cmd.Context(), taskID, step, events.Coordinate{X: x, Y: y}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d step %d now targets (%d, %d)\n", taskID, step, x, y)
				return nil
			})
		},
	})
	overrideCmd.AddCommand(&cobra.Command{
		Use:   "clear <task> <step>",
		Short: "Revert a step to its recorded coordinate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, step, err := parseTaskStep(args)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if err := svc.ClearOverride(cmd.Context(), taskID, step); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d step %d uses its recorded coordinate\n", taskID, step)
				return nil
			})
		},
	})
	return overrideCmd
}

func verdictArg(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), "unset") {
		return ""
	}
	return value
}

func newVerdictCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "verdict <task> <pass|fail|unclear|unset>",
		Short: "Record the task verdict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if err := svc.SetVerdict(cmd.Context(), taskID, verdictArg(args[1]), reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d marked %s\n", taskID, strings.ToLower(args[1]))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the task passes")
	return cmd
}

func newScoresCommand(ctx *commandContext) *cobra.Command {
	var correctness, difficulty, knowledge, value int
	cmd := &cobra.Command{
		Use:   "scores <task>",
		Short: "Set evaluation scores (1-5, 0 clears)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID("task id", args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			pick := func(name string, v int) *int {
				if !flags.Changed(name) {
					return nil
				}
				return annotations.Score(v)
			}
			scores := annotations.Scores{
				Correctness:       pick("correctness", correctness),
				Difficulty:        pick("difficulty", difficulty),
				KnowledgeRichness: pick("knowledge", knowledge),
				TaskValue:         pick("value", value),
			}
			if scores.Empty() {
				return fmt.Errorf("set at least one of --correctness, --difficulty, --knowledge, --value")
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if err := svc.SetScores(cmd.Context(), taskID, scores); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d scores updated\n", taskID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&correctness, "correctness", 0, "Correctness score")
	cmd.Flags().IntVar(&difficulty, "difficulty", 0, "Difficulty score")
	cmd.Flags().IntVar(&knowledge, "knowledge", 0, "Knowledge richness score")
	cmd.Flags().IntVar(&value, "value", 0, "Task value score")
	return cmd
}

func newStepVerdictCommand(ctx *commandContext) *cobra.Command {
	var justification string
	cmd := &cobra.Command{
		Use:   "step-verdict <task> <step> <pass|fail|unclear|unset>",
		Short: "Record a verdict on one step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, step, err := parseTaskStep(args)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *annotator.Service) error {
				if err := svc.SetStepVerdict(cmd.Context(), taskID, step, verdictArg(args[2]), justification); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d step %d marked %s\n", taskID, step, strings.ToLower(args[2]))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&justification, "justification", "", "Reviewer note for the step")
	return cmd
}
