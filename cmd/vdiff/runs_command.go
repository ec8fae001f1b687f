package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vdiff/internal/history"
	"vdiff/internal/report"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsPruneCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if runs == nil {
						runs = []*history.Run{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						run.Mode,
						run.Status,
						strconv.Itoa(run.IntervalCount),
						run.StartedAt.Local().Format("2006-01-02 15:04:05"),
						run.CandidatePath,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tableFor(cmd,
					[]string{"ID", "Mode", "Status", "Intervals", "Started", "Candidate"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	return cmd
}

type runDetail struct {
	*history.Run
	Intervals []history.Interval `json:"intervals"`
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its intervals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				run, err := store.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %q not found", args[0])
				}
				intervals, err := store.Intervals(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if intervals == nil {
						intervals = []history.Interval{}
					}
					return writeJSON(cmd, runDetail{Run: run, Intervals: intervals})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:        %s\n", run.ID)
				fmt.Fprintf(out, "Mode:       %s\n", run.Mode)
				fmt.Fprintf(out, "Status:     %s\n", run.Status)
				if run.ReferencePath != "" {
					fmt.Fprintf(out, "Reference:  %s\n", run.ReferencePath)
				}
				fmt.Fprintf(out, "Candidate:  %s\n", run.CandidatePath)
				fmt.Fprintf(out, "FPS:        %.2f (stride %d)\n", run.FPS, run.Stride)
				fmt.Fprintf(out, "Frames:     %d decoded, %d evaluated, %d classifier calls\n",
					run.FramesDecoded, run.FramesEvaluated, run.ClassifierCalls)
				fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Local().Format(time.RFC3339))
				if run.FinishedAt != nil {
					fmt.Fprintf(out, "Finished:   %s (%s)\n", run.FinishedAt.Local().Format(time.RFC3339),
						run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
				}
				if run.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:      %s\n", run.ErrorMessage)
				}
				if run.OutputDir != "" {
					fmt.Fprintf(out, "Output:     %s\n", run.OutputDir)
				}
				if len(intervals) == 0 {
					fmt.Fprintln(out, "No divergence recorded.")
					return nil
				}
				rows := make([][]string, 0, len(intervals))
				for _, iv := range intervals {
					start, end := report.Span(iv.Start, iv.End)
					rows = append(rows, []string{
						strconv.Itoa(iv.Seq),
						start,
						end,
						iv.Cause,
						iv.SnapshotPath,
					})
				}
				fmt.Fprintln(out, tableFor(cmd, []string{"#", "Start", "End", "Cause", "Snapshot"}, rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newRunsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			days := olderThan
			if !cmd.Flags().Changed("older-than") {
				days = cfg.History.RetentionDays
			}
			if days <= 0 {
				return errors.New("retention disabled: pass --older-than with a positive number of days")
			}
			cutoff := time.Now().AddDate(0, 0, -days)
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s) older than %d day(s)\n", removed, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&olderThan, "older-than", 0, "Age in days (default history.retention_days)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
