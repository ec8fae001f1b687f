package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vdiff/internal/divergence"
	"vdiff/internal/history"
	"vdiff/internal/logging"
	"vdiff/internal/report"
	"vdiff/internal/session"
)

type runFlags struct {
	metricsAddr   string
	skipPreflight bool
	noHistory     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (default metrics.listen)")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Skip detector and output directory checks")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record the run in the history database")
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "compare <reference> <candidate>",
		Short: "Report intervals where the candidate shows UI states the reference does not",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComparison(cmd, ctx, flags, session.Request{
				Mode:      divergence.ModeDual,
				Reference: args[0],
				Candidate: args[1],
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "scan <video>",
		Short: "Report intervals where error-class labels are visible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComparison(cmd, ctx, flags, session.Request{
				Mode:      divergence.ModeSingle,
				Candidate: args[0],
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runComparison(cmd *cobra.Command, ctx *commandContext, flags runFlags, req session.Request) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	req.MetricsAddr = strings.TrimSpace(flags.metricsAddr)
	if req.MetricsAddr == "" {
		req.MetricsAddr = cfg.Metrics.Listen
	}
	req.SkipPreflight = flags.skipPreflight

	opts := []session.Option{session.WithLogger(logger)}
	if !flags.noHistory {
		store, err := history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts = append(opts, session.WithHistory(store))
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, runErr := session.New(cfg, opts...).Run(runCtx, req)
	if outcome == nil || outcome.Report.RunID == "" {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String("run_id", outcome.RunID),
			logging.Error(runErr),
		)
	}

	if ctx.jsonOutput() {
		if err := writeJSON(cmd, outcome.Report); err != nil {
			return err
		}
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Text(outcome.Report))
	if len(outcome.Report.Intervals) > 0 {
		fmt.Fprintln(out, tableFor(cmd, []string{"#", "Start", "End", "Cause", "Snapshot"},
			intervalRows(outcome.Report.Intervals),
			[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft}))
	}
	if outcome.Files.Text != "" {
		fmt.Fprintf(out, "Report: %s\n", outcome.Files.Text)
	}
	return runErr
}

func intervalRows(entries []report.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		start, end := report.Span(entry.Start, entry.End)
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.Seq),
			start,
			end,
			entry.CauseText,
			entry.Snapshot,
		})
	}
	return rows
}
