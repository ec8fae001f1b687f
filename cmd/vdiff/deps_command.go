package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vdiff/internal/deps"
	"vdiff/internal/preflight"
)

type depsReport struct {
	Binaries []deps.Status      `json:"binaries"`
	Checks   []preflight.Result `json:"checks"`
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools, the detector and the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rep := depsReport{
				Binaries: preflight.CheckSystemDeps(cmd.Context(), cfg),
				Checks:   preflight.RunAll(cmd.Context(), cfg),
			}

			var problems []string
			for _, missing := range deps.Missing(rep.Binaries) {
				problems = append(problems, missing.Name)
			}
			for _, failed := range preflight.Failed(rep.Checks) {
				problems = append(problems, failed.Name)
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, rep); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				binRows := make([][]string, 0, len(rep.Binaries))
				for _, status := range rep.Binaries {
					detail := status.Version
					if !status.Available {
						detail = status.Detail
					}
					binRows = append(binRows, []string{status.Name, status.Command, yesNo(status.Available), detail})
				}
				fmt.Fprintln(out, tableFor(cmd, []string{"Tool", "Command", "Available", "Detail"}, binRows, nil))

				checkRows := make([][]string, 0, len(rep.Checks))
				for _, result := range rep.Checks {
					checkRows = append(checkRows, []string{result.Name, yesNo(result.Passed), result.Detail})
				}
				fmt.Fprintln(out, tableFor(cmd, []string{"Check", "Passed", "Detail"}, checkRows, nil))
			}

			if len(problems) > 0 {
				return fmt.Errorf("%d check(s) failed: %s", len(problems), strings.Join(problems, ", "))
			}
			return nil
		},
	}
}
