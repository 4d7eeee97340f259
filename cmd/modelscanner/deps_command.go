package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelscanner/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, directories and endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var rows [][]string
			for _, status := range preflight.CheckSystemDeps(cfg) {
				rows = append(rows, []string{status.Name, status.Command, yesNo(status.Available), status.Detail})
			}
			fmt.Fprint(out, renderTable([]string{"Binary", "Command", "Found", "Detail"}, rows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows = rows[:0]
			for _, r := range results {
				rows = append(rows, []string{r.Name, yesNo(r.Passed), r.Detail})
			}
			fmt.Fprint(out, renderTable([]string{"Check", "Passed", "Detail"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			return nil
		},
	}
}
