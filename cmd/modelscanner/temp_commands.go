package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"modelscanner/internal/staging"
)

func newTempCommand(ctx *commandContext) *cobra.Command {
	tempCmd := &cobra.Command{
		Use:   "temp",
		Short: "Inspect and sweep the local temp directory",
	}
	tempCmd.AddCommand(newTempListCommand(ctx))
	tempCmd.AddCommand(newTempSweepCommand(ctx))
	return tempCmd
}

func newTempListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List leftover downloads and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := staging.ListEntries(cfg.Paths.TempDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "%s is empty\n", cfg.Paths.TempDir)
				return nil
			}
			rows := make([][]string, 0, len(entries))
			var total int64
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Name,
					yesNo(entry.IsDir),
					humanize.IBytes(uint64(max(entry.Size, 0))),
					humanize.Time(entry.ModTime),
				})
				total += entry.Size
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Dir", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			fmt.Fprintf(out, "%d entries, %s total\n", len(entries), humanize.IBytes(uint64(max(total, 0))))
			return nil
		},
	}
}

func newTempSweepCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove temp entries older than the configured age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := maxAge
			if age <= 0 {
				age = time.Duration(cfg.Cleanup.LocalMaxAgeHours) * time.Hour
			}
			logger, err := ctx.logger(false)
			if err != nil {
				return err
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.TempDir, age, logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d entries\n", len(result.Removed))
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d entries could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Override cleanup.local_max_age_hours")
	return cmd
}
