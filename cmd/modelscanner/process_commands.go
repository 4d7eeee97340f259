package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"modelscanner/internal/daemonrun"
	"modelscanner/internal/hashing"
	"modelscanner/internal/stage"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var callbackURL string
	var tasks string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "process <file-url>",
		Short: "Process one file inline without going through the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := stage.ParseKinds(tasks)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			logger, err := ctx.logger(verbose)
			if err != nil {
				return err
			}
			handlers, err := daemonrun.NewHandlers(cfg, logger)
			if err != nil {
				return err
			}
			fileURL := strings.TrimSpace(args[0])
			if err := handlers.Processor.ProcessFile(cmd.Context(), fileURL, strings.TrimSpace(callbackURL), kinds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %s\n", fileURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&callbackURL, "callback", "", "URL that receives the scan result")
	cmd.Flags().StringVar(&tasks, "tasks", "", "Task mask or names (import,convert,scan,hash,parse_metadata)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	return cmd
}

func newHashCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "hash <path>",
		Short:       "Print the fingerprints of a local file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := hashing.Digest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, hashes)
			}
			rows := make([][]string, 0, len(hashes))
			for _, name := range slices.Sorted(maps.Keys(hashes)) {
				rows = append(rows, []string{name, hashes[name]})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Algorithm", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
