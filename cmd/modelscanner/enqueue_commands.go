package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"modelscanner/internal/daemonrun"
	"modelscanner/internal/queue"
	"modelscanner/internal/stage"
	"modelscanner/internal/workflow"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var callbackURL string
	var tasks string
	var low bool

	cmd := &cobra.Command{
		Use:   "enqueue <file-url>",
		Short: "Queue a model file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := stage.ParseKinds(tasks)
			if err != nil {
				return err
			}
			priority := queue.PriorityNormal
			if low {
				priority = queue.PriorityLow
			}
			return enqueueJob(cmd, ctx, queue.Request{
				Kind:        queue.KindProcess,
				FileURL:     strings.TrimSpace(args[0]),
				CallbackURL: strings.TrimSpace(callbackURL),
				Tasks:       kinds,
				Priority:    priority,
			})
		},
	}

	cmd.Flags().StringVar(&callbackURL, "callback", "", "URL that receives the scan result")
	cmd.Flags().StringVar(&tasks, "tasks", "", "Task mask or names (import,convert,scan,hash,parse_metadata)")
	cmd.Flags().BoolVar(&low, "low", false, "Queue on the low priority lane")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Soft delete uploads no longer referenced by the model database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !now {
				return enqueueJob(cmd, ctx, queue.Request{Kind: queue.KindCleanup, Priority: queue.PriorityLow})
			}
			return withHandlers(cmd, ctx, func(h workflow.Handlers) error {
				if h.Cleaner == nil {
					return errors.New("cleanup requires cleanup.database_url")
				}
				summary, err := h.Cleaner.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Examined %d objects, deleted %d, kept %d referenced, %d young, %d unparseable\n",
					summary.Examined, summary.Deleted, summary.Kept, summary.Young, summary.Unparseable)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "Run inline instead of queueing a job")
	return cmd
}

func newPurgeTempCommand(ctx *commandContext) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "purge-temp",
		Short: "Remove stale objects from the temp bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !now {
				return enqueueJob(cmd, ctx, queue.Request{Kind: queue.KindPurgeTemp})
			}
			return withHandlers(cmd, ctx, func(h workflow.Handlers) error {
				removed, err := h.Storage.CleanupTempStorage(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale temp objects\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "Run inline instead of queueing a job")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete an object from the upload bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if !now {
				return enqueueJob(cmd, ctx, queue.Request{Kind: queue.KindDelete, ObjectKey: key})
			}
			return withHandlers(cmd, ctx, func(h workflow.Handlers) error {
				if err := h.Storage.Delete(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "Run inline instead of queueing a job")
	return cmd
}

func enqueueJob(cmd *cobra.Command, ctx *commandContext, req queue.Request) error {
	return ctx.withStore(func(store *queue.Store) error {
		job, err := store.Enqueue(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job %d (%s)\n", job.Kind, job.ID, job.Priority)
		return nil
	})
}

func withHandlers(cmd *cobra.Command, ctx *commandContext, fn func(workflow.Handlers) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	logger, err := ctx.logger(false)
	if err != nil {
		return err
	}
	handlers, err := daemonrun.NewHandlers(cfg, logger)
	if err != nil {
		return err
	}
	return fn(handlers)
}
