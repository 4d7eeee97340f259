package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"modelscanner/internal/callback"
	"modelscanner/internal/fileutil"
	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/services"
	"modelscanner/internal/stage"
)

// Options tunes a Processor.
type Options struct {
	// TempDir receives downloads. It must be the directory mounted into the
	// scanner container.
	TempDir string
	// DownloadTimeout bounds the download step only. Zero means no limit.
	DownloadTimeout time.Duration
	// TrustLocalFiles reuses an existing file of the same name instead of
	// downloading again. Reused files are left in place after the job.
	TrustLocalFiles bool
	// Client performs downloads. Nil uses a client without a timeout.
	Client *http.Client
}

// Processor runs the capability tasks for one job at a time. It holds no
// per-job state and is safe for concurrent use by several lanes.
type Processor struct {
	opts     Options
	tasks    []stage.Task
	reporter callback.Reporter
	logger   *slog.Logger
}

// NewProcessor builds a processor running tasks in the given order.
func NewProcessor(opts Options, reporter callback.Reporter, tasks []stage.Task, logger *slog.Logger) *Processor {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if reporter == nil {
		reporter = callback.Noop{}
	}
	return &Processor{
		opts:     opts,
		tasks:    append([]stage.Task(nil), tasks...),
		reporter: reporter,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Tasks returns the registered tasks in execution order.
func (p *Processor) Tasks() []stage.Task {
	return append([]stage.Task(nil), p.tasks...)
}

// ProcessFile downloads fileURL and runs every registered task against it.
// The requested mask is recorded but not used for filtering. A missing
// source is reported once with FileExists=0 and is not an error.
func (p *Processor) ProcessFile(ctx context.Context, fileURL, callbackURL string, requested stage.Kind) error {
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()
	res := result.New(fileURL)

	logger.Info("processing file",
		logging.String("file_url", fileURL),
		logging.String("requested_tasks", requested.String()),
	)

	dl, err := p.download(ctx, fileURL)
	if err != nil {
		return err
	}
	if dl.notFound {
		res.FileExists = 0
		logger.Info("source file not found",
			logging.String("file_url", fileURL),
			logging.String(logging.FieldEventType, "source_missing"),
		)
		// Report logs delivery failures itself; they never fail the job.
		_ = p.reporter.Report(ctx, callbackURL, res)
		return nil
	}
	res.FileExists = 1
	if !dl.reused {
		defer p.removeLocal(logger, dl.path)
	}

	for _, task := range p.tasks {
		name := stage.Name(task)
		taskCtx := services.WithStage(ctx, name)
		taskStart := time.Now()

		cont, err := task.Process(taskCtx, dl.path, res)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logging.ErrorWithContext(logging.WithContext(taskCtx, p.logger), "task failed", "task_failed",
				logging.String("task", name),
				logging.Error(err),
				logging.Duration("duration", time.Since(taskStart)),
			)
			return err
		}
		logging.WithContext(taskCtx, p.logger).Info("task finished",
			logging.String("task", name),
			logging.Bool("continue", cont),
			logging.Duration("duration", time.Since(taskStart)),
		)

		_ = p.reporter.Report(taskCtx, callbackURL, res) // logged by the reporter
		if !cont {
			logger.Info("pipeline stopped early", logging.String("task", name))
			return nil
		}
	}

	logger.Info("file processed",
		logging.String("url", res.URL),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p *Processor) removeLocal(logger *slog.Logger, path string) {
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(logger, "temp file cleanup failed", "temp_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file remains until the staging sweep removes it"),
		)
	}
}
