package pipeline

import (
	"log/slog"
	"time"

	"modelscanner/internal/callback"
	"modelscanner/internal/config"
	"modelscanner/internal/conversion"
	"modelscanner/internal/hashing"
	"modelscanner/internal/importing"
	"modelscanner/internal/metadata"
	"modelscanner/internal/scanning"
	"modelscanner/internal/services/docker"
	"modelscanner/internal/stage"
	"modelscanner/internal/storage"
)

// StandardTasks returns the capability tasks in execution order: Import,
// Scan, Hash, Convert, ParseMetadata.
func StandardTasks(gw *storage.Gateway, runner *docker.Runner, minConversionSize int64, logger *slog.Logger) []stage.Task {
	engine := hashing.NewEngine(gw, logger)
	return []stage.Task{
		importing.NewTask(gw, logger),
		scanning.NewTask(runner, logger),
		hashing.NewTask(engine),
		conversion.NewTask(runner, gw, minConversionSize, logger),
		metadata.NewTask(logger),
	}
}

// NewFromConfig wires a processor with the standard tasks, a docker runner
// and an HTTP callback reporter.
func NewFromConfig(cfg *config.Config, gw *storage.Gateway, logger *slog.Logger, runnerOpts ...docker.Option) (*Processor, error) {
	runner, err := docker.New(
		cfg.Scanner.DockerBinary,
		cfg.Scanner.Image,
		cfg.Paths.TempDir,
		time.Duration(cfg.Scanner.CommandTimeout)*time.Second,
		logger,
		runnerOpts...,
	)
	if err != nil {
		return nil, err
	}
	opts := Options{
		TempDir:         cfg.Paths.TempDir,
		DownloadTimeout: time.Duration(cfg.Scanner.DownloadTimeout) * time.Second,
		TrustLocalFiles: cfg.Scanner.TrustLocalFiles,
	}
	tasks := StandardTasks(gw, runner, cfg.Scanner.MinConversionSizeBytes, logger)
	return NewProcessor(opts, callback.NewReporter(cfg, nil, logger), tasks, logger), nil
}
