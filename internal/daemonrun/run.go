package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"modelscanner/internal/cleanup"
	"modelscanner/internal/config"
	"modelscanner/internal/daemon"
	"modelscanner/internal/deps"
	"modelscanner/internal/logging"
	"modelscanner/internal/pipeline"
	"modelscanner/internal/preflight"
	"modelscanner/internal/queue"
	"modelscanner/internal/storage"
	"modelscanner/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the scanner daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, "modelscanner.log")
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := filepath.Join(cfg.Paths.DataDir, "modelscanner.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	handlers, err := NewHandlers(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon wiring failed", "daemon_wiring_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [storage] and [scanner] configuration"),
		)
		return err
	}

	manager := workflow.NewManager(cfg, store, handlers, logger,
		workflow.WithPreflight(func(ctx context.Context) []preflight.Result {
			return preflight.RunAll(ctx, cfg)
		}))

	d, err := daemon.New(cfg, store, manager, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon will not process jobs"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("modelscanner daemon shutting down")
	return nil
}

// NewHandlers builds the storage gateway, the file processor and the storage
// cleanup pass from configuration.
func NewHandlers(cfg *config.Config, logger *slog.Logger) (workflow.Handlers, error) {
	gw, err := storage.New(storage.OptionsFromConfig(cfg), nil, logger)
	if err != nil {
		return workflow.Handlers{}, err
	}
	processor, err := pipeline.NewFromConfig(cfg, gw, logger)
	if err != nil {
		return workflow.Handlers{}, err
	}
	handlers := workflow.Handlers{
		Processor: processor,
		Storage:   gw,
	}
	if strings.TrimSpace(cfg.Cleanup.DatabaseURL) != "" {
		handlers.Cleaner = cleanup.NewPass(cfg.Cleanup.DatabaseURL, gw, cfg.CleanupCutoff(), logger)
	}
	return handlers, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	dockerStatus := deps.CheckDockerDaemon(ctx, cfg.Scanner.DockerBinary)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("docker_available", dockerStatus.Available),
		logging.String("docker_binary", cfg.Scanner.DockerBinary),
		logging.String("docker_detail", dockerStatus.Detail),
		logging.String("scanner_image", cfg.Scanner.Image),
		logging.Bool("storage_configured", strings.TrimSpace(cfg.Storage.ServiceURL) != ""),
		logging.Bool("cleanup_database_configured", strings.TrimSpace(cfg.Cleanup.DatabaseURL) != ""),
		logging.Int("api_tokens", len(cfg.API.Tokens)),
	)
}
