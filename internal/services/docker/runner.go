package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelscanner/internal/logging"
	"modelscanner/internal/services"
)

const (
	// InputPath is where the model file appears inside the container.
	InputPath = "/data/model.in"
	// OutputDir is where the temp directory appears inside the container.
	OutputDir = "/data/"

	killTimeout = 30 * time.Second
)

// Executor abstracts process execution for testability. Run returns the
// process exit code; a non-zero exit is not an error.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, output io.Writer) (int, error)
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner invokes `docker run` against the scanner image.
type Runner struct {
	binary  string
	image   string
	tempDir string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// New constructs a runner. tempDir is mounted as the container's output directory.
func New(binary, image, tempDir string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Runner, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("docker binary required")
	}
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, errors.New("scanner image required")
	}
	if strings.TrimSpace(tempDir) == "" {
		return nil, errors.New("temp directory required")
	}
	absTemp, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp directory: %w", err)
	}
	r := &Runner{
		binary:  binary,
		image:   image,
		tempDir: absTemp,
		timeout: timeout,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(logger, "docker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// TempDir is the host directory mounted at OutputDir.
func (r *Runner) TempDir() string {
	return r.tempDir
}

// Run executes command inside a fresh container with inputPath mounted at
// InputPath. It returns the exit code and the combined stdout/stderr. A
// cancelled ctx kills the process and the container and returns ctx.Err();
// exceeding the runner timeout returns an ErrTimeout-marked error.
func (r *Runner) Run(ctx context.Context, command []string, inputPath string) (exitCode int, output string, err error) {
	if len(command) == 0 {
		return -1, "", services.Wrap(services.ErrValidation, "docker", "run", "Empty command", nil)
	}
	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return -1, "", services.Wrap(services.ErrValidation, "docker", "resolve input", inputPath, err)
	}

	name := "modelscanner-" + uuid.NewString()
	args := []string{
		"run",
		"--name", name,
		"-v", absInput + ":" + InputPath,
		"-v", r.tempDir + ":" + OutputDir,
		"--rm",
		r.image,
	}
	args = append(args, command...)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()
	defer func() {
		attrs := []logging.Attr{
			logging.String("command", command[0]),
			logging.Int("exit_code", exitCode),
			logging.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logger.Info("command finished", logging.Args(attrs...)...)
	}()

	var buf syncBuffer
	exitCode, err = r.exec.Run(runCtx, r.binary, args, &buf)
	output = buf.String()

	if runErr := runCtx.Err(); runErr != nil {
		r.killContainer(name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, output, ctxErr
		}
		return -1, output, services.Wrap(services.ErrTimeout, "docker", "run", fmt.Sprintf("%s exceeded %s", command[0], r.timeout), runErr)
	}
	if err != nil {
		return -1, output, services.Wrap(services.ErrExternalTool, "docker", "run", "Unable to start docker", err)
	}
	return exitCode, output, nil
}

// killContainer stops a container left behind when the docker client was
// killed. Failures are ignored; the container may never have started.
func (r *Runner) killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	_, _ = r.exec.Run(ctx, r.binary, []string{"kill", name}, io.Discard)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, output io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	configureCommand(cmd)
	cmd.Stdout = output
	cmd.Stderr = output
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// syncBuffer collects interleaved stdout and stderr.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
