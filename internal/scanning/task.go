package scanning

import (
	"context"
	"errors"
	"log/slog"

	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/safetensors"
	"modelscanner/internal/services/docker"
	"modelscanner/internal/stage"
)

// SafetensorsVerdict is recorded as picklescan output for safetensors files,
// which cannot carry executable pickles.
const SafetensorsVerdict = "safetensors"

// Runner executes a command in the scanner container.
type Runner interface {
	Run(ctx context.Context, command []string, inputPath string) (int, string, error)
}

// Task scans the model file with clamscan and picklescan.
type Task struct {
	runner Runner
	logger *slog.Logger
}

func NewTask(runner Runner, logger *slog.Logger) *Task {
	return &Task{runner: runner, logger: logging.NewComponentLogger(logger, "scan")}
}

func (t *Task) Kind() stage.Kind { return stage.KindScan }

// Process always runs clamscan. Picklescan is skipped for safetensors. Scanner
// failures are recorded on res; only cancellation is returned.
func (t *Task) Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error) {
	code, output, err := t.run(ctx, "clamscan", []string{"clamscan", docker.InputPath}, filePath)
	if err != nil {
		return false, err
	}
	res.ClamscanExitCode = code
	res.ClamscanOutput = output

	if safetensors.Is(filePath) {
		res.PicklescanExitCode = 0
		res.PicklescanOutput = SafetensorsVerdict
		return true, nil
	}

	code, output, err = t.run(ctx, "picklescan", []string{"picklescan", "-p", docker.InputPath, "-l", "DEBUG"}, filePath)
	if err != nil {
		return false, err
	}
	res.PicklescanExitCode = code
	res.PicklescanOutput = output
	res.PicklescanGlobalImports = ParseGlobalImports(output)
	res.PicklescanDangerousImports = ParseDangerousImports(output)
	if len(res.PicklescanDangerousImports) > 0 {
		logging.WithContext(ctx, t.logger).Info("dangerous imports detected",
			logging.String(logging.FieldEventType, "picklescan_dangerous"),
			logging.Any("imports", res.PicklescanDangerousImports.Values()),
		)
	}
	return true, nil
}

// run folds runner failures other than cancellation into a -1 exit code with
// the error text as output.
func (t *Task) run(ctx context.Context, scanner string, command []string, filePath string) (int, string, error) {
	code, output, err := t.runner.Run(ctx, command, filePath)
	if err == nil {
		return code, output, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return 0, "", err
	}
	logging.WarnWithContext(logging.WithContext(ctx, t.logger), "scanner failed", "scanner_failed",
		logging.String("scanner", scanner),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "verify docker is running and the scanner image is present"),
		logging.String(logging.FieldImpact, "scan verdict recorded as failed"),
	)
	if output != "" {
		output += "\n"
	}
	return -1, output + err.Error(), nil
}

var (
	_ stage.Task = (*Task)(nil)
	_ Runner     = (*docker.Runner)(nil)
)
