package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"modelscanner/internal/fileutil"
	"modelscanner/internal/hashing"
	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/services"
	"modelscanner/internal/services/docker"
	"modelscanner/internal/stage"
)

const (
	FormatSafetensors = "safetensors"
	FormatCheckpoint  = "ckpt"

	// DefaultMinOutputSize rejects converter output that cannot hold real weights.
	DefaultMinOutputSize = 1024 * 1024

	smallOutputMessage = "Expected an acceptable conversion, got a small file... skipping conversion"
)

// Runner executes the converter inside the scanner container.
type Runner interface {
	Run(ctx context.Context, command []string, inputPath string) (int, string, error)
	TempDir() string
}

// Store publishes converted artifacts.
type Store interface {
	ObjectKey(rawURL string) (string, error)
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Route maps a source extension to the converter script's from/to names.
type Route struct {
	From string
	To   string
}

// RouteFor returns the conversion for a file extension, if one exists.
func RouteFor(ext string) (Route, bool) {
	switch strings.ToLower(ext) {
	case ".ckpt", ".pt":
		return Route{From: FormatCheckpoint, To: FormatSafetensors}, true
	case ".safetensors":
		return Route{From: FormatSafetensors, To: FormatCheckpoint}, true
	}
	return Route{}, false
}

// Command is the converter invocation for route writing to outputName in the
// container's output directory.
func (r Route) Command(outputName string) []string {
	return []string{
		"python3",
		fmt.Sprintf("/convert/%s_to_%s.py", r.From, r.To),
		docker.InputPath,
		path.Join(docker.OutputDir, outputName),
	}
}

// Task converts the model and records the outcome under the target format.
type Task struct {
	runner  Runner
	store   Store
	minSize int64
	logger  *slog.Logger
}

// NewTask builds a convert task. A non-positive minSize uses DefaultMinOutputSize.
func NewTask(runner Runner, store Store, minSize int64, logger *slog.Logger) *Task {
	if minSize <= 0 {
		minSize = DefaultMinOutputSize
	}
	return &Task{
		runner:  runner,
		store:   store,
		minSize: minSize,
		logger:  logging.NewComponentLogger(logger, "convert"),
	}
}

func (t *Task) Kind() stage.Kind { return stage.KindConvert }

// Process never stops the pipeline. Converter failures are recorded on res;
// upload failures and cancellation are returned.
func (t *Task) Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error) {
	logger := logging.WithContext(ctx, t.logger)
	ext := filepath.Ext(filePath)
	route, ok := RouteFor(ext)
	if !ok {
		logger.Info("no conversion defined", logging.String("extension", ext))
		return true, nil
	}

	// The temp dir is shared across lanes; reserve the output name so a
	// sibling job's file is never overwritten or removed.
	base := strings.TrimSuffix(filepath.Base(filePath), ext)
	reserved, err := fileutil.CreateUnique(t.runner.TempDir(), base+"."+route.To)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "convert", "reserve output", base, err)
	}
	outputPath := reserved.Name()
	outputName := filepath.Base(outputPath)
	if err := reserved.Close(); err != nil {
		_ = fileutil.RemoveIfExists(outputPath)
		return false, services.Wrap(services.ErrTransient, "convert", "reserve output", outputPath, err)
	}
	defer func() {
		if err := fileutil.RemoveIfExists(outputPath); err != nil {
			logging.WarnWithContext(logger, "converted artifact cleanup failed", "conversion_cleanup_failed",
				logging.String("path", outputPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temporary file remains until the staging sweep"),
			)
		}
	}()

	code, output, err := t.runner.Run(ctx, route.Command(outputName), filePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return false, err
		}
		res.SetConversion(route.To, result.Conversion{ConversionOutput: strings.TrimSpace(output + "\n" + err.Error())})
		return true, nil
	}
	if code != 0 || output == "" {
		logger.Info("conversion failed",
			logging.String("target", route.To),
			logging.Int("exit_code", code),
		)
		res.SetConversion(route.To, result.Conversion{ConversionOutput: output})
		return true, nil
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() < t.minSize {
		logging.WarnWithContext(logger, "conversion output too small", "conversion_small_output",
			logging.String("target", route.To),
			logging.Int64("min_size_bytes", t.minSize),
			logging.String(logging.FieldImpact, "conversion recorded as failed"),
		)
		res.SetConversion(route.To, result.Conversion{
			ConversionOutput: smallOutputMessage + "; Container output: " + output,
		})
		return true, nil
	}

	sourceKey, err := t.store.ObjectKey(res.URL)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "convert", "resolve object key", res.URL, err)
	}
	key := strings.TrimSuffix(sourceKey, path.Ext(sourceKey)) + "." + route.To
	uploaded, err := t.store.Upload(ctx, outputPath, key)
	if err != nil {
		return false, err
	}
	hashes, err := hashing.Digest(ctx, outputPath)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "convert", "hash artifact", outputPath, err)
	}

	sizeKB := float64(info.Size()) / 1024
	res.SetConversion(route.To, result.Conversion{
		URL:              &uploaded,
		Hashes:           hashes,
		ConversionOutput: output,
		SizeKB:           &sizeKB,
	})
	logger.Info("conversion uploaded",
		logging.String("target", route.To),
		logging.String("url", uploaded),
		logging.Float64("size_kb", sizeKB),
	)
	return true, nil
}

var (
	_ stage.Task = (*Task)(nil)
	_ Runner     = (*docker.Runner)(nil)
)
