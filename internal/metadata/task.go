// Package metadata attaches the safetensors header to the scan result.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/safetensors"
	"modelscanner/internal/stage"
)

// Task stores the decoded safetensors header as res.Metadata. It never stops
// the pipeline; unreadable headers are logged and skipped.
type Task struct {
	logger *slog.Logger
}

func NewTask(logger *slog.Logger) *Task {
	return &Task{logger: logging.NewComponentLogger(logger, "metadata")}
}

func (t *Task) Kind() stage.Kind { return stage.KindParseMetadata }

func (t *Task) Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error) {
	logger := logging.WithContext(ctx, t.logger)
	if !safetensors.Is(filePath) {
		logger.Info("metadata parsing skipped, safetensors file required", logging.String("file", filePath))
		return true, nil
	}

	header, err := safetensors.ReadHeaderFile(filePath)
	if err != nil {
		t.warn(logger, "unreadable header", err)
		return true, nil
	}
	raw := bytes.TrimSpace(header.Raw)
	if !json.Valid(raw) {
		t.warn(logger, "header is not valid json", nil)
		return true, nil
	}
	if err := header.Validate(); err != nil {
		logging.WarnWithContext(logger, "safetensors header failed validation", "metadata_schema_mismatch",
			logging.Error(err),
			logging.String(logging.FieldImpact, "metadata stored as found"),
		)
	}
	res.Metadata = json.RawMessage(raw)
	return true, nil
}

func (t *Task) warn(logger *slog.Logger, reason string, err error) {
	attrs := []logging.Attr{
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "metadata omitted from result"),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(logger, "metadata parsing failed", "metadata_parse_failed", attrs...)
}

var _ stage.Task = (*Task)(nil)
