package hashing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/safetensors"
	"modelscanner/internal/services"
)

const sshsModelHashKey = "sshs_model_hash"

// Store is the slice of the object store gateway the engine needs to push a
// repaired file back to where it came from.
type Store interface {
	ObjectKey(rawURL string) (string, error)
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Engine computes fingerprints and applies header repairs.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine builds an engine. A nil store disables header repair.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logging.NewComponentLogger(logger, "hashing")}
}

// ComputeHashes repairs a stale sshs_model_hash in safetensors files, then
// digests the (possibly rewritten) file. A repaired file is uploaded to the
// object key of res.URL and recorded in res.Fixed.
func (e *Engine) ComputeHashes(ctx context.Context, path string, res *result.ScanResult) (map[string]string, error) {
	if e.store != nil && safetensors.Is(path) {
		if err := e.repair(ctx, path, res); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	hashes, err := Digest(ctx, path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "hash", "digest", "Unable to read model file", err)
	}
	logging.WithContext(ctx, e.logger).Debug("hashes computed",
		logging.String("file", path),
		logging.Int("algorithms", len(hashes)),
		logging.Duration("duration", time.Since(start)),
	)
	return hashes, nil
}

func (e *Engine) repair(ctx context.Context, path string, res *result.ScanResult) error {
	logger := logging.WithContext(ctx, e.logger)

	header, err := safetensors.ReadHeaderFile(path)
	if err != nil {
		logger.Debug("header repair skipped", logging.String("reason", "unreadable header"), logging.Error(err))
		return nil
	}
	stored, ok := header.MetadataString(sshsModelHashKey)
	if !ok {
		return nil
	}
	actual, err := tensorDigest(ctx, path, header.DataOffset())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "hash", "digest tensors", "Unable to read model file", err)
	}
	if strings.EqualFold(stored, actual) {
		return nil
	}

	next, err := header.WithMetadataString(sshsModelHashKey, strings.ToLower(actual))
	if err != nil {
		logger.Debug("header repair skipped", logging.String("reason", "malformed metadata"), logging.Error(err))
		return nil
	}
	key, err := e.store.ObjectKey(res.URL)
	if err != nil {
		return services.Wrap(services.ErrValidation, "hash", "resolve object key", "Result URL does not address an object", err)
	}
	if err := safetensors.ReplaceHeader(path, header, next); err != nil {
		return services.Wrap(services.ErrTransient, "hash", "rewrite header", "Unable to rewrite safetensors header", err)
	}
	if _, err := e.store.Upload(ctx, path, key); err != nil {
		return err
	}
	res.MarkFixed(result.FixSSHSHash)
	logger.Info("repaired stale model hash",
		logging.String(logging.FieldEventType, "sshs_hash_repaired"),
		logging.String("object_key", key),
		logging.String("previous", stored),
		logging.String("current", strings.ToLower(actual)),
	)
	return nil
}
