package importing

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/services"
	"modelscanner/internal/stage"
	"modelscanner/internal/storage"
)

// Store is the gateway surface used by the import task.
type Store interface {
	ResolveBucket(rawURL string) (string, bool)
	UploadBucket() string
	ObjectKey(rawURL string) (string, error)
	Upload(ctx context.Context, localPath, key string) (string, error)
	Import(ctx context.Context, localPath, suggestedName string) (string, error)
	CopyCrossBucket(ctx context.Context, sourceBucket, key string) (string, error)
}

// Task rewrites res.URL to the file's canonical location.
type Task struct {
	store     Store
	threshold int64
	logger    *slog.Logger
}

// NewTask builds an import task that switches to server-side copies above
// storage.LargeObjectThreshold.
func NewTask(store Store, logger *slog.Logger) *Task {
	return &Task{
		store:     store,
		threshold: storage.LargeObjectThreshold,
		logger:    logging.NewComponentLogger(logger, "import"),
	}
}

func (t *Task) Kind() stage.Kind { return stage.KindImport }

func (t *Task) Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error) {
	logger := logging.WithContext(ctx, t.logger)

	bucket, ok := t.store.ResolveBucket(res.URL)
	if ok && bucket == t.store.UploadBucket() {
		logger.Debug("file already in canonical bucket", logging.String("url", res.URL))
		return true, nil
	}

	var (
		canonical string
		err       error
	)
	if !ok {
		logger.Info("importing file", logging.String("url", res.URL))
		canonical, err = t.store.Import(ctx, filePath, suggestedName(res.URL, filePath))
	} else {
		canonical, err = t.transfer(ctx, bucket, filePath, res.URL)
	}
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			logger.Info("source object not found, stopping",
				logging.String("url", res.URL),
				logging.String(logging.FieldEventType, "import_source_missing"),
			)
			return false, nil
		}
		return false, err
	}

	logger.Info("file imported",
		logging.String("url", res.URL),
		logging.String("canonical_url", canonical),
	)
	res.URL = canonical
	return true, nil
}

func (t *Task) transfer(ctx context.Context, bucket, filePath, rawURL string) (string, error) {
	key, err := t.store.ObjectKey(rawURL)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "import", "resolve object key", rawURL, err)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "import", "stat local file", filePath, err)
	}
	if info.Size() <= t.threshold {
		return t.store.Upload(ctx, filePath, key)
	}
	logging.WithContext(ctx, t.logger).Info("copying large object across buckets",
		logging.String("source_bucket", bucket),
		logging.String("object_key", key),
		logging.Int64("size_bytes", info.Size()),
	)
	return t.store.CopyCrossBucket(ctx, bucket, key)
}

// suggestedName is the last path segment of the source URL, falling back to
// the local file name.
func suggestedName(rawURL, filePath string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return filepath.Base(filePath)
}

var _ stage.Task = (*Task)(nil)
