package cleanup

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"modelscanner/internal/logging"
	"modelscanner/internal/services"
	"modelscanner/internal/storage"
)

// References yields the file URLs the site still points at.
type References interface {
	ModelFileURLs(ctx context.Context) iter.Seq2[string, error]
}

// Store is the part of the storage gateway the job needs.
type Store interface {
	UploadBucket() string
	ListObjects(ctx context.Context, bucket string) iter.Seq2[storage.ObjectInfo, error]
	SoftDelete(ctx context.Context, key, eTag string) (string, error)
}

// Summary counts what a run did with each object.
type Summary struct {
	Referenced  int `json:"referenced"`
	Examined    int `json:"examined"`
	Young       int `json:"young"`
	Unparseable int `json:"unparseable"`
	Kept        int `json:"kept"`
	Deleted     int `json:"deleted"`
}

// Job runs one cleanup pass.
type Job struct {
	refs   References
	store  Store
	cutoff time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewJob builds a cleanup job that spares objects modified within cutoff.
func NewJob(refs References, store Store, cutoff time.Duration, logger *slog.Logger) *Job {
	return &Job{
		refs:   refs,
		store:  store,
		cutoff: cutoff,
		logger: logging.NewComponentLogger(logger, "cleanup"),
		now:    time.Now,
	}
}

// Run indexes the references and soft-deletes stale unreferenced uploads.
// Listing and indexing failures abort the run; a failed soft delete is logged
// and the walk continues.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	ctx = services.WithStage(ctx, "cleanup")
	logger := logging.WithContext(ctx, j.logger)
	var summary Summary

	index, err := j.index(ctx)
	if err != nil {
		return summary, err
	}
	summary.Referenced = len(index)
	logger.Info("indexed referenced files", logging.Int("count", len(index)))

	cutoff := j.now().Add(-j.cutoff)
	for obj, err := range j.store.ListObjects(ctx, j.store.UploadBucket()) {
		if err != nil {
			return summary, err
		}
		summary.Examined++
		if !obj.LastModified.Before(cutoff) {
			summary.Young++
			logger.Debug("skipping object not yet of age", logging.String("object_key", obj.Key))
			continue
		}
		userID, name, ok := ParseObjectPath(obj.Key)
		if !ok {
			summary.Unparseable++
			logger.Debug("skipping object outside the model layout", logging.String("object_key", obj.Key))
			continue
		}
		if _, found := index[reference{userID: userID, fileName: name}]; found {
			summary.Kept++
			continue
		}

		staleURL, err := j.store.SoftDelete(ctx, obj.Key, obj.ETag)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logging.WarnWithContext(logger, "soft delete failed", "cleanup_soft_delete_failed",
				logging.String("object_key", obj.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "object stays in place until the next cleanup"),
			)
			continue
		}
		summary.Deleted++
		logger.Info("moved unreferenced object",
			logging.String("object_key", obj.Key),
			logging.String("stale_url", staleURL),
		)
	}

	logger.Info("cleanup finished",
		logging.Int("examined", summary.Examined),
		logging.Int("deleted", summary.Deleted),
		logging.Int("kept", summary.Kept),
		logging.Int("young", summary.Young),
		logging.Int("unparseable", summary.Unparseable),
	)
	return summary, nil
}

func (j *Job) index(ctx context.Context) (map[reference]struct{}, error) {
	index := make(map[reference]struct{})
	for raw, err := range j.refs.ModelFileURLs(ctx) {
		if err != nil {
			return nil, err
		}
		if ref, ok := referenceFromURL(raw); ok {
			index[ref] = struct{}{}
		}
	}
	return index, nil
}
