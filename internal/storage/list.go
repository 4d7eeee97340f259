package storage

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"modelscanner/internal/logging"
)

// ListObjects lazily lists every object in bucket, following continuation
// tokens. Each call starts a fresh listing. Iteration stops after the first
// error is yielded.
func (g *Gateway) ListObjects(ctx context.Context, bucket string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		pages := s3.NewListObjectsV2Paginator(g.api, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield(ObjectInfo{}, wrapTransport("list", bucket, err))
				return
			}
			for _, obj := range page.Contents {
				info := ObjectInfo{
					Bucket:       bucket,
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
					ETag:         aws.ToString(obj.ETag),
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// ListStaleObjects yields objects in bucket last modified before olderThan.
func (g *Gateway) ListStaleObjects(ctx context.Context, bucket string, olderThan time.Time) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		for obj, err := range g.ListObjects(ctx, bucket) {
			if err != nil {
				yield(obj, err)
				return
			}
			if !obj.LastModified.Before(olderThan) {
				continue
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// CleanupTempStorage deletes temp bucket objects older than the configured
// stale age in batches and returns how many were removed.
func (g *Gateway) CleanupTempStorage(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-g.opts.StaleAge)
	logger := logging.WithContext(ctx, g.logger)

	removed := 0
	batch := make([]types.ObjectIdentifier, 0, deleteBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := g.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(g.opts.TempBucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return wrapTransport("delete batch", g.opts.TempBucket, err)
		}
		failed := len(out.Errors)
		for _, e := range out.Errors {
			logging.WarnWithContext(logger, "stale object not deleted", "temp_purge_object_failed",
				logging.String("object_key", aws.ToString(e.Key)),
				logging.String("reason", aws.ToString(e.Message)),
				logging.String(logging.FieldImpact, "object is retried on the next purge"),
			)
		}
		removed += len(batch) - failed
		batch = batch[:0]
		return nil
	}

	var errs []error
	for obj, err := range g.ListStaleObjects(ctx, g.opts.TempBucket, cutoff) {
		if err != nil {
			errs = append(errs, err)
			break
		}
		batch = append(batch, types.ObjectIdentifier{Key: aws.String(obj.Key)})
		if len(batch) == deleteBatchSize {
			if err := flush(); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	if len(errs) == 0 {
		if err := flush(); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("temp storage purged",
		logging.String("bucket", g.opts.TempBucket),
		logging.Int("removed", removed),
		logging.Duration("stale_age", g.opts.StaleAge),
	)
	return removed, errors.Join(errs...)
}
