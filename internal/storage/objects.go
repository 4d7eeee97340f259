package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"

	"modelscanner/internal/logging"
	"modelscanner/internal/services"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// Upload puts the local file under key in the canonical bucket and returns
// its canonical URL. Any transport failure is returned.
func (g *Gateway) Upload(ctx context.Context, localPath, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "upload", "empty object key", nil)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "open local file", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "stat local file", err)
	}

	start := time.Now()
	_, err = g.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.opts.UploadBucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", wrapTransport("upload", key, err)
	}
	logging.WithContext(ctx, g.logger).Info("object uploaded",
		logging.String("bucket", g.opts.UploadBucket),
		logging.String("object_key", key),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("duration", time.Since(start)),
	)
	return g.CanonicalURL(key), nil
}

// Import uploads a file that came from outside the object store under a
// collision-resistant key: imported/<name>.<random><ext>.
func (g *Gateway) Import(ctx context.Context, localPath, suggestedName string) (string, error) {
	return g.Upload(ctx, localPath, ImportKey(suggestedName))
}

// ImportKey derives the randomized key used by Import.
func ImportKey(suggestedName string) string {
	base := filepath.Base(strings.TrimSpace(suggestedName))
	if base == "." || base == "/" || base == "" {
		base = "model"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "model"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return importPrefix + stem + "." + suffix + ext
}

// Head returns object metadata. Missing objects yield services.ErrNotFound.
func (g *Gateway) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := g.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, wrapTransport("head", key, err)
	}
	return ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// CopyCrossBucket copies key from sourceBucket into the canonical bucket with
// a server-side multipart copy in CopyPartSize ranges.
func (g *Gateway) CopyCrossBucket(ctx context.Context, sourceBucket, key string) (string, error) {
	src, err := g.Head(ctx, sourceBucket, key)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, g.logger)
	start := time.Now()

	if src.Size == 0 {
		if _, err := g.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(g.opts.UploadBucket),
			Key:        aws.String(key),
			CopySource: aws.String(copySource(sourceBucket, key)),
		}); err != nil {
			return "", wrapTransport("copy", key, err)
		}
		return g.CanonicalURL(key), nil
	}

	create := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(g.opts.UploadBucket),
		Key:    aws.String(key),
	}
	if src.ContentType != "" {
		create.ContentType = aws.String(src.ContentType)
	}
	upload, err := g.api.CreateMultipartUpload(ctx, create)
	if err != nil {
		return "", wrapTransport("create multipart upload", key, err)
	}
	uploadID := upload.UploadId

	var parts []types.CompletedPart
	for offset, partNumber := int64(0), int32(1); offset < src.Size; offset, partNumber = offset+CopyPartSize, partNumber+1 {
		last := min(offset+CopyPartSize, src.Size) - 1
		out, err := g.api.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          aws.String(g.opts.UploadBucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			PartNumber:      aws.Int32(partNumber),
			CopySource:      aws.String(copySource(sourceBucket, key)),
			CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", offset, last)),
		})
		if err != nil {
			g.abort(key, uploadID)
			return "", wrapTransport(fmt.Sprintf("copy part %d", partNumber), key, err)
		}
		var etag *string
		if out.CopyPartResult != nil {
			etag = out.CopyPartResult.ETag
		}
		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(partNumber)})
	}

	if _, err := g.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(g.opts.UploadBucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}); err != nil {
		g.abort(key, uploadID)
		return "", wrapTransport("complete multipart upload", key, err)
	}

	logger.Info("object copied",
		logging.String("source_bucket", sourceBucket),
		logging.String("bucket", g.opts.UploadBucket),
		logging.String("object_key", key),
		logging.Int("parts", len(parts)),
		logging.Int64("size_bytes", src.Size),
		logging.Duration("duration", time.Since(start)),
	)
	return g.CanonicalURL(key), nil
}

func (g *Gateway) abort(key string, uploadID *string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := g.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.opts.UploadBucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	}); err != nil {
		logging.WarnWithContext(g.logger, "abort multipart upload failed", "multipart_abort_failed",
			logging.String("object_key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "incomplete parts remain until the bucket lifecycle removes them"),
		)
	}
}

// Delete removes key from both the temp and canonical buckets. Objects that
// are already gone are ignored.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return services.Wrap(services.ErrValidation, "storage", "delete", "empty object key", nil)
	}
	var errs []error
	for _, bucket := range []string{g.opts.TempBucket, g.opts.UploadBucket} {
		_, err := g.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil && !isNotFound(err) {
			errs = append(errs, wrapTransport("delete "+bucket, key, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logging.WithContext(ctx, g.logger).Info("object deleted", logging.String("object_key", key))
	return nil
}

// SoftDelete moves key in the canonical bucket under deleted/, provided the
// object still carries eTag. It returns the URL of the moved object.
func (g *Gateway) SoftDelete(ctx context.Context, key, eTag string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "soft delete", "empty object key", nil)
	}
	target := deletedPrefix + key
	in := &s3.CopyObjectInput{
		Bucket:     aws.String(g.opts.UploadBucket),
		Key:        aws.String(target),
		CopySource: aws.String(copySource(g.opts.UploadBucket, key)),
	}
	if eTag != "" {
		in.CopySourceIfMatch = aws.String(eTag)
	}
	if _, err := g.api.CopyObject(ctx, in); err != nil {
		return "", wrapTransport("soft delete copy", key, err)
	}
	if _, err := g.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.opts.UploadBucket),
		Key:    aws.String(key),
	}); err != nil && !isNotFound(err) {
		return "", wrapTransport("soft delete remove", key, err)
	}
	return g.CanonicalURL(target), nil
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
