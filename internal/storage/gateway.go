package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"modelscanner/internal/config"
	"modelscanner/internal/logging"
	"modelscanner/internal/services"
)

const (
	// LargeObjectThreshold separates direct uploads from server-side multipart
	// copies. R2 rejects multipart copies of small objects.
	LargeObjectThreshold = 100 * 1024 * 1024
	// CopyPartSize is the byte range copied per UploadPartCopy call.
	CopyPartSize = 100 * 1024 * 1024

	deleteBatchSize = 1000
	importPrefix    = "imported/"
	deletedPrefix   = "deleted/"
)

// API is the subset of the S3 client used by the gateway.
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Options is the immutable gateway configuration.
type Options struct {
	ServiceURL   string
	Region       string
	AccessKey    string
	SecretKey    string
	UploadBucket string
	TempBucket   string
	StaleAge     time.Duration
}

// OptionsFromConfig extracts gateway options from the [storage] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ServiceURL:   cfg.Storage.ServiceURL,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		UploadBucket: cfg.Storage.UploadBucket,
		TempBucket:   cfg.Storage.TempBucket,
		StaleAge:     cfg.StaleAge(),
	}
}

// Gateway performs bucket-aware object operations.
type Gateway struct {
	opts    Options
	api     API
	baseURL string
	logger  *slog.Logger
}

// NewClient builds an S3 client for an R2-style endpoint: path-style
// addressing, static credentials and unsigned payloads.
func NewClient(opts Options) *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint:               aws.String(opts.ServiceURL),
		Region:                     opts.Region,
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
}

// New builds a gateway over api. A nil api constructs the default S3 client.
func New(opts Options, api API, logger *slog.Logger) (*Gateway, error) {
	opts.ServiceURL = strings.TrimRight(strings.TrimSpace(opts.ServiceURL), "/")
	var missing []string
	if opts.ServiceURL == "" {
		missing = append(missing, "service url")
	}
	if opts.UploadBucket == "" {
		missing = append(missing, "upload bucket")
	}
	if opts.TempBucket == "" {
		missing = append(missing, "temp bucket")
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "missing "+strings.Join(missing, ", "), nil)
	}
	if opts.Region == "" {
		opts.Region = "auto"
	}
	if api == nil {
		if opts.AccessKey == "" || opts.SecretKey == "" {
			return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "missing access key or secret key", nil)
		}
		api = NewClient(opts)
	}
	return &Gateway{
		opts:    opts,
		api:     api,
		baseURL: opts.ServiceURL + "/" + opts.UploadBucket + "/",
		logger:  logging.NewComponentLogger(logger, "storage"),
	}, nil
}

// Options returns the gateway configuration.
func (g *Gateway) Options() Options {
	return g.opts
}

// UploadBucket is the canonical bucket name.
func (g *Gateway) UploadBucket() string {
	return g.opts.UploadBucket
}

// CanonicalURL is the public URL of key in the upload bucket.
func (g *Gateway) CanonicalURL(key string) string {
	return g.baseURL + strings.TrimLeft(key, "/")
}

func wrapTransport(operation, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isNotFound(err) {
		return services.Wrap(services.ErrNotFound, "storage", operation, key, err)
	}
	return services.Wrap(services.ErrTransient, "storage", operation, fmt.Sprintf("object %q", key), err)
}
