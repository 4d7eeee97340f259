// Package storage is the gateway to the S3-compatible object store that holds
// model files. It knows two buckets: the canonical upload bucket that is the
// permanent home of processed files, and a temp bucket that staging uploads
// land in.
package storage
