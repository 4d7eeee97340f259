package storage_test

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	data     []byte
	size     int64
	modified time.Time
	etag     string
}

type copyRange struct {
	part int32
	rng  string
}

// fakeAPI is an in-memory bucket store implementing storage.API.
type fakeAPI struct {
	mu          sync.Mutex
	buckets     map[string]map[string]*fakeObject
	pageSize    int32
	listCalls   int
	partCopies  []copyRange
	completed   int
	aborted     int
	putErr      error
	deleteErr   error
	uploadSizes map[string]int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{buckets: map[string]map[string]*fakeObject{}, pageSize: 1000, uploadSizes: map[string]int64{}}
}

func (f *fakeAPI) put(bucket, key string, obj *fakeObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = map[string]*fakeObject{}
	}
	if obj.size == 0 {
		obj.size = int64(len(obj.data))
	}
	if obj.etag == "" {
		obj.etag = fmt.Sprintf("%q", strconv.Itoa(len(f.buckets[bucket])+1))
	}
	f.buckets[bucket][key] = obj
}

func (f *fakeAPI) get(bucket, key string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.buckets[bucket][key]
	return obj, ok
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.put(aws.ToString(in.Bucket), aws.ToString(in.Key), &fakeObject{data: data, modified: time.Now()})
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.get(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(obj.size),
		LastModified:  aws.Time(obj.modified),
		ETag:          aws.String(obj.etag),
	}, nil
}

func (f *fakeAPI) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	bucket, key, _ := strings.Cut(source, "/")
	obj, ok := f.get(bucket, key)
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if in.CopySourceIfMatch != nil && aws.ToString(in.CopySourceIfMatch) != obj.etag {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag mismatch"}
	}
	f.put(aws.ToString(in.Bucket), aws.ToString(in.Key), &fakeObject{data: obj.data, size: obj.size, modified: time.Now()})
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeAPI) UploadPartCopy(_ context.Context, in *s3.UploadPartCopyInput, _ ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rng := aws.ToString(in.CopySourceRange)
	f.partCopies = append(f.partCopies, copyRange{part: aws.ToInt32(in.PartNumber), rng: rng})
	var first, last int64
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &first, &last); err != nil {
		return nil, err
	}
	f.uploadSizes[aws.ToString(in.UploadId)] += last - first + 1
	return &s3.UploadPartCopyOutput{CopyPartResult: &types.CopyPartResult{ETag: aws.String(fmt.Sprintf("etag-%d", aws.ToInt32(in.PartNumber)))}}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	f.completed++
	size := f.uploadSizes[aws.ToString(in.UploadId)]
	f.mu.Unlock()
	f.put(aws.ToString(in.Bucket), aws.ToString(in.Key), &fakeObject{size: size, modified: time.Now()})
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeAPI) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buckets[aws.ToString(in.Bucket)], aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.buckets[aws.ToString(in.Bucket)], aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	keys := make([]string, 0, len(f.buckets[aws.ToString(in.Bucket)]))
	for k := range f.buckets[aws.ToString(in.Bucket)] {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+int(f.pageSize), len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		obj := f.buckets[aws.ToString(in.Bucket)][k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(obj.size),
			LastModified: aws.Time(obj.modified),
			ETag:         aws.String(obj.etag),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
