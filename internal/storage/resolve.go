package storage

import (
	"errors"
	"net/url"
	"strings"
)

// ResolveBucket reports which known bucket a URL points into. Subdomain
// matches are checked before path matches, and the upload bucket before the
// temp bucket, so https://upload.host/temp/x resolves to the upload bucket.
// Only the leading path segment is considered.
func (g *Gateway) ResolveBucket(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Hostname()
	for _, bucket := range g.buckets() {
		if hostMatches(host, bucket) {
			return bucket, true
		}
	}
	first := firstSegment(u.Path)
	for _, bucket := range g.buckets() {
		if strings.EqualFold(first, bucket) {
			return bucket, true
		}
	}
	return "", false
}

// ObjectKey returns the key a URL addresses: its path without the leading
// slash, and without the bucket segment for path-style URLs.
func (g *Gateway) ObjectKey(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	key := strings.TrimLeft(u.Path, "/")
	hostStyle := false
	for _, bucket := range g.buckets() {
		if hostMatches(u.Hostname(), bucket) {
			hostStyle = true
			break
		}
	}
	if !hostStyle {
		first := firstSegment(u.Path)
		for _, bucket := range g.buckets() {
			if strings.EqualFold(first, bucket) {
				key = strings.TrimLeft(key[len(first):], "/")
				break
			}
		}
	}
	if key == "" {
		return "", errors.New("url has no object key")
	}
	return key, nil
}

func (g *Gateway) buckets() [2]string {
	return [2]string{g.opts.UploadBucket, g.opts.TempBucket}
}

func hostMatches(host, bucket string) bool {
	if bucket == "" || host == "" {
		return false
	}
	host = strings.ToLower(host)
	bucket = strings.ToLower(bucket)
	return host == bucket || strings.HasPrefix(host, bucket+".")
}

func firstSegment(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
