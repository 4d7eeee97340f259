package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"modelscanner/internal/fileutil"
	"modelscanner/internal/logging"
	"modelscanner/internal/services"
	"modelscanner/internal/textutil"
)

const fallbackFileName = "model.bin"

type download struct {
	path     string
	notFound bool
	// reused marks a file found in the temp dir rather than downloaded; the
	// job does not own it.
	reused bool
}

func (p *Processor) download(ctx context.Context, fileURL string) (download, error) {
	u, err := url.Parse(strings.TrimSpace(fileURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return download{}, services.Wrap(services.ErrValidation, "download", "parse url", fmt.Sprintf("invalid file url %q", fileURL), err)
	}
	if err := os.MkdirAll(p.opts.TempDir, 0o755); err != nil {
		return download{}, services.Wrap(services.ErrConfiguration, "download", "create temp dir", p.opts.TempDir, err)
	}

	dlCtx := ctx
	if p.opts.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, p.opts.DownloadTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return download{}, services.Wrap(services.ErrValidation, "download", "build request", fileURL, err)
	}
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return download{}, ctx.Err()
		}
		return download{}, services.Wrap(services.ErrTransient, "download", "request", fileURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return download{notFound: true}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return download{}, services.Wrap(services.ErrTransient, "download", "request", fmt.Sprintf("%s returned %d", fileURL, resp.StatusCode), nil)
	}

	name := fileName(resp.Header.Get("Content-Disposition"), u)
	logger := logging.WithContext(ctx, p.logger)

	if p.opts.TrustLocalFiles {
		existing := filepath.Join(p.opts.TempDir, name)
		if info, err := os.Stat(existing); err == nil && info.Mode().IsRegular() {
			logger.Info("reusing local file", logging.String("path", existing))
			return download{path: existing, reused: true}, nil
		}
	}

	f, err := fileutil.CreateUnique(p.opts.TempDir, name)
	if err != nil {
		return download{}, services.Wrap(services.ErrTransient, "download", "create temp file", name, err)
	}
	start := time.Now()
	written, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = fileutil.RemoveIfExists(f.Name())
		if ctx.Err() != nil {
			return download{}, ctx.Err()
		}
		return download{}, services.Wrap(services.ErrTransient, "download", "write temp file", fileURL, err)
	}

	logger.Info("file downloaded",
		logging.String("path", f.Name()),
		logging.Int64("size_bytes", written),
		logging.Duration("duration", time.Since(start)),
	)
	return download{path: f.Name()}, nil
}

// fileName prefers the Content-Disposition filename, then the last URL path
// segment, and sanitizes the result into a single path element.
func fileName(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			base := path.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
			if name := textutil.SanitizeFileName(base); name != "" {
				return name
			}
		}
	}
	if name := textutil.SanitizeFileName(path.Base(u.Path)); name != "" && name != "-" {
		return name
	}
	return fallbackFileName
}
