package callback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"modelscanner/internal/config"
	"modelscanner/internal/logging"
	"modelscanner/internal/result"
)

const defaultTimeout = 30 * time.Second

// Reporter posts result snapshots.
type Reporter interface {
	Report(ctx context.Context, callbackURL string, res *result.ScanResult) error
}

// NewReporter builds an HTTP reporter from the [callback] section. A nil
// client uses a client with the configured timeout.
func NewReporter(cfg *config.Config, client *http.Client, logger *slog.Logger) Reporter {
	timeout := defaultTimeout
	userAgent := "modelscanner"
	if cfg != nil {
		if cfg.Callback.Timeout > 0 {
			timeout = time.Duration(cfg.Callback.Timeout) * time.Second
		}
		if ua := strings.TrimSpace(cfg.Callback.UserAgent); ua != "" {
			userAgent = ua
		}
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &httpReporter{
		client:    client,
		userAgent: userAgent,
		logger:    logging.NewComponentLogger(logger, "callback"),
	}
}

type httpReporter struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

func (h *httpReporter) Report(ctx context.Context, callbackURL string, res *result.ScanResult) error {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" || res == nil {
		return nil
	}
	logger := logging.WithContext(ctx, h.logger)

	body, err := res.JSON()
	if err != nil {
		err = fmt.Errorf("encode scan result: %w", err)
		logging.ErrorWithContext(logger, "callback encode failed", "callback_encode_failed",
			logging.String("callback_url", callbackURL),
			logging.Error(err),
		)
		return err
	}
	if err := h.send(ctx, callbackURL, body); err != nil {
		logging.WarnWithContext(logger, "callback delivery failed", "callback_failed",
			logging.String("callback_url", callbackURL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the callback endpoint is reachable"),
			logging.String(logging.FieldImpact, "caller misses this progress snapshot"),
		)
		return err
	}
	logger.Info("callback delivered",
		logging.String("callback_url", callbackURL),
		logging.Int("bytes", len(body)),
	)
	return nil
}

func (h *httpReporter) send(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Noop discards every report.
type Noop struct{}

func (Noop) Report(context.Context, string, *result.ScanResult) error { return nil }
