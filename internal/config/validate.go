package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable. Storage credentials are not
// required here; ValidateStorage checks them for the commands that touch the
// object store.
func (c *Config) Validate() error {
	if err := ensurePositive(map[string]int{
		"storage.stale_age_days":       c.Storage.StaleAgeDays,
		"scanner.command_timeout":      c.Scanner.CommandTimeout,
		"scanner.download_timeout":     c.Scanner.DownloadTimeout,
		"callback.timeout":             c.Callback.Timeout,
		"workflow.workers":             c.Workflow.Workers,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.heartbeat_interval":  c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":   c.Workflow.HeartbeatTimeout,
		"workflow.max_attempts":        c.Workflow.MaxAttempts,
		"cleanup.cutoff_hours":         c.Cleanup.CutoffHours,
		"cleanup.local_max_age_hours":  c.Cleanup.LocalMaxAgeHours,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryBackoff < 0 {
		return errors.New("workflow.retry_backoff must not be negative")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Scanner.MinConversionSizeBytes <= 0 {
		return errors.New("scanner.min_conversion_size_bytes must be positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Storage.ServiceURL != "" {
		if err := validateHTTPURL("storage.service_url", c.Storage.ServiceURL); err != nil {
			return err
		}
	}
	if c.Storage.UploadBucket != "" && strings.EqualFold(c.Storage.UploadBucket, c.Storage.TempBucket) {
		return errors.New("storage.upload_bucket and storage.temp_bucket must differ")
	}
	return nil
}

// ValidateStorage reports which object store settings are missing.
func (c *Config) ValidateStorage() error {
	var missing []string
	for name, value := range map[string]string{
		"storage.service_url":   c.Storage.ServiceURL,
		"storage.access_key":    c.Storage.AccessKey,
		"storage.secret_key":    c.Storage.SecretKey,
		"storage.upload_bucket": c.Storage.UploadBucket,
		"storage.temp_bucket":   c.Storage.TempBucket,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing object store settings: %s (set them in the config file or %s/%s)",
		strings.Join(missing, ", "), envAccessKey, envSecretKey)
}

func ensurePositive(values map[string]int) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if values[name] <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
