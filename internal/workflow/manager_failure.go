package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"modelscanner/internal/logging"
	"modelscanner/internal/queue"
	"modelscanner/internal/services"
)

func (m *Manager) handleJobFailure(ctx context.Context, job *queue.Job, jobErr error) {
	logger := logging.WithContext(ctx, m.logger)
	message := failureMessage(job, jobErr)
	status := queue.FailureStatus(jobErr, job.Attempts, m.maxAttempts)
	retry := status == queue.StatusPending
	backoff := m.backoff(job.Attempts)

	attrs := []logging.Attr{
		logging.String("resolved_status", string(status)),
		logging.String("error_message", message),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", m.maxAttempts),
		logging.Bool("retryable", services.Retryable(jobErr)),
		logging.Error(jobErr),
	}
	if retry {
		attrs = append(attrs,
			logging.Duration("retry_after", backoff),
			logging.String(logging.FieldImpact, "job is retried after the backoff"),
		)
		logging.WarnWithContext(logger, "job failed, retry scheduled", "job_retry_scheduled", attrs...)
	} else {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, failureHint(jobErr)))
		logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
	}

	if err := m.store.Fail(context.WithoutCancel(ctx), job.ID, message, retry, backoff); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	m.setLastError(jobErr)
}

// backoff grows linearly with the attempt count.
func (m *Manager) backoff(attempts int) time.Duration {
	return m.retryBackoff * time.Duration(max(attempts, 1))
}

func failureMessage(job *queue.Job, err error) string {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = string(job.Kind) + " job failed without error detail"
	}
	return message
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "check the job input; retrying will not help"
	case errors.Is(err, services.ErrConfiguration):
		return "fix the daemon configuration, then run queue retry"
	case errors.Is(err, services.ErrTimeout):
		return "raise scanner.command_timeout or check the container"
	default:
		return "inspect the error, then run queue retry"
	}
}
