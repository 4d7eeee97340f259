package queue

import (
	"errors"

	"modelscanner/internal/services"
)

// ErrInvalidRequest marks an enqueue request that can never succeed.
var ErrInvalidRequest = errors.New("invalid job request")

// FailureStatus maps a job error to the status the worker should persist.
// Retryable errors go back to pending while attempts remain; everything else
// fails the job.
func FailureStatus(err error, attempts, maxAttempts int) Status {
	if services.Retryable(err) && attempts < maxAttempts {
		return StatusPending
	}
	return StatusFailed
}
