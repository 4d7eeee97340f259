package queue

import (
	"fmt"
	"strings"
	"time"

	"modelscanner/internal/stage"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is recorded on jobs interrupted by daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Kind is the type of work a job carries.
type Kind string

const (
	KindProcess   Kind = "process"
	KindCleanup   Kind = "cleanup"
	KindDelete    Kind = "delete"
	KindPurgeTemp Kind = "purge_temp"
)

// ParseKind converts user input into a Kind.
func ParseKind(value string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindProcess, KindCleanup, KindDelete, KindPurgeTemp:
		return k, true
	}
	return "", false
}

// Priority orders claims; lower values are claimed first.
type Priority int

const (
	PriorityNormal Priority = 0
	PriorityLow    Priority = 1
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "default"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority-%d", int(p))
}

// Request describes a job to enqueue.
type Request struct {
	Kind        Kind
	FileURL     string
	CallbackURL string
	Tasks       stage.Kind
	Priority    Priority
	ObjectKey   string
}

// Validate checks that the request carries what its kind needs.
func (r Request) Validate() error {
	switch r.Kind {
	case KindProcess:
		if strings.TrimSpace(r.FileURL) == "" {
			return fmt.Errorf("%w: process job requires a file url", ErrInvalidRequest)
		}
	case KindDelete:
		if strings.TrimSpace(r.ObjectKey) == "" {
			return fmt.Errorf("%w: delete job requires an object key", ErrInvalidRequest)
		}
	case KindCleanup, KindPurgeTemp:
	default:
		return fmt.Errorf("%w: unknown job kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.Priority != PriorityNormal && r.Priority != PriorityLow {
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidRequest, r.Priority)
	}
	return nil
}

// Job is a persisted unit of work.
type Job struct {
	ID           int64      `json:"id"`
	Kind         Kind       `json:"kind"`
	FileURL      string     `json:"fileUrl,omitempty"`
	CallbackURL  string     `json:"callbackUrl,omitempty"`
	Tasks        stage.Kind `json:"tasks"`
	Priority     Priority   `json:"priority"`
	ObjectKey    string     `json:"objectKey,omitempty"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	AvailableAt  time.Time  `json:"availableAt"`
	HeartbeatAt  *time.Time `json:"heartbeatAt,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Target is the human-facing subject of the job.
func (j *Job) Target() string {
	switch j.Kind {
	case KindProcess:
		return j.FileURL
	case KindDelete:
		return j.ObjectKey
	}
	return "-"
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}
