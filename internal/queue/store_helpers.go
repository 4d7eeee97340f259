package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"modelscanner/internal/stage"
)

const jobColumns = "id, kind, file_url, callback_url, tasks, priority, object_key, status, attempts, error_message, created_at, updated_at, available_at, heartbeat_at, started_at, finished_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		kind         string
		fileURL      sql.NullString
		callbackURL  sql.NullString
		tasks        int64
		priority     int64
		objectKey    sql.NullString
		status       string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
		availableRaw string
		heartbeatRaw sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&kind,
		&fileURL,
		&callbackURL,
		&tasks,
		&priority,
		&objectKey,
		&status,
		&job.Attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&availableRaw,
		&heartbeatRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job.Kind = Kind(kind)
	job.FileURL = fileURL.String
	job.CallbackURL = callbackURL.String
	job.Tasks = stage.Kind(tasks)
	job.Priority = Priority(priority)
	job.ObjectKey = objectKey.String
	job.Status = Status(status)
	job.ErrorMessage = errorMessage.String
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	job.AvailableAt, _ = parseTimeString(availableRaw)
	job.HeartbeatAt = parseNullableTime(heartbeatRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	return &job, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
