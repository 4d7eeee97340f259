package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enqueue validates req and inserts it as a pending job.
func (s *Store) Enqueue(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            kind, file_url, callback_url, tasks, priority, object_key,
            status, attempts, created_at, updated_at, available_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		string(req.Kind),
		nullableString(req.FileURL),
		nullableString(req.CallbackURL),
		int64(req.Tasks),
		int64(req.Priority),
		nullableString(strings.TrimLeft(req.ObjectKey, "/")),
		StatusPending,
		now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job. A missing job yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically moves the next available pending job to processing
// and increments its attempt count. Jobs are ordered by priority then id.
// With priorities given only those are considered. Returns (nil, nil) when
// nothing is ready.
func (s *Store) ClaimNext(ctx context.Context, priorities ...Priority) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())

	filter := ""
	args := []any{StatusProcessing, now, now, now, StatusPending, now}
	if len(priorities) > 0 {
		filter = ` AND priority IN (` + makePlaceholders(len(priorities)) + `)`
		for _, p := range priorities {
			args = append(args, int64(p))
		}
	}
	query := `UPDATE jobs
        SET status = ?, attempts = attempts + 1, started_at = ?, heartbeat_at = ?, updated_at = ?,
            finished_at = NULL
        WHERE id = (
            SELECT id FROM jobs
            WHERE status = ? AND available_at <= ?` + filter + `
            ORDER BY priority, id
            LIMIT 1
        )
        RETURNING ` + jobColumns

	var job *Job
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job as completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = NULL, heartbeat_at = NULL,
            finished_at = ?, updated_at = ? WHERE id = ?`,
		StatusCompleted, now, now, id,
	); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records cause on a job. With retry the job returns to pending and
// becomes claimable after retryAfter; otherwise it is failed for good.
func (s *Store) Fail(ctx context.Context, id int64, cause string, retry bool, retryAfter time.Duration) error {
	now := time.Now()
	status := StatusFailed
	var finished any = formatTime(now)
	if retry {
		status = StatusPending
		finished = nil
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, heartbeat_at = NULL,
            available_at = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(cause),
		formatTime(now.Add(max(retryAfter, 0))),
		finished,
		formatTime(now),
		id,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Release hands a claimed job back to pending without spending an attempt.
// Used when a job was claimed but never started, for example when the daemon
// stops or a preflight check fails.
func (s *Store) Release(ctx context.Context, id int64, reason string, delay time.Duration) error {
	now := time.Now()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, attempts = MAX(attempts - 1, 0), error_message = ?,
            heartbeat_at = NULL, available_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusPending,
		nullableString(reason),
		formatTime(now.Add(max(delay, 0))),
		formatTime(now),
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}
