package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus values for the background queue.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one row in the background job queue.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ErrorMessage string
	ScheduledAt  time.Time
	StartedAt    *time.Time
	CreatedAt    time.Time
}

// EnqueueJobParams describes a new queue entry.
type EnqueueJobParams struct {
	JobType     string
	Payload     json.RawMessage
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

// EnqueueJob inserts a pending job.
func (s *Store) EnqueueJob(ctx context.Context, p EnqueueJobParams) (Job, error) {
	const op = "repository.EnqueueJob"

	j := Job{
		ID:          uuid.New(),
		JobType:     p.JobType,
		Payload:     p.Payload,
		Status:      JobStatusPending,
		Priority:    p.Priority,
		MaxAttempts: p.MaxAttempts,
		ScheduledAt: p.ScheduledAt,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, job_type, payload, status, priority, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, now())
		RETURNING created_at`,
		j.ID, j.JobType, j.Payload, j.Priority, j.MaxAttempts, j.ScheduledAt,
	).Scan(&j.CreatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// DequeueJob claims the next due job and marks it running in one transaction.
// SKIP LOCKED keeps concurrent workers from fighting over the same row.
// Returns ErrNotFound when no job is due.
func (s *Store) DequeueJob(ctx context.Context) (Job, error) {
	const op = "repository.DequeueJob"

	var j Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id, job_type, payload, priority, attempts, max_attempts, scheduled_at, created_at
			FROM jobs
			WHERE status = 'pending' AND scheduled_at <= now()
			ORDER BY priority DESC, scheduled_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1`,
		).Scan(&j.ID, &j.JobType, &j.Payload, &j.Priority, &j.Attempts, &j.MaxAttempts, &j.ScheduledAt, &j.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select job: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'running', attempts = attempts + 1, started_at = now()
			WHERE id = $1`,
			j.ID); err != nil {
			return fmt.Errorf("mark running: %w", err)
		}
		j.Status = JobStatusRunning
		j.Attempts++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// CompleteJob marks a job as successfully finished.
func (s *Store) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	const op = "repository.CompleteJob"

	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed' WHERE id = $1`,
		jobID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FailJob records a job failure. Jobs below their attempt cap go back to
// pending with exponential backoff; exhausted or permanently failed jobs go
// terminal.
func (s *Store) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string, permanent bool) error {
	const op = "repository.FailJob"

	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = CASE WHEN $3 OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    error_message = $2,
		    scheduled_at = CASE WHEN $3 OR attempts >= max_attempts
		        THEN scheduled_at
		        ELSE now() + (power(2, attempts) * interval '1 minute')
		    END
		WHERE id = $1`,
		jobID, errorMessage, permanent)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecoverStaleJobs resets jobs stuck in running longer than the threshold
// back to pending. Handles workers that crashed mid-job.
func (s *Store) RecoverStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	const op = "repository.RecoverStaleJobs"

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', started_at = NULL
		WHERE status = 'running'
		  AND started_at < now() - ($1 * interval '1 second')`,
		int(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
