package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"reservo/internal/models"
)

func (db *DB) CreateReminderJob(ctx context.Context, job *models.ReminderJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now().UTC()
	var lastError any
	if job.LastError != nil {
		lastError = *job.LastError
	}

	_, err := db.exec(ctx, sq.Insert("reminder_jobs").
		Columns("id", "reservation_id", "kind", "run_at", "status", "attempts", "last_error", "created_at").
		Values(job.ID, job.ReservationID, job.Kind, job.RunAt.UTC(), job.Status, job.Attempts, lastError, now))
	if err != nil {
		return fmt.Errorf("failed to create reminder job: %w", err)
	}
	job.CreatedAt = now
	return nil
}

// GetDueReminderJobs returns pending or retrying jobs whose run_at has passed.
func (db *DB) GetDueReminderJobs(ctx context.Context, now time.Time, limit int) ([]*models.ReminderJob, error) {
	rows, err := db.query(ctx, sq.Select("id", "reservation_id", "kind", "run_at", "status", "attempts", "last_error", "created_at", "processed_at").
		From("reminder_jobs").
		Where(sq.Eq{"status": []string{models.JobStatusPending, models.JobStatusRetry}}).
		Where(sq.LtOrEq{"run_at": now.UTC()}).
		OrderBy("run_at", "created_at").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to get due reminder jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ReminderJob
	for rows.Next() {
		var j models.ReminderJob
		if err := rows.Scan(&j.ID, &j.ReservationID, &j.Kind, &j.RunAt, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// UpdateReminderJobStatus moves a job to status. Retries are rescheduled to
// nextRunAt and count an attempt; done and failed jobs are stamped processed.
func (db *DB) UpdateReminderJobStatus(ctx context.Context, id, status, errMsg string, nextRunAt *time.Time) error {
	var lastError any
	if errMsg != "" {
		lastError = errMsg
	}
	now := time.Now().UTC()

	q := sq.Update("reminder_jobs").
		Set("status", status).
		Set("last_error", lastError).
		Where(sq.Eq{"id": id})

	switch status {
	case models.JobStatusRetry:
		q = q.Set("attempts", sq.Expr("attempts + 1"))
		if nextRunAt != nil {
			q = q.Set("run_at", nextRunAt.UTC())
		}
	case models.JobStatusDone, models.JobStatusFailed:
		q = q.Set("attempts", sq.Expr("attempts + 1")).Set("processed_at", now)
	}

	res, err := db.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to update reminder job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reminder job %s not found", id)
	}
	return nil
}
