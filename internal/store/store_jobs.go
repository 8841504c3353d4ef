package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, session_id, status, progress, current_step, error_message,
    stitched_file, final_file, cancel_requested, started_at, completed_at, created_at, updated_at`

// CreateJob enqueues a processing job for a session. The job starts queued at
// zero progress; StartedAt records submission time.
func (s *Store) CreateJob(ctx context.Context, sessionID string) (*Job, error) {
	if sessionID == "" {
		return nil, errors.New("job requires a session id")
	}
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Status:      JobQueued,
		Progress:    0,
		CurrentStep: "Queued for processing",
		StartedAt:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	timestamp := formatTime(now)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_jobs (`+jobColumns+`)
         VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, 0, ?, NULL, ?, ?)`,
		job.ID, job.SessionID, job.Status, job.Progress, job.CurrentStep,
		formatTime(now), timestamp, timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob returns a job by ID, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs most recently started first. When statuses is
// non-empty only matching jobs are returned.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextQueuedJob claims the oldest queued job and marks it running. Returns
// nil when the queue is empty. The claim is a single conditional UPDATE so
// concurrent callers cannot both take the same job.
func (s *Store) NextQueuedJob(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM processing_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`, JobQueued)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next queued job: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		JobRunning, formatTime(time.Now().UTC()), id, JobQueued)
	if err != nil {
		return nil, fmt.Errorf("claim queued job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Lost the race; caller polls again.
		return nil, nil
	}
	return s.GetJob(ctx, id)
}

// UpdateJob writes progress, step, artifact, and terminal fields back.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET
             status = ?, progress = ?, current_step = ?, error_message = ?,
             stitched_file = ?, final_file = ?, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		job.Status,
		job.Progress,
		job.CurrentStep,
		nullableString(job.ErrorMessage),
		nullableString(job.StitchedFile),
		nullableString(job.FinalFile),
		nullableTime(job.CompletedAt),
		formatTime(job.UpdatedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// MarkCancelled cancels a job that is still queued. Returns true when the
// transition happened, false when the job was no longer queued.
func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = ?, current_step = 'Cancelled', completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobCancelled, formatTime(now), formatTime(now), id, JobQueued)
	if err != nil {
		return false, fmt.Errorf("cancel queued job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RequestCancel flags a running job for cooperative cancellation. The worker
// observes the flag at its next checkpoint. Returns true when the job was
// running and the flag was set.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		formatTime(time.Now().UTC()), id, JobRunning)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CancelRequested reports whether a cancel has been flagged for the job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM processing_jobs WHERE id = ?`, id)
	var flag int
	if err := row.Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("cancel requested: %w", err)
	}
	return flag != 0, nil
}

// FailOrphanedRunning marks any job left running by a previous process as
// failed. Called once at daemon startup before the worker begins polling.
func (s *Store) FailOrphanedRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET
             status = ?, current_step = 'Processing failed',
             error_message = 'daemon restarted during processing',
             completed_at = ?, updated_at = ?
         WHERE status = ?`,
		JobFailed, formatTime(now), formatTime(now), JobRunning)
	if err != nil {
		return 0, fmt.Errorf("fail orphaned jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates job counts by status.
func (s *Store) Stats(ctx context.Context) (*StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	summary := &StatsSummary{}
	for rows.Next() {
		var (
			status JobStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.Total += count
		switch status {
		case JobQueued:
			summary.Queued = count
		case JobRunning:
			summary.Running = count
		case JobCompleted:
			summary.Completed = count
		case JobFailed:
			summary.Failed = count
		case JobCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		errorMessage sql.NullString
		stitched     sql.NullString
		final        sql.NullString
		cancelFlag   int
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.SessionID,
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&errorMessage,
		&stitched,
		&final,
		&cancelFlag,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.ErrorMessage = errorMessage.String
	job.StitchedFile = stitched.String
	job.FinalFile = final.String
	job.CancelRequested = cancelFlag != 0
	if startedRaw.Valid {
		if parsed, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &parsed
		}
	}
	if completedRaw.Valid {
		if parsed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &parsed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}
