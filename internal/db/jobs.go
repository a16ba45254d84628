package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/reelrender/internal/models"
	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no render job has the requested id.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `
	id, status, stage, progress, request, duration_seconds, artifact_path,
	error_kind, error_message, started_at, finished_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner, job *models.Job) error {
	return row.Scan(
		&job.ID, &job.Status, &job.Stage, &job.Progress, &job.Request,
		&job.DurationSeconds, &job.ArtifactPath, &job.ErrorKind, &job.ErrorMessage,
		&job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
}

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO render_jobs (
			id, status, stage, progress, request
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Status, job.Stage, job.Progress, job.Request,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE id = $1`

	job := &models.Job{}
	err := scanJob(db.QueryRowContext(ctx, query, id), job)

	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs returns jobs ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + jobColumns + ` FROM render_jobs`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// CountJobs returns the total number of jobs, optionally filtered by status.
func (db *DB) CountJobs(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM render_jobs WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM render_jobs`).Scan(&count)
	return count, err
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	now := time.Now()
	query := `UPDATE render_jobs SET status = $1, started_at = $2, updated_at = NOW() WHERE id = $3`

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query = `UPDATE render_jobs SET status = $1, finished_at = $2, updated_at = NOW() WHERE id = $3`
	}

	_, err := db.ExecContext(ctx, query, status, now, id)
	return err
}

// UpdateJobProgress records the current stage. Progress never moves backwards.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, stage models.Stage, progress int) error {
	query := `
		UPDATE render_jobs
		SET stage = $1, progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, stage, progress, id)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, kind models.ErrorKind, errorMessage string) error {
	query := `
		UPDATE render_jobs
		SET status = $1, stage = $2, error_kind = $3, error_message = $4,
			finished_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	var kindValue *string
	if kind != "" {
		k := string(kind)
		kindValue = &k
	}
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, models.StageFailed, kindValue, errorMessage, time.Now(), id)
	return err
}

// CompleteJob stores the artifact location and marks the job finished.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, artifactPath string, durationSeconds float64) error {
	query := `
		UPDATE render_jobs
		SET status = $1, stage = $2, progress = 100, artifact_path = $3,
			duration_seconds = $4, finished_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusCompleted, models.StageComplete, artifactPath, durationSeconds, time.Now(), id)
	return err
}
