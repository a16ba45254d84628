package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	id               UUID PRIMARY KEY,
	status           TEXT NOT NULL,
	stage            TEXT NOT NULL DEFAULT 'init',
	progress         INTEGER NOT NULL DEFAULT 0,
	request          JSONB NOT NULL,
	duration_seconds DOUBLE PRECISION,
	artifact_path    TEXT,
	error_kind       TEXT,
	error_message    TEXT,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS render_jobs_status_created_idx ON render_jobs (status, created_at DESC);
`

// EnsureSchema creates the render_jobs table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// MarkInterruptedJobs fails jobs left running by a previous process. Their
// work directories died with it, so they can never finish.
func (db *DB) MarkInterruptedJobs(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = 'failed', stage = 'failed', error_message = 'interrupted by restart',
			finished_at = NOW(), updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[DB] Marked %d interrupted jobs as failed", n)
	}
	return n, nil
}
