// Package audit keeps a Postgres trail of login attempts. The trail is
// optional: with no database configured the orchestrator simply runs without
// a recorder.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Outcome values stored in the trail.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AttemptRecord is one audited login attempt.
type AttemptRecord struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      string
	Reason       string
	PhaseReached string
	PersistCount int
	DurationMs   int64
}

// DBPool is an interface that abstracts the pgxpool.Pool to allow for
// mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS login_attempts (
    id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    phase_reached TEXT NOT NULL DEFAULT '',
    persist_count INT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0
);`

// Recorder writes and reads the login_attempts trail.
type Recorder struct {
	pool DBPool
	log  *zap.Logger
}

// NewRecorder verifies the connection and makes sure the trail table exists.
func NewRecorder(ctx context.Context, pool DBPool, logger *zap.Logger) (*Recorder, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure login_attempts table: %w", err)
	}

	return &Recorder{
		pool: pool,
		log:  logger.Named("audit"),
	}, nil
}

// RecordAttempt appends one attempt to the trail. A missing ID is filled in.
func (r *Recorder) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const insertSQL = `
INSERT INTO login_attempts (id, started_at, finished_at, outcome, reason, phase_reached, persist_count, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := r.pool.Exec(ctx, insertSQL,
		rec.ID, rec.StartedAt, rec.FinishedAt, rec.Outcome,
		rec.Reason, rec.PhaseReached, rec.PersistCount, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}

	r.log.Debug("Login attempt recorded",
		zap.String("id", rec.ID),
		zap.String("outcome", rec.Outcome))
	return nil
}

// RecentAttempts returns the latest attempts, newest first.
func (r *Recorder) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const querySQL = `
SELECT id, started_at, finished_at, outcome, reason, phase_reached, persist_count, duration_ms
FROM login_attempts
ORDER BY started_at DESC
LIMIT $1;`

	rows, err := r.pool.Query(ctx, querySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		err := rows.Scan(
			&rec.ID, &rec.StartedAt, &rec.FinishedAt, &rec.Outcome,
			&rec.Reason, &rec.PhaseReached, &rec.PersistCount, &rec.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return out, nil
}
