package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDoorbellOutcomes = `
CREATE TABLE IF NOT EXISTS doorbell_outcomes (
    id          BIGSERIAL    PRIMARY KEY,
    device_id   TEXT         NOT NULL,
    status      TEXT         NOT NULL,
    attempts    INT          NOT NULL,
    best_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    reason      TEXT         NOT NULL DEFAULT '',
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    occurred_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_doorbell_outcomes_device_id
    ON doorbell_outcomes (device_id);

CREATE INDEX IF NOT EXISTS idx_doorbell_outcomes_occurred_at
    ON doorbell_outcomes (occurred_at);
`

// PostgresRecorder is a [Recorder] backed by a PostgreSQL table. One row is
// inserted per terminal doorbell outcome. All operations are safe for
// concurrent use.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// Compile-time interface assertion.
var _ Recorder = (*PostgresRecorder)(nil)

// NewPostgresRecorder establishes a connection pool to the PostgreSQL database
// at dsn and ensures the outcome table exists.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlDoorbellOutcomes); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	return &PostgresRecorder{pool: pool}, nil
}

// Record inserts one outcome row.
func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doorbell_outcomes
		    (device_id, status, attempts, best_score, reason, duration_ns, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.DeviceID, e.Status, e.Attempts, e.BestScore, e.Reason, e.Duration.Nanoseconds(), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert outcome: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used as a readiness check.
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
