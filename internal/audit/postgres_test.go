package audit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/doorwarden/internal/audit"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if DOORWARDEN_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("DOORWARDEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOORWARDEN_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestRecorder creates a fresh [audit.PostgresRecorder] with a clean table.
func newTestRecorder(t *testing.T) *audit.PostgresRecorder {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS doorbell_outcomes`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	r, err := audit.NewPostgresRecorder(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresRecorder: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestPostgresRecorder_RecordAndReadBack(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	entry := audit.Entry{
		DeviceID:   "front-door",
		Status:     "denied",
		Attempts:   3,
		BestScore:  62.5,
		Reason:     "max_attempts_exceeded",
		Duration:   42 * time.Second,
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := r.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	var (
		deviceID, status, reason string
		attempts                 int
		bestScore                float64
		durationNS               int64
	)
	row := pool.QueryRow(ctx, `
		SELECT device_id, status, attempts, best_score, reason, duration_ns
		FROM doorbell_outcomes WHERE device_id = $1`, "front-door")
	if err := row.Scan(&deviceID, &status, &attempts, &bestScore, &reason, &durationNS); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if status != "denied" || attempts != 3 || reason != "max_attempts_exceeded" {
		t.Errorf("row = %s/%s/%d/%s", deviceID, status, attempts, reason)
	}
	if bestScore != 62.5 {
		t.Errorf("best_score = %v, want 62.5", bestScore)
	}
	if durationNS != entry.Duration.Nanoseconds() {
		t.Errorf("duration_ns = %d, want %d", durationNS, entry.Duration.Nanoseconds())
	}
}

func TestPostgresRecorder_Ping(t *testing.T) {
	r := newTestRecorder(t)
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNoop_Record(t *testing.T) {
	t.Parallel()
	var n audit.Noop
	if err := n.Record(context.Background(), audit.Entry{DeviceID: "x"}); err != nil {
		t.Fatalf("Noop.Record: %v", err)
	}
}
