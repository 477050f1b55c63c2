// Package history keeps a SQLite log of load runs so results can be
// compared across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/tracereplay/packages/stress"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	test_name   TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	iterations  INTEGER NOT NULL,
	aborted     INTEGER NOT NULL,
	requests    INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	p50_ms      REAL NOT NULL,
	p95_ms      REAL NOT NULL,
	p99_ms      REAL NOT NULL,
	passed      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC);
`

// Run is one recorded load run
type Run struct {
	ID         string
	TestName   string
	StartedAt  time.Time
	Duration   time.Duration
	Iterations int64
	Aborted    int64
	Requests   int64
	Errors     int64
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Passed     bool
}

// FromResult summarizes a runner result as a history row
func FromResult(r *stress.Result) Run {
	s := r.Summary
	return Run{
		TestName:   r.TestName,
		StartedAt:  r.StartedAt,
		Duration:   s.Duration,
		Iterations: s.Iterations,
		Aborted:    s.Aborted,
		Requests:   s.TotalRequests,
		Errors:     s.ErrorCount,
		P50:        s.P50,
		P95:        s.P95,
		P99:        s.P99,
		Passed:     r.Passed,
	}
}

// Store is a run history backed by a SQLite file
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the history database. path may carry a "sqlite:"
// or "sqlite://" prefix.
func Open(path string) (*Store, error) {
	dsn := strings.TrimSpace(path)
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if dsn == "" {
		return nil, fmt.Errorf("history: empty database path")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save inserts a run, assigning an id when it has none, and returns the id
func (s *Store) Save(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, test_name, started_at, duration_ms, iterations, aborted, requests, errors, p50_ms, p95_ms, p99_ms, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.TestName,
		run.StartedAt.UnixMilli(),
		run.Duration.Milliseconds(),
		run.Iterations,
		run.Aborted,
		run.Requests,
		run.Errors,
		ms(run.P50),
		ms(run.P95),
		ms(run.P99),
		run.Passed,
	)
	if err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}
	return run.ID, nil
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, test_name, started_at, duration_ms, iterations, aborted, requests, errors,
		p50_ms, p95_ms, p99_ms, passed FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                     Run
			startedMs, durationMs int64
			p50, p95, p99         float64
		)
		if err := rows.Scan(&r.ID, &r.TestName, &startedMs, &durationMs, &r.Iterations, &r.Aborted,
			&r.Requests, &r.Errors, &p50, &p95, &p99, &r.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.P50 = fromMs(p50)
		r.P95 = fromMs(p95)
		r.P99 = fromMs(p99)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMs(f float64) time.Duration {
	return time.Duration(f * float64(time.Millisecond))
}
