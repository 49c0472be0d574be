package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	flow         TEXT NOT NULL,
	precision    REAL NOT NULL,
	status       TEXT NOT NULL,
	irr          REAL NOT NULL DEFAULT 0,
	method       TEXT NOT NULL DEFAULT '',
	iterations   INTEGER NOT NULL DEFAULT 0,
	reason       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	submitted_at INTEGER NOT NULL,
	completed_at INTEGER
);`

const (
	upsertSQL = `INSERT OR REPLACE INTO jobs
	(id, flow, precision, status, irr, method, iterations, reason, error, submitted_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectSQL = `SELECT flow, precision, status, irr, method, iterations, reason, error, submitted_at, completed_at
	FROM jobs WHERE id = ?`
	deleteSQL = `DELETE FROM jobs WHERE id = ?`
	countSQL  = `SELECT COUNT(*) FROM jobs`
)

// SQLiteStore persists jobs in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
	closeErr              error
}

// NewSQLiteStore opens or creates the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:                    db,
		metricsUpdateInterval: o.metricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		publishCount(ctx, s.stopChan, s.metricsUpdateInterval, BackendSQLite, func() int { return s.Count(ctx) })
	}()
	return s, nil
}

// Put inserts or replaces a job.
func (s *SQLiteStore) Put(ctx context.Context, job model.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(BackendSQLite, "put", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	if job.ID == "" {
		metrics.RecordErrorByComponent("repository", "invalid_job")
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	flow, err := json.Marshal(job.Flow)
	if err != nil {
		return fmt.Errorf("%w: encode flow: %v", ErrInvalidJob, err)
	}
	var completed any
	if !job.CompletedAt.IsZero() {
		completed = job.CompletedAt.UnixNano()
	}
	_, err = s.db.ExecContext(ctx, upsertSQL,
		job.ID, string(flow), job.Precision, string(job.Status), job.IRR, job.Method,
		int64(job.Iterations), job.Reason, job.Error, job.SubmittedAt.UnixNano(), completed)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "write_failed")
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns a job by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Job, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(BackendSQLite, "get", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	var (
		flow       string
		status     string
		iterations int64
		submitted  int64
		completed  sql.NullInt64
	)
	job := model.Job{ID: id}
	err := s.db.QueryRowContext(ctx, selectSQL, id).Scan(
		&flow, &job.Precision, &status, &job.IRR, &job.Method,
		&iterations, &job.Reason, &job.Error, &submitted, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "read_failed")
		return model.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}

	var f cashflow.Flow
	if err := json.Unmarshal([]byte(flow), &f); err != nil {
		return model.Job{}, fmt.Errorf("decode flow of job %s: %w", id, err)
	}
	job.Flow = f
	job.Status = model.Status(status)
	job.Iterations = int(iterations)
	job.SubmittedAt = time.Unix(0, submitted).UTC()
	if completed.Valid {
		job.CompletedAt = time.Unix(0, completed.Int64).UTC()
	}
	return job, nil
}

// Delete removes a job.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, id); err != nil {
		metrics.RecordErrorByComponent("repository", "write_failed")
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored jobs, or 0 when the query fails.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int64
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		metrics.RecordErrorByComponent("repository", "read_failed")
		return 0
	}
	return int(n)
}

// Close stops the metrics updater and closes the database.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
