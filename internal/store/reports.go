package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgallion1/docgloss/internal/pipeline"
)

var ErrNotFound = errors.New("report not found")

// ReportStore persists scan reports in PostgreSQL.
type ReportStore struct {
	pool *pgxpool.Pool
}

// Open connects, pings and creates the schema if needed.
func Open(ctx context.Context, connStr string) (*ReportStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &ReportStore{pool: pool}
	if err := s.Initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Initialize creates the reports table and its indices.
func (s *ReportStore) Initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scan_reports (
			scan_id     TEXT PRIMARY KEY,
			doc_id      TEXT NOT NULL,
			chunks      INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			annotated   INTEGER NOT NULL,
			dropped     INTEGER NOT NULL,
			cancelled   BOOLEAN NOT NULL,
			failures    JSONB NOT NULL DEFAULT '[]',
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create scan_reports table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS scan_reports_doc_idx ON scan_reports (doc_id, finished_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("create scan_reports index: %w", err)
	}
	return nil
}

// SaveReport inserts or replaces a report.
func (s *ReportStore) SaveReport(ctx context.Context, r pipeline.Report) error {
	failures, err := encodeFailures(r.Failed)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_reports (
			scan_id, doc_id, chunks, succeeded, annotated, dropped,
			cancelled, failures, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scan_id) DO UPDATE SET
			chunks = EXCLUDED.chunks,
			succeeded = EXCLUDED.succeeded,
			annotated = EXCLUDED.annotated,
			dropped = EXCLUDED.dropped,
			cancelled = EXCLUDED.cancelled,
			failures = EXCLUDED.failures,
			finished_at = EXCLUDED.finished_at
	`,
		r.ScanID, r.DocID, r.Chunks, r.Succeeded, r.Annotated, r.Dropped,
		r.Cancelled, failures, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ScanID, err)
	}
	return nil
}

// Get returns the report of one scan.
func (s *ReportStore) Get(ctx context.Context, scanID string) (pipeline.Report, error) {
	row := s.pool.QueryRow(ctx, selectReport+` WHERE scan_id = $1`, scanID)
	return scanReport(row)
}

// Latest returns the most recent report for a document.
func (s *ReportStore) Latest(ctx context.Context, docID string) (pipeline.Report, error) {
	row := s.pool.QueryRow(ctx, selectReport+` WHERE doc_id = $1 ORDER BY finished_at DESC LIMIT 1`, docID)
	return scanReport(row)
}

func (s *ReportStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *ReportStore) Close() {
	s.pool.Close()
}

const selectReport = `
	SELECT scan_id, doc_id, chunks, succeeded, annotated, dropped,
	       cancelled, failures, started_at, finished_at
	FROM scan_reports`

func scanReport(row pgx.Row) (pipeline.Report, error) {
	var (
		r        pipeline.Report
		failures []byte
	)
	err := row.Scan(&r.ScanID, &r.DocID, &r.Chunks, &r.Succeeded, &r.Annotated, &r.Dropped,
		&r.Cancelled, &failures, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Report{}, ErrNotFound
	}
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("scan report: %w", err)
	}
	if r.Failed, err = decodeFailures(failures); err != nil {
		return pipeline.Report{}, err
	}
	return r, nil
}

func encodeFailures(f []pipeline.ChunkFailure) ([]byte, error) {
	if f == nil {
		f = []pipeline.ChunkFailure{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode failures: %w", err)
	}
	return b, nil
}

func decodeFailures(b []byte) ([]pipeline.ChunkFailure, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var f []pipeline.ChunkFailure
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	if len(f) == 0 {
		return nil, nil
	}
	return f, nil
}
