// Package store persists scan runs to Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buemura/jarhunter/pkg/types"
)

const batchSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id                     UUID PRIMARY KEY,
	hostname               TEXT NOT NULL,
	started_at             TIMESTAMPTZ NOT NULL,
	finished_at            TIMESTAMPTZ NOT NULL,
	dir_count              BIGINT NOT NULL,
	file_count             BIGINT NOT NULL,
	vulnerable_count       INT NOT NULL,
	potential_count        INT NOT NULL,
	mitigated_count        INT NOT NULL,
	fixed_count            INT NOT NULL,
	error_count            INT NOT NULL
);
CREATE TABLE IF NOT EXISTS scan_findings (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	entry       TEXT NOT NULL,
	product     TEXT NOT NULL,
	version     TEXT NOT NULL,
	cve         TEXT NOT NULL,
	status      TEXT NOT NULL,
	fixed       BOOLEAN NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS scan_errors (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	message     TEXT NOT NULL,
	reported_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_findings_run_idx ON scan_findings(run_id);
`

const (
	insertRun = `
INSERT INTO scan_runs (id, hostname, started_at, finished_at, dir_count, file_count,
	vulnerable_count, potential_count, mitigated_count, fixed_count, error_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	insertFinding = `
INSERT INTO scan_findings (run_id, path, entry, product, version, cve, status, fixed, detected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	insertError = `
INSERT INTO scan_errors (run_id, path, message, reported_at)
VALUES ($1, $2, $3, $4)`
)

// Store writes scan runs through a connection pool.
type Store struct{ Pool *pgxpool.Pool }

// Open connects to the database at url.
func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.Pool.Ping(ctx) }

func (s *Store) Close() { s.Pool.Close() }

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// IsInsufficientPrivilege reports whether err is a Postgres permission error.
func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

// SaveRun stores a finished run with all its entries in one transaction and
// returns the run id.
func (s *Store) SaveRun(ctx context.Context, report *types.Report, finished time.Time) (string, error) {
	id := uuid.New()

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRun, runArgs(id, report, finished)...); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	for _, batch := range findingBatches(id, report.Entries) {
		if err := sendBatch(ctx, tx, batch); err != nil {
			return "", fmt.Errorf("inserting findings: %w", err)
		}
	}
	for _, batch := range errorBatches(id, report.Errors) {
		if err := sendBatch(ctx, tx, batch); err != nil {
			return "", fmt.Errorf("inserting errors: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id.String(), nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func runArgs(id uuid.UUID, r *types.Report, finished time.Time) []any {
	m := r.Metrics
	return []any{
		id, r.Hostname, m.ScanStartTime, finished,
		m.ScanDirCount, m.ScanFileCount,
		m.VulnerableFileCount, m.PotentiallyVulnerableFileCount, m.MitigatedFileCount,
		m.FixedFileCount, m.ErrorCount,
	}
}

// findingBatches queues entries in groups of batchSize.
func findingBatches(id uuid.UUID, entries []types.ReportEntry) []*pgx.Batch {
	var batches []*pgx.Batch
	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))
		b := &pgx.Batch{}
		for _, e := range entries[start:end] {
			b.Queue(insertFinding, id, e.Path, e.Entry(), e.Product, e.Version, e.CVE, e.Status.String(), e.Fixed, e.DetectedAt)
		}
		batches = append(batches, b)
	}
	return batches
}

func errorBatches(id uuid.UUID, errs []types.ErrorEntry) []*pgx.Batch {
	var batches []*pgx.Batch
	for start := 0; start < len(errs); start += batchSize {
		end := min(start+batchSize, len(errs))
		b := &pgx.Batch{}
		for _, e := range errs[start:end] {
			b.Queue(insertError, id, e.Path, e.Message, e.ReportedAt)
		}
		batches = append(batches, b)
	}
	return batches
}
