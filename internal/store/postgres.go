package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/report"
)

// Schema is the DDL for the corpus_runs table. [PostgresStore.Migrate]
// applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS corpus_runs (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    files      INTEGER NOT NULL,
    wer        DOUBLE PRECISION NOT NULL,
    report     JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_corpus_runs_created ON corpus_runs(created_at DESC);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn used by [PostgresStore].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] keeping each snapshot as a JSONB report.
type PostgresStore struct {
	db DB
}

// NewPostgresStore returns a store on db. Call [PostgresStore.Migrate] before
// first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, checks it, and migrates the schema. The
// returned close function releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping checks the connection when the underlying DB supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	p, ok := s.db.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Save implements [Store.Save].
func (s *PostgresStore) Save(ctx context.Context, name string, c *metrics.CorpusMetrics) (Run, error) {
	var buf bytes.Buffer
	if err := report.WriteCorpus(&buf, c); err != nil {
		return Run{}, fmt.Errorf("store: save %q: %w", name, err)
	}

	r := newRun(name, c, time.Now())
	const query = `
		INSERT INTO corpus_runs (id, name, files, wer, report)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := s.db.QueryRow(ctx, query, r.ID, r.Name, r.Files, r.WER, buf.Bytes()).Scan(&r.CreatedAt); err != nil {
		return Run{}, fmt.Errorf("store: save %q: %w", name, err)
	}
	return r, nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (*metrics.CorpusMetrics, Run, error) {
	const query = `
		SELECT id::text, name, files, wer, created_at, report
		FROM corpus_runs
		WHERE id = $1`

	var (
		r   Run
		raw []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&r.ID, &r.Name, &r.Files, &r.WER, &r.CreatedAt, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Run{}, ErrNotFound
		}
		return nil, Run{}, fmt.Errorf("store: get %q: %w", id, err)
	}

	c, err := report.ReadCorpus(bytes.NewReader(raw))
	if err != nil {
		return nil, Run{}, fmt.Errorf("store: get %q: %w", id, err)
	}
	return c, r, nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Run, error) {
	const query = `
		SELECT id::text, name, files, wer, created_at
		FROM corpus_runs
		ORDER BY created_at DESC, id
		LIMIT NULLIF($1, 0)`

	if limit < 0 {
		limit = 0
	}
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Files, &r.WER, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list: scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return runs, nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM corpus_runs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}
