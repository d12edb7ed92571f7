// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps an audit trail of conversion batches in SQLite:
// one row per batch with its counts, and one row per input with its
// outcome.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/mdconv/pkg/types"
)

const (
	dbFile = "history.db"

	// timeLayout has fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	// ErrNotFound is returned when no batch matches the requested ID.
	ErrNotFound = errors.New("batch not found")

	// ErrAmbiguous is returned when an ID prefix matches more than one batch.
	ErrAmbiguous = errors.New("batch id prefix is ambiguous")
)

// Status is the recorded outcome of one input.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusOmitted Status = "omitted"
)

// BatchSummary is one row of the batches table.
type BatchSummary struct {
	ID        string        `json:"id" yaml:"id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Total     int           `json:"total" yaml:"total"`
	Succeeded int           `json:"succeeded" yaml:"succeeded"`
	Failed    int           `json:"failed" yaml:"failed"`
	Omitted   int           `json:"omitted" yaml:"omitted"`
	Cached    int           `json:"cached" yaml:"cached"`
	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
}

// Item is one row of the items table.
type Item struct {
	Input   string        `json:"input" yaml:"input"`
	Output  string        `json:"output,omitempty" yaml:"output,omitempty"`
	Status  Status        `json:"status" yaml:"status"`
	Cached  bool          `json:"cached,omitempty" yaml:"cached,omitempty"`
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Store manages the history database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at cfg.Dir/history.db.
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = types.DefaultHistoryDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			omitted INTEGER NOT NULL,
			cached INTEGER NOT NULL,
			cancelled INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			input TEXT NOT NULL,
			output TEXT,
			status TEXT NOT NULL,
			cached INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			elapsed_ns INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_batch_id ON items(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordBatch stores res and every item in it in one transaction.
// Recording the same batch again replaces the earlier rows.
func (s *Store) RecordBatch(ctx context.Context, res types.BatchResult) error {
	if res.BatchID == "" {
		return errors.New("recording batch: empty batch id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE batch_id = ?`, res.BatchID); err != nil {
		return fmt.Errorf("deleting old items: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, started_at, elapsed_ns, total, succeeded, failed, omitted, cached, cancelled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at, elapsed_ns=excluded.elapsed_ns, total=excluded.total,
			succeeded=excluded.succeeded, failed=excluded.failed, omitted=excluded.omitted,
			cached=excluded.cached, cancelled=excluded.cancelled`,
		res.BatchID, res.StartedAt.UTC().Format(timeLayout), int64(res.Elapsed), res.Total,
		len(res.Successes), len(res.Errors), len(res.Omitted), res.CachedCount(), res.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("upserting batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (batch_id, input, output, status, cached, message, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	insert := func(it Item) error {
		_, err := stmt.ExecContext(ctx, res.BatchID, it.Input, it.Output, string(it.Status), it.Cached, it.Message, int64(it.Elapsed))
		if err != nil {
			return fmt.Errorf("inserting item %s: %w", it.Input, err)
		}
		return nil
	}
	for _, ok := range res.Successes {
		if err := insert(Item{Input: ok.Input, Output: ok.Output, Status: StatusSuccess, Cached: ok.Cached, Message: ok.Message, Elapsed: ok.Elapsed}); err != nil {
			return err
		}
	}
	for _, bad := range res.Errors {
		if err := insert(Item{Input: bad.Input, Status: StatusFailure, Message: bad.Error}); err != nil {
			return err
		}
	}
	for _, in := range res.Omitted {
		if err := insert(Item{Input: in, Status: StatusOmitted}); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns the most recent batches, newest first. A non-positive limit
// returns every batch.
func (s *Store) List(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, elapsed_ns, total, succeeded, failed, omitted, cached, cancelled
		 FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Batch returns the batch whose ID starts with idPrefix, with its items in
// the order they were recorded.
func (s *Store) Batch(ctx context.Context, idPrefix string) (BatchSummary, []Item, error) {
	if idPrefix == "" {
		return BatchSummary{}, nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, elapsed_ns, total, succeeded, failed, omitted, cached, cancelled
		 FROM batches WHERE substr(id, 1, ?) = ? LIMIT 2`, len(idPrefix), idPrefix)
	if err != nil {
		return BatchSummary{}, nil, fmt.Errorf("looking up batch: %w", err)
	}
	var matches []BatchSummary
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return BatchSummary{}, nil, err
		}
		matches = append(matches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return BatchSummary{}, nil, fmt.Errorf("looking up batch: %w", err)
	}

	switch len(matches) {
	case 0:
		return BatchSummary{}, nil, fmt.Errorf("%w: %s", ErrNotFound, idPrefix)
	case 1:
	default:
		return BatchSummary{}, nil, fmt.Errorf("%w: %s", ErrAmbiguous, idPrefix)
	}

	items, err := s.items(ctx, matches[0].ID)
	if err != nil {
		return BatchSummary{}, nil, err
	}
	return matches[0], items, nil
}

func (s *Store) items(ctx context.Context, batchID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input, COALESCE(output, ''), status, cached, COALESCE(message, ''), elapsed_ns
		 FROM items WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it      Item
			status  string
			elapsed int64
		)
		if err := rows.Scan(&it.Input, &it.Output, &status, &it.Cached, &it.Message, &elapsed); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.Status = Status(status)
		it.Elapsed = time.Duration(elapsed)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Prune deletes batches started before cutoff, with their items, and
// returns how many batches were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM batches WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (BatchSummary, error) {
	var (
		b         BatchSummary
		startedAt string
		elapsed   int64
	)
	if err := row.Scan(&b.ID, &startedAt, &elapsed, &b.Total, &b.Succeeded, &b.Failed, &b.Omitted, &b.Cached, &b.Cancelled); err != nil {
		return BatchSummary{}, fmt.Errorf("scanning batch: %w", err)
	}
	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	b.StartedAt = t
	b.Elapsed = time.Duration(elapsed)
	return b, nil
}
