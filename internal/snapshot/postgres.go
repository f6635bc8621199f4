package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/warehouse/internal/platform/db"
	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

const pgUndefinedTable = "42P01"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ledger_snapshots (
	id UUID PRIMARY KEY,
	taken_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
)`

// PostgresStore keeps snapshots in the ledger_snapshots table.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, opts Options) *PostgresStore {
	return &PostgresStore{pool: pool, opts: opts.withDefaults()}
}

// EnsureSchema creates the snapshot table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("snapshot: create table: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Save inserts the snapshot and prunes older rows in one transaction.
func (s *PostgresStore) Save(ctx context.Context, state warehouse.State) (warehouse.SnapshotMeta, error) {
	meta := newMeta(s.opts.Now)
	raw, err := encode(envelope{Meta: meta, State: state})
	if err != nil {
		return warehouse.SnapshotMeta{}, err
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_snapshots (id, taken_at, payload) VALUES ($1, $2, $3)`, meta.ID, meta.TakenAt, raw); err != nil {
			return fmt.Errorf("snapshot: insert: %w", err)
		}
		_, err := tx.Exec(ctx, `DELETE FROM ledger_snapshots WHERE id NOT IN (
			SELECT id FROM ledger_snapshots ORDER BY taken_at DESC LIMIT $1)`, s.opts.Retain)
		if err != nil {
			return fmt.Errorf("snapshot: prune: %w", err)
		}
		return nil
	})
	if err != nil {
		return warehouse.SnapshotMeta{}, err
	}
	return meta, nil
}

// Latest returns the newest snapshot row.
func (s *PostgresStore) Latest(ctx context.Context) (warehouse.State, warehouse.SnapshotMeta, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM ledger_snapshots ORDER BY taken_at DESC LIMIT 1`).Scan(&raw)
	if err != nil {
		if isMissing(err) {
			return warehouse.State{}, warehouse.SnapshotMeta{}, warehouse.ErrSnapshotNotFound
		}
		return warehouse.State{}, warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: select latest: %w", err)
	}
	env, err := decode(raw)
	if err != nil {
		return warehouse.State{}, warehouse.SnapshotMeta{}, err
	}
	return env.State, env.Meta, nil
}

// List returns stored snapshot metadata, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]warehouse.SnapshotMeta, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, taken_at FROM ledger_snapshots ORDER BY taken_at ASC`)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close()
	var out []warehouse.SnapshotMeta
	for rows.Next() {
		var meta warehouse.SnapshotMeta
		var takenAt time.Time
		if err := rows.Scan(&meta.ID, &takenAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		meta.TakenAt = takenAt.UTC()
		out = append(out, meta)
	}
	return out, rows.Err()
}

// isMissing treats an empty table and an absent table alike.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
