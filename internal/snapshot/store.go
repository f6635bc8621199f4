// Package snapshot persists whole-ledger snapshots in pebble or PostgreSQL.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

// Backend names accepted by Open.
const (
	BackendPebble   = "pebble"
	BackendPostgres = "postgres"
)

// DefaultRetain is the number of snapshots kept when Options.Retain is zero.
const DefaultRetain = 10

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("snapshot: unknown backend")

// Store is a snapshot backend.
type Store interface {
	warehouse.SnapshotPort
	List(ctx context.Context) ([]warehouse.SnapshotMeta, error)
	Close() error
}

// Options tune retention and timestamps.
type Options struct {
	Retain int
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Retain <= 0 {
		o.Retain = DefaultRetain
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string
	Pool    *pgxpool.Pool
	Options Options
}

// Open builds the configured store. The postgres backend expects Pool to be
// connected and creates its table when missing.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendPebble, "":
		return OpenPebble(cfg.Dir, cfg.Options)
	case BackendPostgres:
		if cfg.Pool == nil {
			return nil, errors.New("snapshot: postgres backend requires a pool")
		}
		store := NewPostgres(cfg.Pool, cfg.Options)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// envelope is the stored payload.
type envelope struct {
	Meta  warehouse.SnapshotMeta `json:"meta"`
	State warehouse.State        `json:"state"`
}

func newMeta(now func() time.Time) warehouse.SnapshotMeta {
	return warehouse.SnapshotMeta{ID: uuid.NewString(), TakenAt: now()}
}

func encode(env envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", warehouse.ErrCorruptSnapshot, err)
	}
	return env, nil
}
