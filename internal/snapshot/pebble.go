package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

// Keys sort by take time: "snap/<unix nanos, zero padded>/<id>".
var (
	snapPrefix = []byte("snap/")
	snapUpper  = []byte("snap0")
)

// PebbleStore keeps snapshots in a local pebble database.
type PebbleStore struct {
	db   *pebble.DB
	opts Options
}

// OpenPebble opens (or creates) the store rooted at dir.
func OpenPebble(dir string, opts Options) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot: pebble directory required")
	}
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: pebble open: %w", err)
	}
	return &PebbleStore{db: d, opts: opts.withDefaults()}, nil
}

// Close releases the database.
func (p *PebbleStore) Close() error { return p.db.Close() }

func snapKey(meta warehouse.SnapshotMeta) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", snapPrefix, meta.TakenAt.UnixNano(), meta.ID))
}

// Save writes the snapshot and prunes everything beyond the retention window
// in one synced batch.
func (p *PebbleStore) Save(ctx context.Context, state warehouse.State) (warehouse.SnapshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return warehouse.SnapshotMeta{}, err
	}
	meta := newMeta(p.opts.Now)
	raw, err := encode(envelope{Meta: meta, State: state})
	if err != nil {
		return warehouse.SnapshotMeta{}, err
	}
	keys, err := p.keys()
	if err != nil {
		return warehouse.SnapshotMeta{}, err
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(snapKey(meta), raw, nil); err != nil {
		return warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: pebble set: %w", err)
	}
	if excess := len(keys) + 1 - p.opts.Retain; excess > 0 {
		for _, k := range keys[:excess] {
			if err := b.Delete(k, nil); err != nil {
				return warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: pebble prune: %w", err)
			}
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: pebble commit: %w", err)
	}
	return meta, nil
}

// Latest returns the most recently taken snapshot.
func (p *PebbleStore) Latest(ctx context.Context) (warehouse.State, warehouse.SnapshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return warehouse.State{}, warehouse.SnapshotMeta{}, err
	}
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: snapPrefix, UpperBound: snapUpper})
	if err != nil {
		return warehouse.State{}, warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: pebble iter: %w", err)
	}
	defer it.Close()
	if !it.Last() {
		if err := it.Error(); err != nil {
			return warehouse.State{}, warehouse.SnapshotMeta{}, fmt.Errorf("snapshot: pebble iter: %w", err)
		}
		return warehouse.State{}, warehouse.SnapshotMeta{}, warehouse.ErrSnapshotNotFound
	}
	env, err := decode(append([]byte(nil), it.Value()...))
	if err != nil {
		return warehouse.State{}, warehouse.SnapshotMeta{}, err
	}
	return env.State, env.Meta, nil
}

// List returns stored snapshot metadata, oldest first.
func (p *PebbleStore) List(ctx context.Context) ([]warehouse.SnapshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: snapPrefix, UpperBound: snapUpper})
	if err != nil {
		return nil, fmt.Errorf("snapshot: pebble iter: %w", err)
	}
	defer it.Close()
	var out []warehouse.SnapshotMeta
	for it.First(); it.Valid(); it.Next() {
		env, err := decode(append([]byte(nil), it.Value()...))
		if err != nil {
			return nil, err
		}
		out = append(out, env.Meta)
	}
	return out, it.Error()
}

func (p *PebbleStore) keys() ([][]byte, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: snapPrefix, UpperBound: snapUpper})
	if err != nil {
		return nil, fmt.Errorf("snapshot: pebble iter: %w", err)
	}
	defer it.Close()
	var keys [][]byte
	for it.First(); it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	return keys, it.Error()
}
