package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

type tickingClock struct{ t time.Time }

func (c *tickingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

// capture is a snapshot port that keeps the last exported state in memory.
type capture struct {
	state warehouse.State
}

func (c *capture) Save(_ context.Context, st warehouse.State) (warehouse.SnapshotMeta, error) {
	c.state = st
	return warehouse.SnapshotMeta{ID: "captured"}, nil
}

func (c *capture) Latest(context.Context) (warehouse.State, warehouse.SnapshotMeta, error) {
	return warehouse.State{}, warehouse.SnapshotMeta{}, warehouse.ErrSnapshotNotFound
}

// sampleState drives a ledger through the service and exports it. Three units
// are stocked and every client orders two, so later clients are backordered.
func sampleState(t *testing.T, clients int) warehouse.State {
	t.Helper()
	ctx := context.Background()
	c := &capture{}
	svc := warehouse.NewService(nil, nil, warehouse.ServiceConfig{Snapshots: c})
	p, err := svc.AddProduct(ctx, "Widget", decimal.RequireFromString("1.75"))
	require.NoError(t, err)
	_, err = svc.ReceiveShipment(ctx, p.ID, 3, warehouse.FIFO())
	require.NoError(t, err)
	for i := 0; i < clients; i++ {
		client, err := svc.AddClient(ctx, "client")
		require.NoError(t, err)
		orderID, err := svc.CreateOrder(ctx, client.ID)
		require.NoError(t, err)
		_, err = svc.AddOrderLine(ctx, client.ID, orderID, p.ID, 2)
		require.NoError(t, err)
		_, err = svc.ProcessOrder(ctx, client.ID, orderID)
		require.NoError(t, err)
	}
	_, err = svc.Save(ctx)
	require.NoError(t, err)
	return c.state
}

func openTestStore(t *testing.T, retain int) *PebbleStore {
	t.Helper()
	clock := &tickingClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := OpenPebble(t.TempDir(), Options{Retain: retain, Now: clock.now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPebbleStoreLatestOnEmpty(t *testing.T) {
	store := openTestStore(t, 3)
	_, _, err := store.Latest(context.Background())
	require.ErrorIs(t, err, warehouse.ErrSnapshotNotFound)

	metas, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestPebbleStoreSaveAndLatest(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()

	first, err := store.Save(ctx, sampleState(t, 1))
	require.NoError(t, err)
	want := sampleState(t, 3)
	second, err := store.Save(ctx, want)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.True(t, second.TakenAt.After(first.TakenAt))

	got, meta, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, meta.ID)
	require.Equal(t, warehouse.Summarize(want).PendingUnits, warehouse.Summarize(got).PendingUnits)
	require.Len(t, got.Clients, 3)

	restored, err := warehouse.Restore(got)
	require.NoError(t, err)
	require.Len(t, restored.Export().Backorders, 2)
}

func TestPebbleStorePrunesBeyondRetention(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()
	st := sampleState(t, 1)

	var ids []string
	for i := 0; i < 4; i++ {
		meta, err := store.Save(ctx, st)
		require.NoError(t, err)
		ids = append(ids, meta.ID)
	}

	metas, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, ids[2], metas[0].ID)
	require.Equal(t, ids[3], metas[1].ID)
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := OpenPebble(dir, Options{})
	require.NoError(t, err)
	meta, err := store.Save(ctx, sampleState(t, 2))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenPebble(dir, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	_, got, err := reopened.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, meta.ID, got.ID)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "s3"})
	require.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(context.Background(), Config{Backend: BackendPostgres})
	require.Error(t, err)
}
