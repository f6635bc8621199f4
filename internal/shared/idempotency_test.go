package shared

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, time.Minute)
	ctx := t.Context()

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "payments"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "k1", "payments"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "shipments"))

	require.NoError(t, store.Delete(ctx, "k1", "payments"))
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "payments"))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "payments"))

	require.Error(t, store.CheckAndInsert(ctx, "", "payments"))
	require.Error(t, store.CheckAndInsert(ctx, "k2", ""))
}

func TestNilIdempotencyStore(t *testing.T) {
	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(t.Context(), "k", "m"))
	require.NoError(t, store.Delete(t.Context(), "k", "m"))
}
