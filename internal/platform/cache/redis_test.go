package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestNewReportsUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := New(context.Background(), Options{Addr: addr, PingTimeout: 200 * time.Millisecond})
	require.ErrorIs(t, err, ErrUnreachable)
	require.NotNil(t, client)
	_ = client.Close()
}

func TestAsynqOpts(t *testing.T) {
	opts := Options{Addr: "redis:6379", DB: 2}.AsynqOpts()
	require.Equal(t, "redis:6379", opts.Addr)
	require.Equal(t, 2, opts.DB)
}
