package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/warehouse/internal/testing/guard"

	"github.com/odyssey-erp/warehouse/cmd/warehousectl/cli"
	"github.com/odyssey-erp/warehouse/internal/app"
	"github.com/odyssey-erp/warehouse/internal/snapshot"
	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

func TestDispatchUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := dispatch(context.Background(), &app.Config{}, []string{"snapshot"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "usage: warehousectl")

	stderr.Reset()
	code = dispatch(context.Background(), &app.Config{}, []string{"ledger", "wipe"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "usage: warehousectl")
}

func TestDispatchSnapshotInspect(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.OpenPebble(dir, snapshot.Options{})
	require.NoError(t, err)
	svc := warehouse.NewService(nil, nil, warehouse.ServiceConfig{Snapshots: store})
	_, err = svc.AddClient(context.Background(), "Acme")
	require.NoError(t, err)
	meta, err := svc.Save(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg := &app.Config{SnapshotBackend: snapshot.BackendPebble, SnapshotDir: dir}
	var stdout, stderr bytes.Buffer
	code := dispatch(context.Background(), cfg, []string{"snapshot", "inspect", "--json"}, &stdout, &stderr)
	require.Zero(t, code, stderr.String())

	var report cli.InspectReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, meta.ID, report.SnapshotID)
	require.Equal(t, 1, report.Summary.Clients)
}
