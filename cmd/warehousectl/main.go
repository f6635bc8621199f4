package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/warehouse/cmd/warehousectl/cli"
	"github.com/odyssey-erp/warehouse/internal/app"
	"github.com/odyssey-erp/warehouse/internal/platform/cache"
	"github.com/odyssey-erp/warehouse/internal/platform/db"
	"github.com/odyssey-erp/warehouse/internal/snapshot"
)

const usage = `usage: warehousectl <command>

commands:
  snapshot trigger           enqueue a ledger snapshot
  snapshot inspect [--json]  summarise the latest stored snapshot
  queue stats [--json]       print default queue counters
`

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	os.Exit(dispatch(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	switch args[0] + " " + args[1] {
	case "snapshot trigger":
		jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpts())
		defer func() { _ = jobsCLI.Close() }()
		if err := jobsCLI.TriggerSnapshot(ctx, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "snapshot trigger: %v\n", err)
			return 1
		}
		return 0
	case "snapshot inspect":
		fs := flag.NewFlagSet("snapshot inspect", flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 1
		}
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "snapshot inspect: %v\n", err)
			return 1
		}
		defer closeStore()
		return cli.InspectCommand(ctx, store, cli.InspectOptions{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "queue stats":
		fs := flag.NewFlagSet("queue stats", flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 1
		}
		jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpts())
		defer func() { _ = jobsCLI.Close() }()
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "queue stats: %v\n", err)
			return 1
		}
		if *jsonOut {
			_ = json.NewEncoder(stdout).Encode(stats)
			return 0
		}
		cli.PrintQueueStats(stdout, stats)
		return 0
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
}

func openStore(ctx context.Context, cfg *app.Config) (snapshot.Store, func(), error) {
	snapshotCfg := cfg.SnapshotConfig()
	closePool := func() {}
	if snapshotCfg.Backend == snapshot.BackendPostgres {
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "warehousectl", MaxConns: 2})
		if err != nil {
			return nil, nil, err
		}
		snapshotCfg.Pool = pool
		closePool = pool.Close
	}
	store, err := snapshot.Open(ctx, snapshotCfg)
	if err != nil {
		closePool()
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		closePool()
	}, nil
}
