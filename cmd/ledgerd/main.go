// Package main runs the privacy ledger daemon: it custodies stealth
// identities, reconciles liquidity positions against the settlement-layer
// event feed, and serves Prometheus metrics. Refresh runs on an interval
// and on new-head notifications when a WebSocket endpoint is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grimswap/grimledger/internal/chain"
	"github.com/grimswap/grimledger/internal/coordinator"
	"github.com/grimswap/grimledger/internal/observability"
	"github.com/grimswap/grimledger/internal/reconcile"
	"github.com/grimswap/grimledger/internal/stealth"
	"github.com/grimswap/grimledger/internal/storage"
	chstore "github.com/grimswap/grimledger/internal/storage/clickhouse"
	"github.com/grimswap/grimledger/internal/storage/memory"
	"github.com/grimswap/grimledger/internal/storage/migrations"
	pgstore "github.com/grimswap/grimledger/internal/storage/postgres"
	"github.com/grimswap/grimledger/internal/txledger"
)

// headDebounce is the minimum gap between head-triggered refreshes. Heads
// arrive every block; reconciliation does not need to run for each one.
const headDebounce = 5 * time.Second

type stores struct {
	identities   storage.IdentityStore
	positions    storage.PositionStore
	transactions storage.TransactionStore
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("GRIM_RPC_ENDPOINT"), "Settlement layer RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("GRIM_WS_ENDPOINT"), "Settlement layer WebSocket endpoint (optional, enables head-triggered refresh)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the scan archive)")
	poolID := flag.String("pool-id", os.Getenv("GRIM_POOL_ID"), "Pool identifier to reconcile")
	submitter := flag.String("submitter", os.Getenv("GRIM_SUBMITTER"), "Submitting address whose events are attributed")
	contract := flag.String("contract", os.Getenv("GRIM_POOL_MANAGER"), "Pool manager contract emitting liquidity events")
	refreshInterval := flag.Duration("refresh-interval", 1*time.Minute, "Interval between scheduled refreshes")
	lookbackBlocks := flag.Int64("lookback-blocks", reconcile.DefaultLookbackBlocks, "Scan window size behind the chain head")
	lookupWorkers := flag.Int("lookup-workers", reconcile.DefaultLookupWorkers, "Concurrent attribution lookups")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	logger := log.New(os.Stdout, "[ledgerd] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *poolID == "" || *submitter == "" || *contract == "" {
		logger.Fatal("--pool-id, --submitter and --contract are required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	var archive reconcile.ScanArchive
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to set up clickhouse: %v", err)
		}
		defer conn.Close()
		archive = chstore.NewScanArchiveStore(conn)
		logger.Println("Scan archive enabled")
	}

	metrics := observability.NewMetrics("")
	client := chain.NewHTTPClient(*rpcEndpoint, chain.WithMetrics(metrics))

	manager := stealth.NewManager(st.identities, metrics, logger)
	ledger := txledger.New(st.transactions, metrics, logger)
	reconciler := reconcile.New(client, st.positions, archive, metrics, logger, reconcile.Config{
		Contract:       *contract,
		LookbackBlocks: *lookbackBlocks,
		LookupWorkers:  *lookupWorkers,
	})
	coord := coordinator.New(reconciler, manager, ledger, nil, metrics, logger, *poolID, *submitter)

	var heads <-chan chain.HeadNotification
	if *wsEndpoint != "" {
		watcher, err := chain.NewHeadWatcher(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("Failed to start head watcher: %v", err)
		}
		defer watcher.Close()
		heads = watcher.Heads()
		logger.Println("Head-triggered refresh enabled")
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Printf("Metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Metrics server error: %v", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	runRefreshLoop(ctx, coord, metrics, logger, *refreshInterval, heads)
	logger.Println("Shutdown complete")
}

// runRefreshLoop drives the coordinator until ctx is cancelled. Scheduled
// refreshes run every interval; head notifications trigger early refreshes,
// debounced so a burst of blocks costs one scan.
func runRefreshLoop(ctx context.Context, coord *coordinator.Coordinator, metrics *observability.Metrics, logger *log.Logger, interval time.Duration, heads <-chan chain.HeadNotification) {
	refresh := func(trigger string) {
		if _, err := coord.Refresh(ctx, trigger); err != nil {
			if errors.Is(err, reconcile.ErrDegraded) {
				logger.Printf("Refresh degraded (%s): %v", trigger, err)
				return
			}
			logger.Printf("Refresh failed (%s): %v", trigger, err)
		}
	}

	refresh(coordinator.TriggerManual)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastHeadRefresh time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(coordinator.TriggerInterval)
		case head, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			metrics.ChainHeadHeight.Set(float64(head.Number))
			if time.Since(lastHeadRefresh) < headDebounce {
				continue
			}
			lastHeadRefresh = time.Now()
			refresh(coordinator.TriggerHead)
		}
	}
}

// createStores creates the identity, position and transaction stores.
func createStores(ctx context.Context, postgresDSN string, useMemory bool) (*stores, func(), error) {
	if useMemory {
		st := &stores{
			identities:   memory.NewIdentityStore(),
			positions:    memory.NewPositionStore(),
			transactions: memory.NewTransactionStore(),
		}
		return st, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	st := &stores{
		identities:   pgstore.NewIdentityStore(pool),
		positions:    pgstore.NewPositionStore(pool),
		transactions: pgstore.NewTransactionStore(pool),
	}
	return st, pool.Close, nil
}
