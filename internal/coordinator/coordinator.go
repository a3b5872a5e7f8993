// Package coordinator assembles the app-facing view of the ledger: one
// refresh cycle reconciles positions, refreshes identity balances and
// rereads the transaction ledger, then caches an immutable snapshot.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/observability"
	"github.com/grimswap/grimledger/internal/reconcile"
	"github.com/grimswap/grimledger/internal/stealth"
	"github.com/grimswap/grimledger/internal/txledger"
)

// Refresh triggers, recorded in metrics.
const (
	TriggerInterval = "interval"
	TriggerHead     = "head"
	TriggerManual   = "manual"
)

// BalanceScanner fetches the current native and token balances of a stealth
// address. Implementations talk to the remote ledger; failures are per
// address and never abort a refresh.
type BalanceScanner interface {
	ScanBalances(ctx context.Context, address string) (*domain.BalanceSnapshot, error)
}

// Snapshot is one immutable view of the ledger state. All slices and
// records are deep copies; callers may hold a snapshot indefinitely.
type Snapshot struct {
	Identities   []*domain.StealthIdentity
	Positions    []*domain.LiquidityPosition
	NetLiquidity *big.Int
	Transactions []*domain.TransactionRecord
	Degraded     bool
	RefreshedAt  int64
}

// Coordinator runs refresh cycles and caches the latest snapshot. It holds
// no state beyond the cache; the durable stores are the source of truth and
// the view is rebuilt from them on every refresh.
type Coordinator struct {
	reconciler *reconcile.Reconciler
	identities *stealth.Manager
	ledger     *txledger.Ledger
	scanner    BalanceScanner // optional
	metrics    *observability.Metrics
	logger     *log.Logger

	poolID    string
	submitter string

	mu     sync.RWMutex
	cached *Snapshot

	now func() int64
}

// New creates a coordinator. scanner and metrics may be nil.
func New(reconciler *reconcile.Reconciler, identities *stealth.Manager, ledger *txledger.Ledger, scanner BalanceScanner, metrics *observability.Metrics, logger *log.Logger, poolID, submitter string) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		reconciler: reconciler,
		identities: identities,
		ledger:     ledger,
		scanner:    scanner,
		metrics:    metrics,
		logger:     logger,
		poolID:     poolID,
		submitter:  submitter,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Refresh runs one full cycle: reconcile positions against the feed,
// refresh balances of unclaimed identities, reread the transaction ledger,
// and replace the cached snapshot. A degraded reconciliation still produces
// a snapshot; the returned error then wraps reconcile.ErrDegraded.
func (c *Coordinator) Refresh(ctx context.Context, trigger string) (*Snapshot, error) {
	res, recErr := c.reconciler.Reconcile(ctx, c.poolID, c.submitter, nil)
	if recErr != nil && !errors.Is(recErr, reconcile.ErrDegraded) {
		return nil, fmt.Errorf("refresh: %w", recErr)
	}
	if recErr != nil {
		c.logger.Printf("refresh: degraded reconciliation: %v", recErr)
	}

	c.refreshBalances(ctx)

	identities, err := c.identities.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: list identities: %w", err)
	}
	transactions, err := c.ledger.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: list transactions: %w", err)
	}

	snap := &Snapshot{
		Identities:   identities,
		Positions:    res.Positions,
		NetLiquidity: res.NetLiquidity,
		Transactions: transactions,
		Degraded:     res.Degraded,
		RefreshedAt:  c.now(),
	}

	c.mu.Lock()
	c.cached = snap
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RefreshRuns.WithLabelValues(trigger).Inc()
		c.metrics.SnapshotAge.Set(0)
	}
	return snap, recErr
}

// refreshBalances scans balances for every unclaimed identity. Per-address
// failures are logged and skipped.
func (c *Coordinator) refreshBalances(ctx context.Context) {
	if c.scanner == nil {
		return
	}

	unclaimed, err := c.identities.ListUnclaimed(ctx)
	if err != nil {
		c.logger.Printf("refresh balances: list unclaimed: %v", err)
		return
	}

	for _, id := range unclaimed {
		balances, err := c.scanner.ScanBalances(ctx, id.Address)
		if err != nil {
			c.logger.Printf("refresh balances: scan %s: %v", id.Address, err)
			continue
		}
		if err := c.identities.RecordBalances(ctx, id.Address, balances); err != nil {
			c.logger.Printf("refresh balances: record %s: %v", id.Address, err)
		}
	}
}

// Snapshot returns the last cached snapshot, nil before the first refresh.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cached != nil && c.metrics != nil {
		c.metrics.SnapshotAge.Set(float64(c.now()-c.cached.RefreshedAt) / 1000)
	}
	return c.cached
}
