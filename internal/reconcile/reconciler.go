// Package reconcile merges the authoritative settlement-layer event feed
// with optimistic local liquidity positions. The fold always recomputes the
// full net state from the scanned window, so re-running a scan is idempotent
// and an abandoned scan never double-counts deltas.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grimswap/grimledger/internal/chain"
	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/idhash"
	"github.com/grimswap/grimledger/internal/observability"
	"github.com/grimswap/grimledger/internal/storage"
)

// Default configuration values.
const (
	DefaultLookbackBlocks = 50_000
	DefaultLookupWorkers  = 8
)

// ErrDegraded marks a reconciliation that fell back to locally recorded
// positions because the remote feed was unreachable. The accompanying
// Result is still valid; callers render it with a staleness indicator.
var ErrDegraded = errors.New("reconciliation degraded: remote feed unavailable")

// ScanArchive receives the decoded events of each completed scan.
// Archiving is best effort and never fails a reconciliation.
type ScanArchive interface {
	ArchiveScan(ctx context.Context, poolID string, scannedAt int64, mods []*domain.LiquidityModification) error
}

// Config contains reconciler tuning knobs.
type Config struct {
	// Contract is the pool manager contract emitting liquidity events.
	Contract string
	// LookbackBlocks bounds the scan window behind the chain head.
	LookbackBlocks int64
	// LookupWorkers bounds the attribution fan-out.
	LookupWorkers int
}

// Result is the outcome of one reconciliation.
type Result struct {
	Positions    []*domain.LiquidityPosition
	NetLiquidity *big.Int // grand total of all attributed deltas, any sign
	Degraded     bool
	FromBlock    int64
	ToBlock      int64
}

// Reconciler derives net liquidity per position key from the event feed and
// merges it with optimistic local positions.
type Reconciler struct {
	client    chain.Client
	positions storage.PositionStore
	archive   ScanArchive // optional
	metrics   *observability.Metrics
	logger    *log.Logger

	contract string
	lookback int64
	workers  int

	now func() int64
}

// New creates a reconciler. archive and metrics may be nil.
func New(client chain.Client, positions storage.PositionStore, archive ScanArchive, metrics *observability.Metrics, logger *log.Logger, cfg Config) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	lookback := cfg.LookbackBlocks
	if lookback <= 0 {
		lookback = DefaultLookbackBlocks
	}
	workers := cfg.LookupWorkers
	if workers <= 0 {
		workers = DefaultLookupWorkers
	}
	return &Reconciler{
		client:    client,
		positions: positions,
		archive:   archive,
		metrics:   metrics,
		logger:    logger,
		contract:  cfg.Contract,
		lookback:  lookback,
		workers:   workers,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Reconcile scans the feed for liquidity modifications of poolID attributed
// to submitter, folds them into net positions, merges with local records and
// writes the merged view in one step.
//
// When the remote feed is unreachable it returns the locally recorded
// positions with Degraded set and an error wrapping ErrDegraded; the store
// keeps its previous durable view, including cached chain-derived positions.
func (r *Reconciler) Reconcile(ctx context.Context, poolID, submitter string, fromBlock *int64) (*Result, error) {
	start := time.Now()

	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return r.degraded(ctx, poolID, err)
	}

	from := head - r.lookback
	if fromBlock != nil {
		from = *fromBlock
	}
	if from < 0 {
		from = 0 // chain shorter than the lookback, scan from genesis
	}

	logs, err := r.client.GetLogs(ctx, chain.LogQuery{
		Address:   r.contract,
		Topics:    []string{ModifyLiquidityTopic, poolID},
		FromBlock: from,
		ToBlock:   head,
	})
	if err != nil {
		return r.degraded(ctx, poolID, err)
	}

	mods := r.decodeAll(logs)
	mine, err := r.attribute(ctx, mods, submitter)
	if err != nil {
		return nil, err // context cancellation only
	}

	// Completion order of the concurrent lookups must not affect the fold.
	SortModifications(mine)

	active, net := fold(mine)
	merged, err := r.merge(ctx, poolID, mine, active)
	if err != nil {
		return nil, err
	}

	// The merged view is fully computed; persist it in a single step.
	if err := r.positions.ReplaceForPool(ctx, poolID, merged); err != nil {
		return nil, fmt.Errorf("persist merged positions: %w", err)
	}

	if r.archive != nil {
		if err := r.archive.ArchiveScan(ctx, poolID, r.now(), mine); err != nil {
			r.logger.Printf("archive scan for pool %s: %v", poolID, err)
		}
	}

	if r.metrics != nil {
		r.metrics.ReconcileRuns.WithLabelValues("ok").Inc()
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		r.metrics.EventsScanned.Add(float64(len(mods)))
	}

	result := make([]*domain.LiquidityPosition, len(merged))
	for i, p := range merged {
		result[i] = p.Clone()
	}
	return &Result{
		Positions:    result,
		NetLiquidity: net,
		FromBlock:    from,
		ToBlock:      head,
	}, nil
}

// degraded returns the local-only fallback result. The store is left
// untouched so a previously cached chain-derived view survives the outage.
func (r *Reconciler) degraded(ctx context.Context, poolID string, cause error) (*Result, error) {
	r.logger.Printf("reconcile pool %s degraded: %v", poolID, cause)
	if r.metrics != nil {
		r.metrics.ReconcileRuns.WithLabelValues("degraded").Inc()
	}

	locals, err := r.positions.ListByPoolAndSource(ctx, poolID, domain.PositionSourceLocal)
	if err != nil {
		return nil, fmt.Errorf("list local positions: %w", err)
	}

	net := new(big.Int)
	for _, p := range locals {
		net.Add(net, p.Liquidity)
	}

	return &Result{
		Positions:    locals,
		NetLiquidity: net,
		Degraded:     true,
	}, fmt.Errorf("%w: %v", ErrDegraded, cause)
}

// decodeAll decodes raw logs, skipping malformed entries.
func (r *Reconciler) decodeAll(logs []chain.Log) []*domain.LiquidityModification {
	mods := make([]*domain.LiquidityModification, 0, len(logs))
	for _, l := range logs {
		m, err := DecodeModification(l)
		if err != nil {
			r.logger.Printf("skipping log %s[%d]: %v", l.TxHash, l.LogIndex, err)
			if r.metrics != nil {
				r.metrics.DecodeFailures.Inc()
			}
			continue
		}
		mods = append(mods, m)
	}
	return mods
}

// attribute resolves each event's originating transaction sender with a
// bounded concurrent fan-out and keeps the events submitted by submitter.
// The logged actor is typically the routing contract, so attribution needs
// the secondary transaction lookup; individual lookup failures are skipped
// and logged without aborting the scan. No lock is held across the lookups;
// results are gathered into local values and reduced afterwards.
func (r *Reconciler) attribute(ctx context.Context, mods []*domain.LiquidityModification, submitter string) ([]*domain.LiquidityModification, error) {
	if len(mods) == 0 {
		return nil, nil
	}

	// One lookup per distinct transaction; several events share a tx.
	hashes := make([]string, 0, len(mods))
	seen := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		if _, ok := seen[m.TxHash]; !ok {
			seen[m.TxHash] = struct{}{}
			hashes = append(hashes, m.TxHash)
		}
	}

	var mu sync.Mutex
	senders := make(map[string]string, len(hashes))

	jobs := make(chan string)
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(hashes) {
		workers = len(hashes)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hash := range jobs {
				tx, err := r.client.GetTransaction(ctx, hash)
				if err != nil {
					r.logger.Printf("lookup tx %s failed, skipping its events: %v", hash, err)
					if r.metrics != nil {
						r.metrics.LookupFailures.Inc()
					}
					continue
				}
				if tx == nil {
					continue
				}
				mu.Lock()
				senders[hash] = tx.From
				mu.Unlock()
			}
		}()
	}

	for _, hash := range hashes {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- hash:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mine []*domain.LiquidityModification
	for _, m := range mods {
		from, ok := senders[m.TxHash]
		if !ok {
			continue // lookup failed or tx unknown
		}
		if strings.EqualFold(from, submitter) {
			m.TxSender = from
			mine = append(mine, m)
		}
	}
	return mine, nil
}

// fold replays the ordered events, summing signed deltas per position key.
// A key whose running sum drops to zero or below leaves the active map; the
// grand total accumulates every delta regardless of per-key sign.
func fold(mods []*domain.LiquidityModification) (map[domain.PositionKey]*big.Int, *big.Int) {
	active := make(map[domain.PositionKey]*big.Int)
	net := new(big.Int)

	for _, m := range mods {
		net.Add(net, m.LiquidityDelta)

		key := m.Key()
		sum, ok := active[key]
		if !ok {
			sum = new(big.Int)
			active[key] = sum
		}
		sum.Add(sum, m.LiquidityDelta)
		if sum.Sign() <= 0 {
			delete(active, key)
		}
	}

	return active, net
}

// merge builds the merged position set: chain-derived records for every
// active key, plus local records whose key has no chain-derived entry and
// whose tracked liquidity is still positive.
func (r *Reconciler) merge(ctx context.Context, poolID string, mods []*domain.LiquidityModification, active map[domain.PositionKey]*big.Int) ([]*domain.LiquidityPosition, error) {
	// Provenance of each key: first event that touched it, in chain order.
	firstTx := make(map[domain.PositionKey]string, len(active))
	for _, m := range mods {
		key := m.Key()
		if _, ok := firstTx[key]; !ok {
			firstTx[key] = m.TxHash
		}
	}

	now := r.now()
	var merged []*domain.LiquidityPosition
	for key, liquidity := range active {
		merged = append(merged, &domain.LiquidityPosition{
			ID:        idhash.ComputePositionID(poolID, key.TickLower, key.TickUpper, key.Salt, domain.PositionSourceChain),
			PoolID:    poolID,
			TickLower: key.TickLower,
			TickUpper: key.TickUpper,
			Salt:      key.Salt,
			Liquidity: new(big.Int).Set(liquidity),
			CreatedAt: now,
			TxHash:    firstTx[key],
			Source:    domain.PositionSourceChain,
		})
	}

	locals, err := r.positions.ListByPoolAndSource(ctx, poolID, domain.PositionSourceLocal)
	if err != nil {
		return nil, fmt.Errorf("list local positions: %w", err)
	}
	for _, p := range locals {
		if _, superseded := active[p.Key()]; superseded {
			continue
		}
		if p.Liquidity == nil || p.Liquidity.Sign() <= 0 {
			continue
		}
		merged = append(merged, p)
	}

	// Map iteration order is random; keep the merged view deterministic.
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.TickLower != b.TickLower {
			return a.TickLower < b.TickLower
		}
		if a.TickUpper != b.TickUpper {
			return a.TickUpper < b.TickUpper
		}
		if a.Salt != b.Salt {
			return a.Salt < b.Salt
		}
		return a.Source < b.Source
	})

	return merged, nil
}
