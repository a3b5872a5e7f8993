// Package txledger keeps a bounded local record of submitted transactions
// and their lifecycle state. The ledger retains at most MaxRecords entries;
// appending beyond the cap evicts the oldest record.
package txledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/idhash"
	"github.com/grimswap/grimledger/internal/observability"
	"github.com/grimswap/grimledger/internal/storage"
)

// MaxRecords is the retention cap of the ledger.
const MaxRecords = 50

// ErrStatusRegression is returned when an update would move a record's
// status out of a terminal state.
var ErrStatusRegression = errors.New("status transition out of terminal state")

// Update is a partial mutation applied to a ledger record by hash.
// Nil fields are left unchanged.
type Update struct {
	Status  *string
	Summary *string
	Details map[string]string
}

// Ledger is the bounded transaction log. All mutations are serialized by a
// ledger-level mutex; the store underneath only sees one writer.
type Ledger struct {
	mu      sync.Mutex
	store   storage.TransactionStore
	max     int
	metrics *observability.Metrics
	logger  *log.Logger

	// now is swappable for deterministic tests.
	now    func() int64
	lastTs int64 // keeps timestamps strictly increasing so eviction order is insertion order
}

// New creates a ledger over the given store with the default cap.
// metrics may be nil.
func New(store storage.TransactionStore, metrics *observability.Metrics, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		store:   store,
		max:     MaxRecords,
		metrics: metrics,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Append assigns id, timestamp and the initial pending status (unless the
// caller supplied a status), inserts the record and evicts the oldest
// records beyond the cap. Returns the stored record.
func (l *Ledger) Append(ctx context.Context, r *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	if r == nil || r.Hash == "" || !domain.ValidTxType(r.Type) {
		return nil, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if ts <= l.lastTs {
		ts = l.lastTs + 1
	}
	l.lastTs = ts

	rec := r.Clone()
	rec.Timestamp = ts
	rec.ID = idhash.ComputeTransactionID(rec.Hash, rec.Submitter, rec.Timestamp)
	if rec.Status == "" {
		rec.Status = domain.TxStatusPending
	}

	if err := l.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	if l.metrics != nil {
		l.metrics.TransactionsAppended.Inc()
	}

	if err := l.evictLocked(ctx); err != nil {
		return nil, err
	}

	return rec.Clone(), nil
}

// evictLocked removes the oldest records until the cap holds.
func (l *Ledger) evictLocked(ctx context.Context) error {
	n, err := l.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if n <= l.max {
		return nil
	}

	all, err := l.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	// ListAll is newest first; everything past the cap is evicted.
	for _, old := range all[l.max:] {
		if err := l.store.DeleteByID(ctx, old.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("evict transaction %s: %w", old.ID, err)
		}
		if l.metrics != nil {
			l.metrics.TransactionsEvicted.Inc()
		}
		l.logger.Printf("evicted transaction %s (hash %s)", old.ID, old.Hash)
	}
	return nil
}

// UpdateByHash applies a partial update to the most recent record with the
// given hash. An absent hash is a logged no-op. Terminal records accept
// corrections to summary and details but reject status changes.
func (l *Ledger) UpdateByHash(ctx context.Context, hash string, upd Update) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			l.logger.Printf("update: transaction %s not found, skipping", hash)
			return nil
		}
		return fmt.Errorf("update transaction: %w", err)
	}

	if upd.Status != nil && *upd.Status != rec.Status {
		if domain.TerminalStatus(rec.Status) {
			return ErrStatusRegression
		}
		rec.Status = *upd.Status
	}
	if upd.Summary != nil {
		rec.Summary = *upd.Summary
	}
	if upd.Details != nil {
		if rec.Details == nil {
			rec.Details = make(map[string]string, len(upd.Details))
		}
		for k, v := range upd.Details {
			rec.Details[k] = v
		}
	}

	if err := l.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// RemoveByHash deletes all records with the given hash. Absent hashes are a
// logged no-op.
func (l *Ledger) RemoveByHash(ctx context.Context, hash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.DeleteByHash(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			l.logger.Printf("remove: transaction %s not found, skipping", hash)
			return nil
		}
		return fmt.Errorf("remove transaction: %w", err)
	}
	return nil
}

// Clear removes every record.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

// ListAll returns all records newest first.
func (l *Ledger) ListAll(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return l.store.ListAll(ctx)
}

// ListBySubmitter returns records whose submitter matches address
// case-insensitively, newest first.
func (l *Ledger) ListBySubmitter(ctx context.Context, address string) ([]*domain.TransactionRecord, error) {
	all, err := l.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	var result []*domain.TransactionRecord
	for _, r := range all {
		if strings.EqualFold(r.Submitter, address) {
			result = append(result, r)
		}
	}
	return result, nil
}

// Pending returns all pending records, newest first.
func (l *Ledger) Pending(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return l.listByStatus(ctx, domain.TxStatusPending)
}

// Confirmed returns all confirmed records, newest first.
func (l *Ledger) Confirmed(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return l.listByStatus(ctx, domain.TxStatusConfirmed)
}

// Failed returns all failed records, newest first.
func (l *Ledger) Failed(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return l.listByStatus(ctx, domain.TxStatusFailed)
}

func (l *Ledger) listByStatus(ctx context.Context, status string) ([]*domain.TransactionRecord, error) {
	all, err := l.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	var result []*domain.TransactionRecord
	for _, r := range all {
		if r.Status == status {
			result = append(result, r)
		}
	}
	return result, nil
}
