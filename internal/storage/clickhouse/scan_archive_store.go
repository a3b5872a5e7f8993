package clickhouse

import (
	"context"
	"fmt"

	"github.com/grimswap/grimledger/internal/domain"
)

// ScanArchiveStore records the decoded events of every reconciliation run
// in an append-only MergeTree table. ClickHouse does not enforce uniqueness;
// rows are keyed by scan timestamp so repeated scans of the same window stay
// distinguishable.
type ScanArchiveStore struct {
	conn *Conn
}

// NewScanArchiveStore creates a new ScanArchiveStore.
func NewScanArchiveStore(conn *Conn) *ScanArchiveStore {
	return &ScanArchiveStore{conn: conn}
}

// ArchiveScan appends one row per decoded modification for a completed scan.
func (s *ScanArchiveStore) ArchiveScan(ctx context.Context, poolID string, scannedAt int64, mods []*domain.LiquidityModification) error {
	if len(mods) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO scan_events (
			scanned_at, pool_id, tx_hash, log_index, block_number,
			sender, tx_sender, tick_lower, tick_upper, salt, liquidity_delta
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range mods {
		err = batch.Append(
			scannedAt,
			poolID,
			m.TxHash,
			int32(m.LogIndex),
			m.BlockNumber,
			m.Sender,
			m.TxSender,
			m.TickLower,
			m.TickUpper,
			m.Salt,
			m.LiquidityDelta.String(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByPool retrieves archived events for a pool ordered by scan time then
// chain order. Intended for audit queries, not the hot path.
func (s *ScanArchiveStore) ListByPool(ctx context.Context, poolID string) ([]*ArchivedEvent, error) {
	query := `
		SELECT scanned_at, pool_id, tx_hash, log_index, block_number,
		       sender, tx_sender, tick_lower, tick_upper, salt, liquidity_delta
		FROM scan_events
		WHERE pool_id = ?
		ORDER BY scanned_at ASC, block_number ASC, log_index ASC
	`

	rows, err := s.conn.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("list archived events: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedEvent
	for rows.Next() {
		var e ArchivedEvent
		err := rows.Scan(
			&e.ScannedAt,
			&e.PoolID,
			&e.TxHash,
			&e.LogIndex,
			&e.BlockNumber,
			&e.Sender,
			&e.TxSender,
			&e.TickLower,
			&e.TickUpper,
			&e.Salt,
			&e.LiquidityDelta,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archived event row: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived event rows: %w", err)
	}
	return out, nil
}

// ArchivedEvent is one audit row of a past scan. LiquidityDelta stays in its
// decimal string form; the audit path never does arithmetic on it.
type ArchivedEvent struct {
	ScannedAt      int64
	PoolID         string
	TxHash         string
	LogIndex       int32
	BlockNumber    int64
	Sender         string
	TxSender       string
	TickLower      int32
	TickUpper      int32
	Salt           string
	LiquidityDelta string
}
