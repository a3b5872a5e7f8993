package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, pool_id, tick_lower, tick_upper, salt,
	liquidity::text, pool_key, created_at, tx_hash, source
`

const insertPositionQuery = `
	INSERT INTO liquidity_positions (
		position_id, pool_id, tick_lower, tick_upper, salt,
		liquidity, pool_key, created_at, tx_hash, source
	) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
`

// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.LiquidityPosition) error {
	_, err := s.pool.Exec(ctx, insertPositionQuery, positionArgs(p)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.LiquidityPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM liquidity_positions WHERE position_id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// Update writes back a full record. Returns ErrNotFound if absent.
func (s *PositionStore) Update(ctx context.Context, p *domain.LiquidityPosition) error {
	query := `
		UPDATE liquidity_positions SET
			liquidity = $2::numeric,
			pool_key = $3,
			tx_hash = $4
		WHERE position_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, p.ID, bigIntText(p.Liquidity), p.PoolKey, p.TxHash)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a position by id. Returns ErrNotFound if absent.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM liquidity_positions WHERE position_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByPool retrieves all positions for a pool, ordered by created_at ASC.
func (s *PositionStore) ListByPool(ctx context.Context, poolID string) ([]*domain.LiquidityPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM liquidity_positions WHERE pool_id = $1 ORDER BY created_at ASC, position_id ASC`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("list positions by pool: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListByPoolAndSource retrieves positions for a pool filtered by source.
func (s *PositionStore) ListByPoolAndSource(ctx context.Context, poolID, source string) ([]*domain.LiquidityPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM liquidity_positions WHERE pool_id = $1 AND source = $2 ORDER BY created_at ASC, position_id ASC`

	rows, err := s.pool.Query(ctx, query, poolID, source)
	if err != nil {
		return nil, fmt.Errorf("list positions by pool and source: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ReplaceForPool atomically replaces every position of a pool with the
// supplied merged set. Runs in a single transaction so the previous view
// stays intact if the write fails partway.
func (s *PositionStore) ReplaceForPool(ctx context.Context, poolID string, positions []*domain.LiquidityPosition) error {
	for _, p := range positions {
		if p.PoolID != poolID {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace positions: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM liquidity_positions WHERE pool_id = $1`, poolID); err != nil {
		return fmt.Errorf("replace positions: clear pool: %w", err)
	}
	for _, p := range positions {
		if _, err := tx.Exec(ctx, insertPositionQuery, positionArgs(p)...); err != nil {
			return fmt.Errorf("replace positions: insert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace positions: commit: %w", err)
	}
	return nil
}

func positionArgs(p *domain.LiquidityPosition) []any {
	return []any{
		p.ID,
		p.PoolID,
		p.TickLower,
		p.TickUpper,
		p.Salt,
		bigIntText(p.Liquidity),
		p.PoolKey,
		p.CreatedAt,
		p.TxHash,
		p.Source,
	}
}

// scanPosition scans a single row into a LiquidityPosition.
func scanPosition(row pgx.Row) (*domain.LiquidityPosition, error) {
	var (
		p         domain.LiquidityPosition
		liquidity *string
	)

	err := row.Scan(
		&p.ID,
		&p.PoolID,
		&p.TickLower,
		&p.TickUpper,
		&p.Salt,
		&liquidity,
		&p.PoolKey,
		&p.CreatedAt,
		&p.TxHash,
		&p.Source,
	)
	if err != nil {
		return nil, err
	}

	p.Liquidity, err = parseBigInt(liquidity)
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	return &p, nil
}

// scanPositions scans multiple rows into a slice of LiquidityPosition.
func scanPositions(rows pgx.Rows) ([]*domain.LiquidityPosition, error) {
	var out []*domain.LiquidityPosition

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}
