package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/idhash"
	"github.com/grimswap/grimledger/internal/storage"
)

// RecordLocalPosition records an optimistic position right after an
// add-liquidity action succeeds, before the event feed confirms it. A repeat
// on an existing key adds to the tracked liquidity.
func (r *Reconciler) RecordLocalPosition(ctx context.Context, poolID string, key domain.PositionKey, liquidity *big.Int, poolKey, txHash string) (*domain.LiquidityPosition, error) {
	if poolID == "" || liquidity == nil || liquidity.Sign() <= 0 {
		return nil, storage.ErrInvalidInput
	}

	p := &domain.LiquidityPosition{
		ID:        idhash.ComputePositionID(poolID, key.TickLower, key.TickUpper, key.Salt, domain.PositionSourceLocal),
		PoolID:    poolID,
		TickLower: key.TickLower,
		TickUpper: key.TickUpper,
		Salt:      key.Salt,
		Liquidity: new(big.Int).Set(liquidity),
		PoolKey:   poolKey,
		CreatedAt: r.now(),
		TxHash:    txHash,
		Source:    domain.PositionSourceLocal,
	}

	err := r.positions.Insert(ctx, p)
	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, getErr := r.positions.GetByID(ctx, p.ID)
		if getErr != nil {
			return nil, fmt.Errorf("record local position: %w", getErr)
		}
		existing.Liquidity.Add(existing.Liquidity, liquidity)
		existing.TxHash = txHash
		if err := r.positions.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("record local position: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record local position: %w", err)
	}
	return p.Clone(), nil
}

// UpdateLocalLiquidity sets the tracked liquidity of a local position.
// An amount of zero or below removes the record. A missing record is a
// logged no-op; a chain-derived record is rejected with ErrInvalidInput,
// only the scan may rewrite the chain view.
func (r *Reconciler) UpdateLocalLiquidity(ctx context.Context, id string, newAmount *big.Int) error {
	if newAmount == nil || newAmount.Sign() <= 0 {
		return r.RemoveLocalPosition(ctx, id)
	}

	p, err := r.positions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Printf("update local position %s: not found, skipping", id)
			return nil
		}
		return fmt.Errorf("update local position: %w", err)
	}
	if p.Source != domain.PositionSourceLocal {
		return storage.ErrInvalidInput
	}

	p.Liquidity = new(big.Int).Set(newAmount)
	if err := r.positions.Update(ctx, p); err != nil {
		return fmt.Errorf("update local position: %w", err)
	}
	return nil
}

// RemoveLocalPosition deletes a local position. A missing record is a
// logged no-op; a chain-derived record is rejected with ErrInvalidInput.
func (r *Reconciler) RemoveLocalPosition(ctx context.Context, id string) error {
	p, err := r.positions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Printf("remove local position %s: not found, skipping", id)
			return nil
		}
		return fmt.Errorf("remove local position: %w", err)
	}
	if p.Source != domain.PositionSourceLocal {
		return storage.ErrInvalidInput
	}

	if err := r.positions.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove local position: %w", err)
	}
	return nil
}
