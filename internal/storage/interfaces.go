package storage

import (
	"context"

	"github.com/grimswap/grimledger/internal/domain"
)

// IdentityStore provides access to stealth identity storage.
// Address carries a uniqueness constraint; Insert fails with ErrDuplicateKey
// rather than silently overwriting an existing record.
type IdentityStore interface {
	// Insert adds a new identity. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, id *domain.StealthIdentity) error

	// GetByAddress retrieves an identity by its unique address.
	// Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.StealthIdentity, error)

	// Update writes back a full record previously read by address.
	// Returns ErrNotFound if the address does not exist.
	Update(ctx context.Context, id *domain.StealthIdentity) error

	// Delete removes an identity by address. Returns ErrNotFound if absent.
	Delete(ctx context.Context, address string) error

	// ListAll retrieves all identities ordered by created_at ASC.
	ListAll(ctx context.Context) ([]*domain.StealthIdentity, error)

	// ListByClaimed retrieves identities filtered by claim state,
	// ordered by created_at ASC.
	ListByClaimed(ctx context.Context, claimed bool) ([]*domain.StealthIdentity, error)
}

// PositionStore provides access to liquidity position storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *domain.LiquidityPosition) error

	// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.LiquidityPosition, error)

	// Update writes back a full record. Returns ErrNotFound if absent.
	Update(ctx context.Context, p *domain.LiquidityPosition) error

	// Delete removes a position by id. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// ListByPool retrieves all positions for a pool, ordered by created_at ASC.
	ListByPool(ctx context.Context, poolID string) ([]*domain.LiquidityPosition, error)

	// ListByPoolAndSource retrieves positions for a pool filtered by source,
	// ordered by created_at ASC.
	ListByPoolAndSource(ctx context.Context, poolID, source string) ([]*domain.LiquidityPosition, error)

	// ReplaceForPool atomically replaces every position of a pool with the
	// supplied merged set. The previous durable view stays intact if the
	// write fails partway.
	ReplaceForPool(ctx context.Context, poolID string, positions []*domain.LiquidityPosition) error
}

// TransactionStore provides access to transaction record storage.
// Ledger semantics (cap, eviction, status transitions) live in the
// txledger component; this is the durability primitive underneath it.
type TransactionStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.TransactionRecord) error

	// GetByHash retrieves the most recent record with the given transaction
	// hash. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error)

	// Update writes back a full record. Returns ErrNotFound if absent.
	Update(ctx context.Context, r *domain.TransactionRecord) error

	// DeleteByID removes one record by id. Returns ErrNotFound if absent.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByHash removes all records with the given hash.
	// Returns ErrNotFound if none exist.
	DeleteByHash(ctx context.Context, hash string) error

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error

	// ListAll retrieves all records ordered by timestamp DESC (newest first).
	ListAll(ctx context.Context) ([]*domain.TransactionRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
