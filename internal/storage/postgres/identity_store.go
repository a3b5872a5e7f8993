package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// IdentityStore implements storage.IdentityStore using PostgreSQL. Private
// key material is stored as raw bytes; the column never appears in logs and
// the daemon runs against a local, caller-owned database.
type IdentityStore struct {
	pool *Pool
}

// NewIdentityStore creates a new IdentityStore.
func NewIdentityStore(pool *Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IdentityStore = (*IdentityStore)(nil)

const identityColumns = `
	identity_id, private_key, address, created_at,
	swap_tx_hash, funding_tx_hash,
	claimed, claim_tx_hash, claim_destination,
	balance_native::text, balance_token::text, balance_observed_at
`

// Insert adds a new identity. Returns ErrDuplicateKey if the address exists.
func (s *IdentityStore) Insert(ctx context.Context, id *domain.StealthIdentity) error {
	query := `
		INSERT INTO stealth_identities (
			identity_id, private_key, address, created_at,
			swap_tx_hash, funding_tx_hash,
			claimed, claim_tx_hash, claim_destination,
			balance_native, balance_token, balance_observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12)
	`

	native, token, observedAt := balanceColumns(id.Balances)
	_, err := s.pool.Exec(ctx, query,
		id.ID,
		id.PrivateKey.Bytes(),
		id.Address,
		id.CreatedAt,
		id.SwapTxHash,
		id.FundingTxHash,
		id.Claimed,
		id.ClaimTxHash,
		id.ClaimDestination,
		native,
		token,
		observedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByAddress retrieves an identity by its unique address.
func (s *IdentityStore) GetByAddress(ctx context.Context, address string) (*domain.StealthIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM stealth_identities WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, address)
	id, err := scanIdentity(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get identity by address: %w", err)
	}
	return id, nil
}

// Update writes back a full record. Returns ErrNotFound if the address
// does not exist.
func (s *IdentityStore) Update(ctx context.Context, id *domain.StealthIdentity) error {
	query := `
		UPDATE stealth_identities SET
			swap_tx_hash = $2,
			funding_tx_hash = $3,
			claimed = $4,
			claim_tx_hash = $5,
			claim_destination = $6,
			balance_native = $7::numeric,
			balance_token = $8::numeric,
			balance_observed_at = $9
		WHERE address = $1
	`

	native, token, observedAt := balanceColumns(id.Balances)
	tag, err := s.pool.Exec(ctx, query,
		id.Address,
		id.SwapTxHash,
		id.FundingTxHash,
		id.Claimed,
		id.ClaimTxHash,
		id.ClaimDestination,
		native,
		token,
		observedAt,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an identity by address. Returns ErrNotFound if absent.
func (s *IdentityStore) Delete(ctx context.Context, address string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stealth_identities WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAll retrieves all identities ordered by created_at ASC.
func (s *IdentityStore) ListAll(ctx context.Context) ([]*domain.StealthIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM stealth_identities ORDER BY created_at ASC, identity_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// ListByClaimed retrieves identities filtered by claim state.
func (s *IdentityStore) ListByClaimed(ctx context.Context, claimed bool) ([]*domain.StealthIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM stealth_identities WHERE claimed = $1 ORDER BY created_at ASC, identity_id ASC`

	rows, err := s.pool.Query(ctx, query, claimed)
	if err != nil {
		return nil, fmt.Errorf("list identities by claimed: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// balanceColumns flattens an optional snapshot into its three columns.
func balanceColumns(b *domain.BalanceSnapshot) (native, token *string, observedAt *int64) {
	if b == nil {
		return nil, nil, nil
	}
	return bigIntText(b.Native), bigIntText(b.Token), &b.ObservedAt
}

// scanIdentity scans a single row into a StealthIdentity.
func scanIdentity(row pgx.Row) (*domain.StealthIdentity, error) {
	var (
		id         domain.StealthIdentity
		rawKey     []byte
		native     *string
		token      *string
		observedAt *int64
	)

	err := row.Scan(
		&id.ID,
		&rawKey,
		&id.Address,
		&id.CreatedAt,
		&id.SwapTxHash,
		&id.FundingTxHash,
		&id.Claimed,
		&id.ClaimTxHash,
		&id.ClaimDestination,
		&native,
		&token,
		&observedAt,
	)
	if err != nil {
		return nil, err
	}

	id.PrivateKey, err = domain.NewSecret(rawKey)
	if err != nil {
		return nil, fmt.Errorf("stored key material: %w", err)
	}

	if observedAt != nil {
		nativeVal, err := parseBigInt(native)
		if err != nil {
			return nil, fmt.Errorf("balance native: %w", err)
		}
		tokenVal, err := parseBigInt(token)
		if err != nil {
			return nil, fmt.Errorf("balance token: %w", err)
		}
		id.Balances = &domain.BalanceSnapshot{
			Native:     nativeVal,
			Token:      tokenVal,
			ObservedAt: *observedAt,
		}
	}
	return &id, nil
}

// scanIdentities scans multiple rows into a slice of StealthIdentity.
func scanIdentities(rows pgx.Rows) ([]*domain.StealthIdentity, error) {
	var out []*domain.StealthIdentity

	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity row: %w", err)
		}
		out = append(out, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity rows: %w", err)
	}
	return out, nil
}
