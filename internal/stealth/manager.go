// Package stealth manages one-time receiving identities: generation,
// persistence and lifecycle mutations up to the terminal claimed state.
package stealth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/idhash"
	"github.com/grimswap/grimledger/internal/observability"
	"github.com/grimswap/grimledger/internal/storage"
)

// ErrAlreadyClaimed is returned when mutating an identity whose claim state
// is terminal.
var ErrAlreadyClaimed = errors.New("identity already claimed")

// Manager generates, persists and evolves stealth identities.
type Manager struct {
	store   storage.IdentityStore
	metrics *observability.Metrics
	logger  *log.Logger

	// now is swappable for deterministic tests.
	now func() int64
}

// NewManager creates a new identity manager. metrics may be nil.
func NewManager(store storage.IdentityStore, metrics *observability.Metrics, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Generate produces a fresh identity from the secure random source. The
// returned identity is NOT persisted: flows that must confirm an external
// action first call Save only after the action succeeds, so a cancelled flow
// leaves no orphaned secret in the store.
func (m *Manager) Generate() (*domain.StealthIdentity, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	address, err := DeriveAddress(&secret)
	if err != nil {
		secret.Zero()
		return nil, fmt.Errorf("derive address: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IdentitiesGenerated.Inc()
	}

	createdAt := m.now()
	return &domain.StealthIdentity{
		ID:         idhash.ComputeIdentityID(address, createdAt),
		PrivateKey: secret,
		Address:    address,
		CreatedAt:  createdAt,
	}, nil
}

// Save persists a generated identity. Returns storage.ErrDuplicateKey if the
// address already exists; the pre-existing record is left unchanged.
func (m *Manager) Save(ctx context.Context, id *domain.StealthIdentity) error {
	if id == nil || id.Address == "" || id.PrivateKey.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := m.store.Insert(ctx, id); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// AttachSwap records the swap and funding transaction hashes on an identity.
// A missing record is a logged no-op: the external event may race ahead of
// local persistence. A claimed identity is terminal and returns
// ErrAlreadyClaimed.
func (m *Manager) AttachSwap(ctx context.Context, address, swapTxHash, fundingTxHash string) error {
	id, err := m.store.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Printf("attach swap: identity %s not found, skipping", address)
			return nil
		}
		return fmt.Errorf("attach swap: %w", err)
	}

	if id.Claimed {
		return ErrAlreadyClaimed
	}

	id.SwapTxHash = swapTxHash
	if fundingTxHash != "" {
		id.FundingTxHash = fundingTxHash
	}

	if err := m.store.Update(ctx, id); err != nil {
		return fmt.Errorf("attach swap: %w", err)
	}
	return nil
}

// RecordBalances stores the last-observed balance snapshot for an identity.
// A missing record is a logged no-op. A claimed identity is terminal and
// returns ErrAlreadyClaimed.
func (m *Manager) RecordBalances(ctx context.Context, address string, balances *domain.BalanceSnapshot) error {
	id, err := m.store.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Printf("record balances: identity %s not found, skipping", address)
			return nil
		}
		return fmt.Errorf("record balances: %w", err)
	}

	if id.Claimed {
		return ErrAlreadyClaimed
	}

	id.Balances = balances.Clone()

	if err := m.store.Update(ctx, id); err != nil {
		return fmt.Errorf("record balances: %w", err)
	}
	return nil
}

// MarkClaimed transitions an identity to the terminal claimed state.
// A second call on the same address returns ErrAlreadyClaimed and leaves the
// claim fields as set by the first successful call.
func (m *Manager) MarkClaimed(ctx context.Context, address, claimTxHash, destination string) error {
	id, err := m.store.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Printf("mark claimed: identity %s not found, skipping", address)
			return nil
		}
		return fmt.Errorf("mark claimed: %w", err)
	}

	if id.Claimed {
		return ErrAlreadyClaimed
	}

	id.Claimed = true
	id.ClaimTxHash = claimTxHash
	id.ClaimDestination = destination

	if err := m.store.Update(ctx, id); err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	if m.metrics != nil {
		m.metrics.IdentitiesClaimed.Inc()
	}
	return nil
}

// ListUnclaimed returns all identities not yet claimed, oldest first.
func (m *Manager) ListUnclaimed(ctx context.Context) ([]*domain.StealthIdentity, error) {
	return m.store.ListByClaimed(ctx, false)
}

// ListClaimed returns all claimed identities, oldest first.
func (m *Manager) ListClaimed(ctx context.Context) ([]*domain.StealthIdentity, error) {
	return m.store.ListByClaimed(ctx, true)
}

// ListAll returns every identity, oldest first.
func (m *Manager) ListAll(ctx context.Context) ([]*domain.StealthIdentity, error) {
	return m.store.ListAll(ctx)
}

// Delete removes an identity and its key material. Destructive and
// operator-invoked only; identities are never deleted implicitly.
func (m *Manager) Delete(ctx context.Context, address string) error {
	if err := m.store.Delete(ctx, address); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	m.logger.Printf("deleted identity %s", address)
	return nil
}
