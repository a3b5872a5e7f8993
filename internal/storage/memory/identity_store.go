package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// IdentityStore is an in-memory implementation of storage.IdentityStore.
type IdentityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StealthIdentity // keyed by address (unique index)
	ids  map[string]string                  // identity id -> address (primary key)
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		data: make(map[string]*domain.StealthIdentity),
		ids:  make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.IdentityStore = (*IdentityStore)(nil)

// Insert adds a new identity. Returns ErrDuplicateKey if the address or the
// identity id exists.
func (s *IdentityStore) Insert(_ context.Context, id *domain.StealthIdentity) error {
	if id == nil || id.Address == "" || id.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id.Address]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.ids[id.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.data[id.Address] = id.Clone()
	s.ids[id.ID] = id.Address
	return nil
}

// GetByAddress retrieves an identity by address. Returns ErrNotFound if not exists.
func (s *IdentityStore) GetByAddress(_ context.Context, address string) (*domain.StealthIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return id.Clone(), nil
}

// Update writes back a full record. Returns ErrNotFound if the address is absent.
func (s *IdentityStore) Update(_ context.Context, id *domain.StealthIdentity) error {
	if id == nil || id.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[id.Address]
	if !exists {
		return storage.ErrNotFound
	}
	// The id is the primary key; a record never changes it.
	if id.ID != existing.ID {
		return storage.ErrInvalidInput
	}

	s.data[id.Address] = id.Clone()
	return nil
}

// Delete removes an identity by address. Returns ErrNotFound if absent.
func (s *IdentityStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}

	delete(s.ids, id.ID)
	delete(s.data, address)
	return nil
}

// ListAll retrieves all identities ordered by created_at ASC.
func (s *IdentityStore) ListAll(_ context.Context) ([]*domain.StealthIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StealthIdentity
	for _, id := range s.data {
		result = append(result, id.Clone())
	}

	sortIdentities(result)
	return result, nil
}

// ListByClaimed retrieves identities filtered by claim state, ordered by created_at ASC.
func (s *IdentityStore) ListByClaimed(_ context.Context, claimed bool) ([]*domain.StealthIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StealthIdentity
	for _, id := range s.data {
		if id.Claimed == claimed {
			result = append(result, id.Clone())
		}
	}

	sortIdentities(result)
	return result, nil
}

// sortIdentities orders by created_at ASC with address as tiebreak.
func sortIdentities(ids []*domain.StealthIdentity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].CreatedAt != ids[j].CreatedAt {
			return ids[i].CreatedAt < ids[j].CreatedAt
		}
		return ids[i].Address < ids[j].Address
	})
}
