package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LiquidityPosition // keyed by position id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.LiquidityPosition),
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.LiquidityPosition) error {
	if p == nil || p.ID == "" || p.PoolID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[p.ID] = p.Clone()
	return nil
}

// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return p.Clone(), nil
}

// Update writes back a full record. Returns ErrNotFound if absent.
func (s *PositionStore) Update(_ context.Context, p *domain.LiquidityPosition) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[p.ID] = p.Clone()
	return nil
}

// Delete removes a position by id. Returns ErrNotFound if absent.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, id)
	return nil
}

// ListByPool retrieves all positions for a pool, ordered by created_at ASC.
func (s *PositionStore) ListByPool(_ context.Context, poolID string) ([]*domain.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LiquidityPosition
	for _, p := range s.data {
		if p.PoolID == poolID {
			result = append(result, p.Clone())
		}
	}

	sortPositions(result)
	return result, nil
}

// ListByPoolAndSource retrieves positions for a pool filtered by source.
func (s *PositionStore) ListByPoolAndSource(_ context.Context, poolID, source string) ([]*domain.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LiquidityPosition
	for _, p := range s.data {
		if p.PoolID == poolID && p.Source == source {
			result = append(result, p.Clone())
		}
	}

	sortPositions(result)
	return result, nil
}

// ReplaceForPool atomically replaces every position of a pool with the
// supplied merged set.
func (s *PositionStore) ReplaceForPool(_ context.Context, poolID string, positions []*domain.LiquidityPosition) error {
	if poolID == "" {
		return storage.ErrInvalidInput
	}
	for _, p := range positions {
		if p == nil || p.ID == "" || p.PoolID != poolID {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.data {
		if p.PoolID == poolID {
			delete(s.data, id)
		}
	}
	for _, p := range positions {
		s.data[p.ID] = p.Clone()
	}
	return nil
}

// sortPositions orders by created_at ASC with id as tiebreak.
func sortPositions(ps []*domain.LiquidityPosition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt != ps[j].CreatedAt {
			return ps[i].CreatedAt < ps[j].CreatedAt
		}
		return ps[i].ID < ps[j].ID
	})
}
