package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransactionRecord // keyed by record id
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string]*domain.TransactionRecord),
	}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TransactionStore) Insert(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = r.Clone()
	return nil
}

// GetByHash retrieves the most recent record with the given hash.
func (s *TransactionStore) GetByHash(_ context.Context, hash string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.TransactionRecord
	for _, r := range s.data {
		if r.Hash != hash {
			continue
		}
		if latest == nil || r.Timestamp > latest.Timestamp {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	return latest.Clone(), nil
}

// Update writes back a full record. Returns ErrNotFound if absent.
func (s *TransactionStore) Update(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[r.ID] = r.Clone()
	return nil
}

// DeleteByID removes one record by id. Returns ErrNotFound if absent.
func (s *TransactionStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, id)
	return nil
}

// DeleteByHash removes all records with the given hash.
func (s *TransactionStore) DeleteByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for id, r := range s.data {
		if r.Hash == hash {
			delete(s.data, id)
			found = true
		}
	}
	if !found {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAll removes every record.
func (s *TransactionStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*domain.TransactionRecord)
	return nil
}

// ListAll retrieves all records ordered by timestamp DESC (newest first).
func (s *TransactionStore) ListAll(_ context.Context) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionRecord
	for _, r := range s.data {
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// Count returns the number of stored records.
func (s *TransactionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data), nil
}
