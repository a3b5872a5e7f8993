package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

func testRecord(id, hash string, ts int64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:        id,
		Hash:      hash,
		Type:      domain.TxTypeSwap,
		Status:    domain.TxStatusPending,
		Timestamp: ts,
		ChainID:   1,
		Submitter: "0xSubmitter",
	}
}

func TestTransactionStore_InsertAndGetByHash(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("r1", "0xabc", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.ID != "r1" {
		t.Errorf("ID mismatch: got %s, want r1", got.ID)
	}
}

func TestTransactionStore_DuplicateID(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("r1", "0xabc", 1000)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, testRecord("r1", "0xdef", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTransactionStore_ListAllNewestFirst(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for _, r := range []*domain.TransactionRecord{
		testRecord("r1", "0xa", 1000),
		testRecord("r2", "0xb", 3000),
		testRecord("r3", "0xc", 2000),
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert(%s) failed: %v", r.ID, err)
		}
	}

	got, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if got[0].ID != "r2" || got[1].ID != "r3" || got[2].ID != "r1" {
		t.Errorf("Unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestTransactionStore_DeleteByHash(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("r1", "0xabc", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.DeleteByHash(ctx, "0xabc"); err != nil {
		t.Fatalf("DeleteByHash failed: %v", err)
	}

	if err := store.DeleteByHash(ctx, "0xabc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on absent hash, got %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 records, got %d", n)
	}
}

func TestTransactionStore_DeleteAll(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for i, hash := range []string{"0xa", "0xb"} {
		if err := store.Insert(ctx, testRecord(hash, hash, int64(i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty store, got %d records", n)
	}
}
