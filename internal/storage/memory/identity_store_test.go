package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

func testIdentity(address string, createdAt int64) *domain.StealthIdentity {
	return &domain.StealthIdentity{
		ID:        "id-" + address,
		Address:   address,
		CreatedAt: createdAt,
	}
}

func TestIdentityStore_InsertAndGet(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	id := testIdentity("addr1", 1704067200000)
	id.SwapTxHash = "0xswap"

	if err := store.Insert(ctx, id); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByAddress(ctx, "addr1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}

	if got.SwapTxHash != "0xswap" {
		t.Errorf("SwapTxHash mismatch: got %s, want 0xswap", got.SwapTxHash)
	}
}

func TestIdentityStore_DuplicateAddress(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	first := testIdentity("addr1", 1000)
	first.SwapTxHash = "0xfirst"
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	second := testIdentity("addr1", 2000)
	err := store.Insert(ctx, second)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Pre-existing record must be unchanged
	got, err := store.GetByAddress(ctx, "addr1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.SwapTxHash != "0xfirst" || got.CreatedAt != 1000 {
		t.Errorf("Existing record was modified: %+v", got)
	}
}

func TestIdentityStore_DuplicateID(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	first := testIdentity("addr1", 1000)
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same primary key under a different address
	second := testIdentity("addr2", 2000)
	second.ID = first.ID
	if err := store.Insert(ctx, second); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Deleting the holder frees the id for reuse
	if err := store.Delete(ctx, "addr1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Insert(ctx, second); err != nil {
		t.Errorf("Insert after delete failed: %v", err)
	}
}

func TestIdentityStore_UpdateMissing(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	err := store.Update(ctx, testIdentity("ghost", 1000))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestIdentityStore_ListByClaimed(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	a := testIdentity("a", 3000)
	b := testIdentity("b", 1000)
	b.Claimed = true
	c := testIdentity("c", 2000)

	for _, id := range []*domain.StealthIdentity{a, b, c} {
		if err := store.Insert(ctx, id); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id.Address, err)
		}
	}

	unclaimed, err := store.ListByClaimed(ctx, false)
	if err != nil {
		t.Fatalf("ListByClaimed failed: %v", err)
	}
	if len(unclaimed) != 2 {
		t.Fatalf("Expected 2 unclaimed, got %d", len(unclaimed))
	}
	// Ordered by created_at ASC
	if unclaimed[0].Address != "c" || unclaimed[1].Address != "a" {
		t.Errorf("Unexpected order: %s, %s", unclaimed[0].Address, unclaimed[1].Address)
	}

	claimed, err := store.ListByClaimed(ctx, true)
	if err != nil {
		t.Fatalf("ListByClaimed failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Address != "b" {
		t.Errorf("Expected only b claimed, got %v", claimed)
	}
}

func TestIdentityStore_Delete(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testIdentity("addr1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Delete(ctx, "addr1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.GetByAddress(ctx, "addr1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, "addr1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestIdentityStore_ReturnsCopies(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	id := testIdentity("addr1", 1000)
	id.Balances = &domain.BalanceSnapshot{Native: big.NewInt(100), ObservedAt: 1000}
	if err := store.Insert(ctx, id); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByAddress(ctx, "addr1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}

	// Mutating the returned record must not affect stored state
	got.Balances.Native.SetInt64(999)
	got.SwapTxHash = "mutated"

	again, err := store.GetByAddress(ctx, "addr1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if again.Balances.Native.Int64() != 100 {
		t.Errorf("Stored balance mutated: %v", again.Balances.Native)
	}
	if again.SwapTxHash != "" {
		t.Errorf("Stored record mutated: %s", again.SwapTxHash)
	}
}
