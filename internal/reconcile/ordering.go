package reconcile

import (
	"errors"
	"sort"

	"github.com/grimswap/grimledger/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortModifications orders events by (block ASC, log_index ASC, tx_hash ASC).
// Attribution lookups run concurrently, so events must be re-sorted into
// chain order before folding; completion order must never affect the result.
func SortModifications(mods []*domain.LiquidityModification) {
	sort.Slice(mods, func(i, j int) bool {
		return compareModifications(mods[i], mods[j]) < 0
	})
}

// ValidateOrdering checks if events are properly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(mods []*domain.LiquidityModification) error {
	for i := 1; i < len(mods); i++ {
		if compareModifications(mods[i-1], mods[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareModifications returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block ASC, log_index ASC, tx_hash ASC)
func compareModifications(a, b *domain.LiquidityModification) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	if a.TxHash != b.TxHash {
		if a.TxHash < b.TxHash {
			return -1
		}
		return 1
	}
	return 0
}
