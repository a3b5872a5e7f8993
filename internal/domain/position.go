package domain

import (
	"fmt"
	"math/big"
)

// Position sources. Chain-derived positions are reconstructed from the event
// feed; local positions are optimistic writes made right after an
// add-liquidity action, before the feed confirms it.
const (
	PositionSourceChain = "chain"
	PositionSourceLocal = "local"
)

// PositionKey identifies a position within a pool. Salt disambiguates
// concurrent positions over the same tick range.
type PositionKey struct {
	TickLower int32
	TickUpper int32
	Salt      string // hex-encoded 32-byte salt
}

// String renders the key in a stable form usable as a map key or log field.
func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%d:%s", k.TickLower, k.TickUpper, k.Salt)
}

// LiquidityPosition is a net liquidity holding for a position key.
type LiquidityPosition struct {
	ID        string // deterministic SHA256 id
	PoolID    string // pool identifier on the settlement layer
	TickLower int32
	TickUpper int32
	Salt      string
	Liquidity *big.Int // invariant: >= 0; zero liquidity removes the position
	PoolKey   string   // encoded pool parameters, provenance only
	CreatedAt int64    // Unix timestamp in milliseconds
	TxHash    string   // transaction that created the position
	Source    string   // PositionSourceChain | PositionSourceLocal
}

// Key returns the position's identity within its pool.
func (p *LiquidityPosition) Key() PositionKey {
	return PositionKey{TickLower: p.TickLower, TickUpper: p.TickUpper, Salt: p.Salt}
}

// Clone returns a deep copy of the position.
func (p *LiquidityPosition) Clone() *LiquidityPosition {
	if p == nil {
		return nil
	}
	out := *p
	if p.Liquidity != nil {
		out.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	return &out
}
