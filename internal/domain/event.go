package domain

import "math/big"

// LiquidityModification is a decoded liquidity-change event from the
// settlement-layer feed. Sender is the logged actor, typically the routing
// contract rather than the end user; attribution to a user requires looking
// up the originating transaction's sender.
type LiquidityModification struct {
	PoolID         string
	Sender         string   // logged actor (routing contract)
	TxSender       string   // originating transaction sender, set by attribution
	TickLower      int32
	TickUpper      int32
	Salt           string   // hex-encoded 32-byte salt
	LiquidityDelta *big.Int // signed; positive adds, negative removes
	TxHash         string
	BlockNumber    int64
	LogIndex       int
}

// Key returns the position key this modification applies to.
func (m *LiquidityModification) Key() PositionKey {
	return PositionKey{TickLower: m.TickLower, TickUpper: m.TickUpper, Salt: m.Salt}
}
