package domain

import "math/big"

// StealthIdentity is a one-time receiving identity custodied by this client.
// The address is a deterministic one-way function of the private key; the
// settlement layer recognizes the identity by the same derivation.
type StealthIdentity struct {
	ID         string // deterministic SHA256 id, assigned at creation
	PrivateKey Secret // 32-byte secret scalar, never logged or serialized
	Address    string // base58 public identifier, unique across the store
	CreatedAt  int64  // Unix timestamp in milliseconds

	// Provenance of the swap that produced and funded this identity.
	SwapTxHash    string
	FundingTxHash string

	// Claim state. Once Claimed is true the record is terminal.
	Claimed          bool
	ClaimTxHash      string
	ClaimDestination string

	// Balances is the last observed snapshot, refreshed by an external
	// balance scanner. Nil until first observation.
	Balances *BalanceSnapshot
}

// BalanceSnapshot is the last-observed balance state of an identity.
type BalanceSnapshot struct {
	Native     *big.Int // settlement-layer native units
	Token      *big.Int // swap output token units
	ObservedAt int64    // Unix timestamp in milliseconds
}

// Clone returns a deep copy of the snapshot.
func (b *BalanceSnapshot) Clone() *BalanceSnapshot {
	if b == nil {
		return nil
	}
	out := &BalanceSnapshot{ObservedAt: b.ObservedAt}
	if b.Native != nil {
		out.Native = new(big.Int).Set(b.Native)
	}
	if b.Token != nil {
		out.Token = new(big.Int).Set(b.Token)
	}
	return out
}

// Clone returns a deep copy of the identity.
func (s *StealthIdentity) Clone() *StealthIdentity {
	if s == nil {
		return nil
	}
	out := *s
	out.Balances = s.Balances.Clone()
	return &out
}
