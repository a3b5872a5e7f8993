package domain

// Transaction types submitted by the swap application.
const (
	TxTypeSwap            = "swap"
	TxTypeApprove         = "approve"
	TxTypeAddLiquidity    = "addLiquidity"
	TxTypeRemoveLiquidity = "removeLiquidity"
	TxTypeWithdraw        = "withdraw"
)

// Transaction lifecycle states. Pending is initial; confirmed and failed are
// terminal, with no transition out of a terminal state.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// TerminalStatus reports whether status permits no further transition.
func TerminalStatus(status string) bool {
	return status == TxStatusConfirmed || status == TxStatusFailed
}

// ValidTxType reports whether t is a known transaction type.
func ValidTxType(t string) bool {
	switch t {
	case TxTypeSwap, TxTypeApprove, TxTypeAddLiquidity, TxTypeRemoveLiquidity, TxTypeWithdraw:
		return true
	}
	return false
}

// TransactionRecord is one entry in the bounded local transaction ledger.
type TransactionRecord struct {
	ID        string // deterministic SHA256 id, assigned on append
	Hash      string // settlement-layer transaction hash
	Type      string // TxType* constant
	Status    string // TxStatus* constant
	Timestamp int64  // Unix timestamp in milliseconds, assigned on append
	ChainID   int64
	Submitter string // submitting address, compared case-insensitively
	Summary   string // short human-readable description
	Details   map[string]string
}

// Clone returns a deep copy of the record.
func (r *TransactionRecord) Clone() *TransactionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Details != nil {
		out.Details = make(map[string]string, len(r.Details))
		for k, v := range r.Details {
			out.Details[k] = v
		}
	}
	return &out
}
