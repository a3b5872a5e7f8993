package chain

import (
	"context"
	"errors"
)

// ErrRemoteUnavailable is returned when the remote ledger cannot be reached
// or a call exhausted its retries. Callers fall back to locally cached state.
var ErrRemoteUnavailable = errors.New("remote ledger unavailable")

// Client defines the remote ledger JSON-RPC interface consumed by the
// reconciler. Implementations must report failures as errors wrapping
// ErrRemoteUnavailable rather than panicking.
type Client interface {
	// BlockNumber returns the current chain head height.
	BlockNumber(ctx context.Context) (int64, error)

	// GetLogs retrieves event logs matching the query, ordered by the
	// remote ledger (callers re-sort before folding).
	GetLogs(ctx context.Context, q LogQuery) ([]Log, error)

	// GetTransaction retrieves a transaction by hash. Returns nil if the
	// transaction is unknown to the remote ledger.
	GetTransaction(ctx context.Context, hash string) (*Transaction, error)
}

// LogQuery filters event logs by emitting contract, topics and height range.
type LogQuery struct {
	Address   string   // emitting contract
	Topics    []string // topic filter; empty string matches any at that slot
	FromBlock int64
	ToBlock   int64
}

// Log is one raw event log from the settlement layer.
type Log struct {
	Address     string
	Topics      []string
	Data        string // hex-encoded payload
	BlockNumber int64
	TxHash      string
	LogIndex    int
}

// Transaction is the subset of transaction fields needed for attribution.
type Transaction struct {
	Hash        string
	From        string
	To          string
	BlockNumber int64
}
