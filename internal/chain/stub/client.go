// Package stub provides an in-memory chain.Client for testing.
package stub

import (
	"context"
	"sync"

	"github.com/grimswap/grimledger/internal/chain"
)

// Client implements chain.Client for testing. Zero values behave like an
// empty chain; set Err fields to simulate remote failures.
type Client struct {
	mu sync.Mutex

	Height       int64
	Logs         []chain.Log
	Transactions map[string]*chain.Transaction

	// Per-call error injection.
	BlockNumberErr    error
	GetLogsErr        error
	GetTransactionErr map[string]error

	// Call counters for assertions.
	GetLogsCalls        int
	GetTransactionCalls int
}

// NewClient creates a new stub chain client.
func NewClient() *Client {
	return &Client{
		Transactions:      make(map[string]*chain.Transaction),
		GetTransactionErr: make(map[string]error),
	}
}

// BlockNumber returns the configured chain height.
func (c *Client) BlockNumber(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.BlockNumberErr != nil {
		return 0, c.BlockNumberErr
	}
	return c.Height, nil
}

// GetLogs returns configured logs filtered to the query's height window and
// topic filter. Like the real query, an empty string matches any topic at
// that slot.
func (c *Client) GetLogs(_ context.Context, q chain.LogQuery) ([]chain.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.GetLogsCalls++
	if c.GetLogsErr != nil {
		return nil, c.GetLogsErr
	}

	var out []chain.Log
	for _, l := range c.Logs {
		if l.BlockNumber < q.FromBlock || l.BlockNumber > q.ToBlock {
			continue
		}
		if !topicsMatch(l.Topics, q.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// topicsMatch reports whether a log's topics satisfy the query filter.
func topicsMatch(have, want []string) bool {
	for i, w := range want {
		if w == "" {
			continue
		}
		if i >= len(have) || have[i] != w {
			return false
		}
	}
	return true
}

// GetTransaction returns the configured transaction, nil if unknown.
func (c *Client) GetTransaction(_ context.Context, hash string) (*chain.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.GetTransactionCalls++
	if err, ok := c.GetTransactionErr[hash]; ok {
		return nil, err
	}

	tx, ok := c.Transactions[hash]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

// Compile-time interface check.
var _ chain.Client = (*Client)(nil)
