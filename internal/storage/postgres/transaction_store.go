package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
// Details are stored as JSONB.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	record_id, tx_hash, tx_type, status, ts, chain_id, submitter, summary, details
`

// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
func (s *TransactionStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	query := `
		INSERT INTO transaction_records (
			record_id, tx_hash, tx_type, status, ts, chain_id, submitter, summary, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	details, err := encodeDetails(r.Details)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		r.Hash,
		r.Type,
		r.Status,
		r.Timestamp,
		r.ChainID,
		r.Submitter,
		r.Summary,
		details,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves the most recent record with the given transaction hash.
func (s *TransactionStore) GetByHash(ctx context.Context, hash string) (*domain.TransactionRecord, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transaction_records
		WHERE tx_hash = $1
		ORDER BY ts DESC, record_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, hash)
	r, err := scanTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by hash: %w", err)
	}
	return r, nil
}

// Update writes back a full record. Returns ErrNotFound if absent.
func (s *TransactionStore) Update(ctx context.Context, r *domain.TransactionRecord) error {
	query := `
		UPDATE transaction_records SET
			status = $2,
			summary = $3,
			details = $4
		WHERE record_id = $1
	`

	details, err := encodeDetails(r.Details)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, r.ID, r.Status, r.Summary, details)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteByID removes one record by id. Returns ErrNotFound if absent.
func (s *TransactionStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transaction_records WHERE record_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteByHash removes all records with the given hash.
func (s *TransactionStore) DeleteByHash(ctx context.Context, hash string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transaction_records WHERE tx_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("delete transaction by hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAll removes every record.
func (s *TransactionStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transaction_records`); err != nil {
		return fmt.Errorf("delete all transactions: %w", err)
	}
	return nil
}

// ListAll retrieves all records ordered by timestamp DESC (newest first).
func (s *TransactionStore) ListAll(ctx context.Context) ([]*domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transaction_records ORDER BY ts DESC, record_id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Count returns the number of stored records.
func (s *TransactionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transaction_records`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func encodeDetails(details map[string]string) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	return data, nil
}

// scanTransaction scans a single row into a TransactionRecord.
func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		r       domain.TransactionRecord
		details []byte
	)

	err := row.Scan(
		&r.ID,
		&r.Hash,
		&r.Type,
		&r.Status,
		&r.Timestamp,
		&r.ChainID,
		&r.Submitter,
		&r.Summary,
		&details,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	return &r, nil
}

// scanTransactions scans multiple rows into a slice of TransactionRecord.
func scanTransactions(rows pgx.Rows) ([]*domain.TransactionRecord, error) {
	var out []*domain.TransactionRecord

	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return out, nil
}
