package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"perpsim/internal/domain"
)

// TransactionStore archives closed trades per contract.
type TransactionStore struct {
	pool     *pgxpool.Pool
	tickerID string
}

// NewTransactionStore creates a TransactionStore backed by the given
// connection pool, scoped to one contract.
func NewTransactionStore(pool *pgxpool.Pool, tickerID string) *TransactionStore {
	return &TransactionStore{pool: pool, tickerID: tickerID}
}

// Insert archives one closed trade. Re-inserting the same transaction id is
// silently skipped via ON CONFLICT DO NOTHING, so replays from the signal
// bus are safe.
func (s *TransactionStore) Insert(ctx context.Context, tx domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, ticker_id, side, amount,
			entry_price, exit_price, realized_pnl, close_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker_id, id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		int64(tx.ID), s.tickerID, string(tx.Side), tx.Amount,
		tx.EntryPrice, tx.ExitPrice, tx.RealizedPnL, tx.CloseTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction %d: %w", tx.ID, err)
	}
	return nil
}

// Recent returns the most recently closed trades, newest first.
func (s *TransactionStore) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	const query = `
		SELECT id, side, amount, entry_price, exit_price, realized_pnl, close_time
		FROM transactions
		WHERE ticker_id = $1
		ORDER BY close_time DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, s.tickerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactionRows(rows)
}

func scanTransactionRows(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx domain.Transaction
			id int64
		)
		if err := rows.Scan(
			&id, &tx.Side, &tx.Amount,
			&tx.EntryPrice, &tx.ExitPrice, &tx.RealizedPnL, &tx.CloseTime,
		); err != nil {
			return nil, err
		}
		tx.ID = uint64(id)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
