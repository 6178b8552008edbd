package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// TransactionLog is the append-only record of closed trades, newest first.
type TransactionLog struct {
	txs []domain.Transaction
	now func() time.Time
}

// NewTransactionLog creates an empty log.
func NewTransactionLog() *TransactionLog {
	return &TransactionLog{now: time.Now}
}

// Append prepends a transaction so All returns reverse-chronological order.
func (l *TransactionLog) Append(tx domain.Transaction) {
	l.txs = append([]domain.Transaction{tx}, l.txs...)
}

// All returns a copy of every transaction, newest first.
func (l *TransactionLog) All() []domain.Transaction {
	out := make([]domain.Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// Since returns the transactions whose close time falls within the trailing
// window. The reference time is sampled once per call so the result is a
// consistent snapshot.
func (l *TransactionLog) Since(window time.Duration) []domain.Transaction {
	now := l.now()
	var out []domain.Transaction
	for _, tx := range l.txs {
		if now.Sub(tx.CloseTime) < window {
			out = append(out, tx)
		}
	}
	return out
}

// VolumeSince sums the traded amount over Since(window).
func (l *TransactionLog) VolumeSince(window time.Duration) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range l.Since(window) {
		total = total.Add(tx.Amount)
	}
	return total
}
