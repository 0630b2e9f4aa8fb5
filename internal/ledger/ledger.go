package ledger

import "errors"

var (
	// ErrTransactionNotFound is returned when no transaction has the given id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction indicates a transaction with the same id is
	// already recorded. Ids are derived from the transfer inputs, so this
	// happens when the same transfer is replayed within one millisecond.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrImmutableTransaction is returned when changing the status of a
	// confirmed transaction.
	ErrImmutableTransaction = errors.New("confirmed transaction is immutable")
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	// StatusFailed and StatusCancelled are reserved for an external
	// settlement step; nothing in the transfer protocol produces them.
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// MetadataMemo is the metadata key holding the optional transfer memo.
const MetadataMemo = "memo"

// Transaction records a balance movement between two owners.
type Transaction struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Amount    uint64            `json:"amount"`
	Currency  string            `json:"currency"`
	Status    Status            `json:"status"`
	Timestamp uint64            `json:"timestamp"`
	TxHash    *string           `json:"tx_hash,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

func (t Transaction) clone() Transaction {
	cp := t
	if t.TxHash != nil {
		h := *t.TxHash
		cp.TxHash = &h
	}
	cp.Metadata = make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}
