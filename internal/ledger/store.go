package ledger

import "sort"

// Ledger owns transaction records and the per-owner history index. It is
// not safe for concurrent use; the payments service serializes access.
type Ledger struct {
	transactions map[string]Transaction
	byOwner      map[string][]string
}

// New builds an empty ledger.
func New() *Ledger {
	return &Ledger{
		transactions: make(map[string]Transaction),
		byOwner:      make(map[string][]string),
	}
}

// Insert records tx and appends its id to the sender and receiver history.
func (l *Ledger) Insert(tx Transaction) error {
	if _, exists := l.transactions[tx.ID]; exists {
		return ErrDuplicateTransaction
	}
	l.transactions[tx.ID] = tx.clone()
	l.byOwner[tx.From] = append(l.byOwner[tx.From], tx.ID)
	l.byOwner[tx.To] = append(l.byOwner[tx.To], tx.ID)
	return nil
}

// SetStatus moves the transaction to status. Confirmed transactions are final.
func (l *Ledger) SetStatus(id string, status Status) error {
	tx, ok := l.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status == StatusConfirmed {
		return ErrImmutableTransaction
	}
	tx.Status = status
	l.transactions[id] = tx
	return nil
}

// SetTxHash attaches an external settlement hash.
func (l *Ledger) SetTxHash(id, hash string) error {
	tx, ok := l.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.TxHash = &hash
	l.transactions[id] = tx
	return nil
}

// SetMetadata sets a single metadata entry.
func (l *Ledger) SetMetadata(id, key, value string) error {
	tx, ok := l.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Metadata == nil {
		tx.Metadata = make(map[string]string)
	}
	tx.Metadata[key] = value
	l.transactions[id] = tx
	return nil
}

// Get returns a copy of the transaction with id.
func (l *Ledger) Get(id string) (Transaction, error) {
	tx, ok := l.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx.clone(), nil
}

// History returns owner's transactions, newest first.
func (l *Ledger) History(owner string) []Transaction {
	ids := l.byOwner[owner]
	out := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := l.transactions[id]; ok {
			out = append(out, tx.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Count returns the length of owner's history index across all currencies.
func (l *Ledger) Count(owner string) uint64 {
	return uint64(len(l.byOwner[owner]))
}

// Snapshot deep-copies the transactions and the per-owner index.
func (l *Ledger) Snapshot() (map[string]Transaction, map[string][]string) {
	txs := make(map[string]Transaction, len(l.transactions))
	for id, tx := range l.transactions {
		txs[id] = tx.clone()
	}
	index := make(map[string][]string, len(l.byOwner))
	for owner, ids := range l.byOwner {
		index[owner] = append([]string(nil), ids...)
	}
	return txs, index
}

// Restore replaces the ledger contents.
func (l *Ledger) Restore(txs map[string]Transaction, index map[string][]string) {
	l.transactions = make(map[string]Transaction, len(txs))
	for id, tx := range txs {
		l.transactions[id] = tx.clone()
	}
	l.byOwner = make(map[string][]string, len(index))
	for owner, ids := range index {
		l.byOwner[owner] = append([]string(nil), ids...)
	}
}
