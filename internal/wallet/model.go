package wallet

import "strings"

// Wallet is a balance record scoped to one owner and one currency.
// Timestamps are unix milliseconds.
type Wallet struct {
	Address      string `json:"address"`
	Balance      uint64 `json:"balance"`
	Currency     string `json:"currency"`
	CreatedAt    uint64 `json:"created_at"`
	LastActivity uint64 `json:"last_activity"`
	IsActive     bool   `json:"is_active"`
}

// BalanceResponse is the balance view of a wallet.
type BalanceResponse struct {
	Balance     uint64 `json:"balance"`
	Currency    string `json:"currency"`
	LastUpdated uint64 `json:"last_updated"`
}

// Info summarizes a wallet together with its owner's transaction count.
type Info struct {
	Address          string `json:"address"`
	Balance          uint64 `json:"balance"`
	Currency         string `json:"currency"`
	CreatedAt        uint64 `json:"created_at"`
	TransactionCount uint64 `json:"transaction_count"`
}

// NormalizeCurrency returns the canonical upper-case currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
