package wallet

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrWalletExists is returned when the owner already holds a wallet in the currency.
	ErrWalletExists = errors.New("wallet already exists for this currency")
	// ErrNotFound is the parent of both not-found variants.
	ErrNotFound = errors.New("wallet not found")
	// ErrOwnerNotFound means the owner holds no wallets at all.
	ErrOwnerNotFound = fmt.Errorf("%w: no wallets found for owner", ErrNotFound)
	// ErrCurrencyNotFound means the owner holds wallets, but not in this currency.
	ErrCurrencyNotFound = fmt.Errorf("%w: no wallet for currency", ErrNotFound)
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrReceiverWalletMissing is returned when crediting a wallet that does not exist.
	ErrReceiverWalletMissing = errors.New("receiver wallet missing for currency")
	// ErrBalanceOverflow is returned when a credit would exceed the largest representable balance.
	ErrBalanceOverflow = errors.New("credit would overflow wallet balance")
	// ErrInvalidInput is the parent of request validation failures such as a blank owner.
	ErrInvalidInput = errors.New("invalid input")
)

// AddressDeriver derives wallet addresses.
type AddressDeriver interface {
	Derive(owner, currency string) string
}

// Registry owns wallets keyed by owner then currency. It is not safe for
// concurrent use; the payments service serializes access.
type Registry struct {
	deriver AddressDeriver
	wallets map[string]map[string]Wallet
}

// NewRegistry builds an empty registry that derives addresses with deriver.
func NewRegistry(deriver AddressDeriver) *Registry {
	return &Registry{deriver: deriver, wallets: make(map[string]map[string]Wallet)}
}

// Create opens a zero-balance wallet for owner in currency.
func (r *Registry) Create(owner, currency string, now uint64) (Wallet, error) {
	currency = NormalizeCurrency(currency)
	if r.Exists(owner, currency) {
		return Wallet{}, ErrWalletExists
	}

	w := Wallet{
		Address:      r.deriver.Derive(owner, currency),
		Currency:     currency,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}

	owned, ok := r.wallets[owner]
	if !ok {
		owned = make(map[string]Wallet)
		r.wallets[owner] = owned
	}
	owned[currency] = w
	return w, nil
}

// Exists reports whether owner holds a wallet in currency.
func (r *Registry) Exists(owner, currency string) bool {
	_, ok := r.wallets[owner][NormalizeCurrency(currency)]
	return ok
}

// Get returns a copy of owner's wallet in currency.
func (r *Registry) Get(owner, currency string) (Wallet, error) {
	owned, ok := r.wallets[owner]
	if !ok || len(owned) == 0 {
		return Wallet{}, ErrOwnerNotFound
	}
	w, ok := owned[NormalizeCurrency(currency)]
	if !ok {
		return Wallet{}, ErrCurrencyNotFound
	}
	return w, nil
}

// List returns owner's wallets ordered by currency code.
func (r *Registry) List(owner string) []Wallet {
	owned := r.wallets[owner]
	out := make([]Wallet, 0, len(owned))
	for _, w := range owned {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Debit removes amount from owner's wallet. The caller must have checked
// that the wallet exists.
func (r *Registry) Debit(owner, currency string, amount, now uint64) error {
	currency = NormalizeCurrency(currency)
	w, err := r.Get(owner, currency)
	if err != nil {
		return err
	}
	if w.Balance < amount {
		return ErrInsufficientFunds
	}
	w.Balance -= amount
	w.LastActivity = now
	r.wallets[owner][currency] = w
	return nil
}

// CanCredit reports whether Credit would succeed without applying it.
func (r *Registry) CanCredit(owner, currency string, amount uint64) error {
	w, ok := r.wallets[owner][NormalizeCurrency(currency)]
	if !ok {
		return ErrReceiverWalletMissing
	}
	if w.Balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return nil
}

// Credit adds amount to owner's wallet. A credit that would wrap the balance
// is rejected and leaves the wallet untouched.
func (r *Registry) Credit(owner, currency string, amount, now uint64) error {
	currency = NormalizeCurrency(currency)
	if err := r.CanCredit(owner, currency, amount); err != nil {
		return err
	}
	w := r.wallets[owner][currency]
	w.Balance += amount
	w.LastActivity = now
	r.wallets[owner][currency] = w
	return nil
}

// Snapshot deep-copies every wallet.
func (r *Registry) Snapshot() map[string]map[string]Wallet {
	out := make(map[string]map[string]Wallet, len(r.wallets))
	for owner, owned := range r.wallets {
		cp := make(map[string]Wallet, len(owned))
		for currency, w := range owned {
			cp[currency] = w
		}
		out[owner] = cp
	}
	return out
}

// Restore replaces the registry contents with wallets.
func (r *Registry) Restore(wallets map[string]map[string]Wallet) {
	r.wallets = make(map[string]map[string]Wallet, len(wallets))
	for owner, owned := range wallets {
		cp := make(map[string]Wallet, len(owned))
		for currency, w := range owned {
			cp[currency] = w
		}
		r.wallets[owner] = cp
	}
}
