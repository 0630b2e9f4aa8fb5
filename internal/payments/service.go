package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qikhub/walletledger/internal/keys"
	"github.com/qikhub/walletledger/internal/ledger"
	"github.com/qikhub/walletledger/internal/notification"
	"github.com/qikhub/walletledger/internal/snapshot"
	"github.com/qikhub/walletledger/internal/txid"
	"github.com/qikhub/walletledger/internal/wallet"
)

var (
	// ErrSelfTransfer is returned when sender and receiver are the same owner.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")
	// ErrZeroAmount is returned for transfers and deposits of zero.
	ErrZeroAmount = errors.New("amount must be greater than 0")
	// ErrOwnerRequired is returned when the owner identity is empty.
	ErrOwnerRequired = fmt.Errorf("%w: owner is required", wallet.ErrInvalidInput)
	// ErrCurrencyRequired is returned when the currency code is empty.
	ErrCurrencyRequired = fmt.Errorf("%w: currency is required", wallet.ErrInvalidInput)
)

// Service is the ledger façade. It owns the wallet, transaction and key
// registries and runs every mutation under a single write lock, so the
// transfer protocol is atomic with respect to other mutations and queries
// never observe a half-applied transfer.
type Service struct {
	mu sync.RWMutex

	wallets *wallet.Registry
	ledger  *ledger.Ledger
	keys    *keys.Registry

	custodian keys.Custodian
	notifier  notification.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a ledger service with empty registries.
func NewService(deriver wallet.AddressDeriver, custodian keys.Custodian, notifier notification.Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		wallets:   wallet.NewRegistry(deriver),
		ledger:    ledger.New(),
		keys:      keys.NewRegistry(),
		custodian: custodian,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransferInput captures the data needed to move funds between owners.
type TransferInput struct {
	From     string
	To       string
	Amount   uint64
	Currency string
	Memo     string
}

func (s *Service) nowMillis() uint64 {
	return uint64(s.now().UnixMilli())
}

// CreateWallet opens a wallet for owner in currency and provisions the
// owner's key record. An owner holds a single key record, so a wallet in a
// second currency replaces the previous record.
func (s *Service) CreateWallet(_ context.Context, owner, currency string) (wallet.Wallet, error) {
	currency = wallet.NormalizeCurrency(currency)
	if strings.TrimSpace(owner) == "" {
		return wallet.Wallet{}, ErrOwnerRequired
	}
	if currency == "" {
		return wallet.Wallet{}, ErrCurrencyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallets.Exists(owner, currency) {
		return wallet.Wallet{}, wallet.ErrWalletExists
	}

	now := s.nowMillis()
	record, err := s.custodian.Provision(owner, now)
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("provision keys: %w", err)
	}

	w, err := s.wallets.Create(owner, currency, now)
	if err != nil {
		return wallet.Wallet{}, err
	}
	s.keys.Put(owner, record)

	s.logger.Info("wallet created", "owner", owner, "currency", currency, "address", w.Address)
	return w, nil
}

// Transfer moves amount from one owner to another and returns the
// transaction id. The transfer is recorded as pending, applied to both
// wallets, then confirmed.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (string, error) {
	input.Currency = wallet.NormalizeCurrency(input.Currency)
	if input.From == input.To {
		return "", ErrSelfTransfer
	}
	if input.Amount == 0 {
		return "", ErrZeroAmount
	}

	s.mu.Lock()
	tx, err := s.transferLocked(input)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("transfer rejected", "from", input.From, "to", input.To, "currency", input.Currency, "error", err)
		return "", err
	}

	s.logger.Info("transfer confirmed", "transaction_id", tx.ID, "from", tx.From, "to", tx.To, "amount", tx.Amount, "currency", tx.Currency)

	if s.notifier != nil {
		err := s.notifier.Send(ctx, notification.Message{
			Kind:          notification.KindTransferConfirmed,
			Destination:   tx.To,
			TransactionID: tx.ID,
			Body:          fmt.Sprintf("You received %d %s from %s", tx.Amount, tx.Currency, tx.From),
		})
		if err != nil {
			s.logger.Warn("transfer notification failed", "transaction_id", tx.ID, "error", err)
		}
	}

	return tx.ID, nil
}

func (s *Service) transferLocked(input TransferInput) (ledger.Transaction, error) {
	sender, err := s.wallets.Get(input.From, input.Currency)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("sender: %w", err)
	}
	if sender.Balance < input.Amount {
		return ledger.Transaction{}, wallet.ErrInsufficientFunds
	}
	if err := s.wallets.CanCredit(input.To, input.Currency, input.Amount); err != nil {
		return ledger.Transaction{}, err
	}

	now := s.nowMillis()
	tx := ledger.Transaction{
		ID:        txid.Generate(input.From, input.To, input.Amount, now),
		From:      input.From,
		To:        input.To,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Status:    ledger.StatusPending,
		Timestamp: now,
		Metadata:  map[string]string{},
	}
	if input.Memo != "" {
		tx.Metadata[ledger.MetadataMemo] = input.Memo
	}

	if err := s.ledger.Insert(tx); err != nil {
		return ledger.Transaction{}, err
	}
	if err := s.wallets.Debit(tx.From, tx.Currency, tx.Amount, now); err != nil {
		return ledger.Transaction{}, fmt.Errorf("debit sender: %w", err)
	}
	if err := s.wallets.Credit(tx.To, tx.Currency, tx.Amount, now); err != nil {
		return ledger.Transaction{}, fmt.Errorf("credit receiver: %w", err)
	}
	if err := s.ledger.SetStatus(tx.ID, ledger.StatusConfirmed); err != nil {
		return ledger.Transaction{}, err
	}
	tx.Status = ledger.StatusConfirmed
	return tx, nil
}

// Deposit credits an existing wallet with funds settled outside the ledger.
// No transaction record is written.
func (s *Service) Deposit(_ context.Context, owner, currency string, amount uint64) (wallet.BalanceResponse, error) {
	if amount == 0 {
		return wallet.BalanceResponse{}, ErrZeroAmount
	}
	currency = wallet.NormalizeCurrency(currency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.wallets.Get(owner, currency); err != nil {
		return wallet.BalanceResponse{}, err
	}
	if err := s.wallets.Credit(owner, currency, amount, s.nowMillis()); err != nil {
		return wallet.BalanceResponse{}, err
	}
	w, err := s.wallets.Get(owner, currency)
	if err != nil {
		return wallet.BalanceResponse{}, err
	}

	s.logger.Info("deposit applied", "owner", owner, "currency", currency, "amount", amount)
	return balanceOf(w), nil
}

func balanceOf(w wallet.Wallet) wallet.BalanceResponse {
	return wallet.BalanceResponse{Balance: w.Balance, Currency: w.Currency, LastUpdated: w.LastActivity}
}

// Balance returns the balance of owner's wallet in currency.
func (s *Service) Balance(_ context.Context, owner, currency string) (wallet.BalanceResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, err := s.wallets.Get(owner, currency)
	if err != nil {
		return wallet.BalanceResponse{}, err
	}
	return balanceOf(w), nil
}

// WalletInfo returns the wallet together with the owner's transaction count.
// The count spans every currency the owner transacts in.
func (s *Service) WalletInfo(_ context.Context, owner, currency string) (wallet.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, err := s.wallets.Get(owner, currency)
	if err != nil {
		return wallet.Info{}, err
	}
	return wallet.Info{
		Address:          w.Address,
		Balance:          w.Balance,
		Currency:         w.Currency,
		CreatedAt:        w.CreatedAt,
		TransactionCount: s.ledger.Count(owner),
	}, nil
}

// ListWallets returns every wallet held by owner.
func (s *Service) ListWallets(_ context.Context, owner string) []wallet.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallets.List(owner)
}

// GetTransaction returns the transaction with id.
func (s *Service) GetTransaction(_ context.Context, id string) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Get(id)
}

// UserTransactions returns owner's sent and received transactions, newest first.
func (s *Service) UserTransactions(_ context.Context, owner string) []ledger.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.History(owner)
}

// KeyRecord returns the key record held for owner.
func (s *Service) KeyRecord(_ context.Context, owner string) (keys.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys.Get(owner)
}

// Snapshot copies the full ledger state.
func (s *Service) Snapshot() snapshot.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, index := s.ledger.Snapshot()
	return snapshot.State{
		Version:      snapshot.Version,
		TakenAt:      s.now().UTC(),
		Wallets:      s.wallets.Snapshot(),
		Transactions: txs,
		OwnerIndex:   index,
		Keys:         s.keys.Snapshot(),
	}
}

// Restore replaces the ledger state with state.
func (s *Service) Restore(state snapshot.State) error {
	if state.Version > snapshot.Version {
		return fmt.Errorf("%w: %d", snapshot.ErrUnsupportedVersion, state.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets.Restore(state.Wallets)
	s.ledger.Restore(state.Transactions, state.OwnerIndex)
	s.keys.Restore(state.Keys)

	s.logger.Info("ledger state restored", "owners", len(state.Wallets), "transactions", len(state.Transactions), "taken_at", state.TakenAt)
	return nil
}

// Save writes a snapshot of the current state to store.
func (s *Service) Save(ctx context.Context, store snapshot.Store) error {
	state := s.Snapshot()
	if err := store.Save(ctx, state); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info("ledger state saved", "owners", len(state.Wallets), "transactions", len(state.Transactions))
	return nil
}

// Load restores the newest snapshot from store. A store with no snapshot
// leaves the service empty.
func (s *Service) Load(ctx context.Context, store snapshot.Store) error {
	state, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			s.logger.Info("no ledger snapshot found, starting empty")
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	return s.Restore(state)
}
