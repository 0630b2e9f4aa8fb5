package payments

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/qikhub/walletledger/internal/address"
	"github.com/qikhub/walletledger/internal/keys"
	"github.com/qikhub/walletledger/internal/ledger"
	"github.com/qikhub/walletledger/internal/logging"
	"github.com/qikhub/walletledger/internal/notification"
	"github.com/qikhub/walletledger/internal/snapshot"
	"github.com/qikhub/walletledger/internal/wallet"
)

type testNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

type failingCustodian struct{}

func (failingCustodian) Provision(string, uint64) (keys.KeyRecord, error) {
	return keys.KeyRecord{}, errors.New("hsm offline")
}

// tickingClock advances one millisecond per call so every transfer gets a
// distinct timestamp.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestService(t *testing.T, notifier notification.Notifier) *Service {
	t.Helper()
	custodian, err := keys.NewEphemeralCustodian()
	if err != nil {
		t.Fatalf("custodian: %v", err)
	}
	clock := &tickingClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewService(address.New("test-service"), custodian, notifier, logging.Discard(), WithClock(clock.Now))
}

func mustCreate(t *testing.T, svc *Service, owner, currency string) wallet.Wallet {
	t.Helper()
	w, err := svc.CreateWallet(context.Background(), owner, currency)
	if err != nil {
		t.Fatalf("create wallet %s/%s: %v", owner, currency, err)
	}
	return w
}

func mustBalance(t *testing.T, svc *Service, owner, currency string) uint64 {
	t.Helper()
	b, err := svc.Balance(context.Background(), owner, currency)
	if err != nil {
		t.Fatalf("balance %s/%s: %v", owner, currency, err)
	}
	return b.Balance
}

func TestTransferExample(t *testing.T) {
	notifier := &testNotifier{}
	svc := newTestService(t, notifier)
	ctx := context.Background()

	a := mustCreate(t, svc, "alice", "ICP")
	if a.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", a.Balance)
	}
	mustCreate(t, svc, "bob", "ICP")

	if _, err := svc.Deposit(ctx, "alice", "ICP", 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 100, Currency: "ICP", Memo: "rent"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(id) != 64 {
		t.Fatalf("expected 64-char id, got %q", id)
	}

	if got := mustBalance(t, svc, "alice", "ICP"); got != 50 {
		t.Fatalf("expected alice balance 50, got %d", got)
	}
	if got := mustBalance(t, svc, "bob", "ICP"); got != 100 {
		t.Fatalf("expected bob balance 100, got %d", got)
	}

	tx, err := svc.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.Status != ledger.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", tx.Status)
	}
	if tx.Metadata[ledger.MetadataMemo] != "rent" {
		t.Fatalf("expected memo in metadata, got %v", tx.Metadata)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].Destination != "bob" || notifier.sent[0].TransactionID != id {
		t.Fatalf("expected one notification to bob, got %+v", notifier.sent)
	}
}

func TestCreateWalletDuplicateKeepsBalance(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	mustCreate(t, svc, "alice", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 40)

	if _, err := svc.CreateWallet(ctx, "alice", "icp"); !errors.Is(err, wallet.ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}
	if got := mustBalance(t, svc, "alice", "ICP"); got != 40 {
		t.Fatalf("duplicate create changed balance to %d", got)
	}
}

func TestCreateWalletValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateWallet(ctx, " ", "ICP"); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("expected ErrOwnerRequired, got %v", err)
	}
	if _, err := svc.CreateWallet(ctx, "alice", ""); !errors.Is(err, ErrCurrencyRequired) {
		t.Fatalf("expected ErrCurrencyRequired, got %v", err)
	}
	if _, err := svc.CreateWallet(ctx, "alice", "  "); !errors.Is(err, wallet.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateWalletCustodyFailureStoresNothing(t *testing.T) {
	svc := NewService(address.New("svc"), failingCustodian{}, nil, logging.Discard())
	ctx := context.Background()

	if _, err := svc.CreateWallet(ctx, "alice", "ICP"); err == nil {
		t.Fatalf("expected custody error")
	}
	if got := svc.ListWallets(ctx, "alice"); len(got) != 0 {
		t.Fatalf("expected no wallet after custody failure, got %+v", got)
	}
}

func TestKeyRecordOverwrittenPerOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	mustCreate(t, svc, "alice", "ICP")
	first, err := svc.KeyRecord(ctx, "alice")
	if err != nil {
		t.Fatalf("key record: %v", err)
	}
	mustCreate(t, svc, "alice", "BTC")
	second, _ := svc.KeyRecord(ctx, "alice")

	if first.PublicKey == second.PublicKey {
		t.Fatalf("expected second wallet to replace the owner's key record")
	}
	if second.DerivationPath != keys.DerivationPath {
		t.Fatalf("unexpected derivation path %s", second.DerivationPath)
	}
	if _, err := svc.KeyRecord(ctx, "nobody"); !errors.Is(err, keys.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 1_000)

	for _, amount := range []uint64{0, 1, 1_000, 5_000} {
		if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "alice", Amount: amount, Currency: "ICP"}); !errors.Is(err, ErrSelfTransfer) {
			t.Fatalf("amount %d: expected ErrSelfTransfer, got %v", amount, err)
		}
	}
}

func TestTransferZeroAmountRecordsNothing(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")

	if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 0, Currency: "ICP"}); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if got := svc.UserTransactions(ctx, "alice"); len(got) != 0 {
		t.Fatalf("expected no transaction record, got %+v", got)
	}
}

func TestTransferInsufficientFundsLeavesBalances(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 100)
	svc.Deposit(ctx, "bob", "ICP", 7)

	if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 101, Currency: "ICP"}); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if mustBalance(t, svc, "alice", "ICP") != 100 || mustBalance(t, svc, "bob", "ICP") != 7 {
		t.Fatalf("balances changed after rejected transfer")
	}
	if len(svc.UserTransactions(ctx, "alice")) != 0 {
		t.Fatalf("rejected transfer was recorded")
	}
}

func TestTransferSenderNotFoundVariants(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "bob", "ICP")

	_, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 1, Currency: "ICP"})
	if !errors.Is(err, wallet.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}

	mustCreate(t, svc, "alice", "BTC")
	_, err = svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 1, Currency: "ICP"})
	if !errors.Is(err, wallet.ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
}

func TestTransferReceiverWalletMissing(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "BTC")
	svc.Deposit(ctx, "alice", "ICP", 100)

	_, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 60, Currency: "ICP"})
	if !errors.Is(err, wallet.ErrReceiverWalletMissing) {
		t.Fatalf("expected ErrReceiverWalletMissing, got %v", err)
	}
	if got := mustBalance(t, svc, "alice", "ICP"); got != 100 {
		t.Fatalf("sender debited despite missing receiver: %d", got)
	}
	if len(svc.UserTransactions(ctx, "alice")) != 0 || len(svc.UserTransactions(ctx, "bob")) != 0 {
		t.Fatalf("transfer to missing wallet was recorded")
	}
}

func TestTransferCurrencyIsCaseInsensitive(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "icp")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "Icp", 10)

	id, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 10, Currency: "icp"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	tx, _ := svc.GetTransaction(ctx, id)
	if tx.Currency != "ICP" {
		t.Fatalf("expected normalized currency, got %s", tx.Currency)
	}
}

func TestTransferConservesBalances(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 1_000)
	svc.Deposit(ctx, "bob", "ICP", 500)

	amounts := []uint64{1, 250, 3, 400, 99}
	for i, amount := range amounts {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		beforeFrom := mustBalance(t, svc, from, "ICP")
		beforeTo := mustBalance(t, svc, to, "ICP")

		if _, err := svc.Transfer(ctx, TransferInput{From: from, To: to, Amount: amount, Currency: "ICP"}); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}

		afterFrom := mustBalance(t, svc, from, "ICP")
		afterTo := mustBalance(t, svc, to, "ICP")
		if afterFrom+amount != beforeFrom || afterTo != beforeTo+amount {
			t.Fatalf("transfer %d: balances %d->%d, %d->%d for amount %d", i, beforeFrom, afterFrom, beforeTo, afterTo, amount)
		}
	}
	if total := mustBalance(t, svc, "alice", "ICP") + mustBalance(t, svc, "bob", "ICP"); total != 1_500 {
		t.Fatalf("total not conserved: %d", total)
	}
}

func TestTransferDuplicateWithinSameMillisecond(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	custodian, _ := keys.NewEphemeralCustodian()
	svc := NewService(address.New("svc"), custodian, nil, logging.Discard(), WithClock(func() time.Time { return frozen }))
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 100)

	in := TransferInput{From: "alice", To: "bob", Amount: 10, Currency: "ICP"}
	if _, err := svc.Transfer(ctx, in); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if _, err := svc.Transfer(ctx, in); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if got := mustBalance(t, svc, "alice", "ICP"); got != 90 {
		t.Fatalf("replayed transfer was applied: %d", got)
	}
}

func TestUserTransactionsNewestFirstAndCount(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "alice", "BTC")
	mustCreate(t, svc, "bob", "ICP")
	mustCreate(t, svc, "bob", "BTC")
	svc.Deposit(ctx, "alice", "ICP", 100)
	svc.Deposit(ctx, "bob", "BTC", 100)

	var ids []string
	for _, in := range []TransferInput{
		{From: "alice", To: "bob", Amount: 1, Currency: "ICP"},
		{From: "bob", To: "alice", Amount: 2, Currency: "BTC"},
		{From: "alice", To: "bob", Amount: 3, Currency: "ICP"},
	} {
		id, err := svc.Transfer(ctx, in)
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		ids = append(ids, id)
	}

	history := svc.UserTransactions(ctx, "alice")
	if len(history) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(history))
	}
	for i := range history {
		if history[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[len(ids)-1-i], history[i].ID)
		}
		if i > 0 && history[i-1].Timestamp < history[i].Timestamp {
			t.Fatalf("history not sorted newest first")
		}
	}

	// The count spans all currencies, not only the queried one.
	info, err := svc.WalletInfo(ctx, "alice", "ICP")
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.TransactionCount != 3 {
		t.Fatalf("expected transaction count 3, got %d", info.TransactionCount)
	}
	if info.Balance != 96 || info.Currency != "ICP" || info.Address == "" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestQueriesForUnknownOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if got := svc.ListWallets(ctx, "ghost"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty wallet list, got %v", got)
	}
	if got := svc.UserTransactions(ctx, "ghost"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
	if _, err := svc.Balance(ctx, "ghost", "ICP"); !errors.Is(err, wallet.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if _, err := svc.WalletInfo(ctx, "ghost", "ICP"); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetTransaction(ctx, "nope"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestDepositRejectsBalanceOverflow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")

	if _, err := svc.Deposit(ctx, "alice", "ICP", math.MaxUint64); err != nil {
		t.Fatalf("deposit to max: %v", err)
	}
	if _, err := svc.Deposit(ctx, "alice", "ICP", 2); !errors.Is(err, wallet.ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if got := mustBalance(t, svc, "alice", "ICP"); got != math.MaxUint64 {
		t.Fatalf("balance wrapped to %d", got)
	}
}

func TestTransferRejectsReceiverOverflow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 10)
	svc.Deposit(ctx, "bob", "ICP", math.MaxUint64)

	_, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 10, Currency: "ICP"})
	if !errors.Is(err, wallet.ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if mustBalance(t, svc, "alice", "ICP") != 10 || mustBalance(t, svc, "bob", "ICP") != math.MaxUint64 {
		t.Fatalf("balances changed after rejected transfer")
	}
	if len(svc.UserTransactions(ctx, "alice")) != 0 || len(svc.UserTransactions(ctx, "bob")) != 0 {
		t.Fatalf("overflowing transfer was recorded")
	}
}

func TestDepositValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")

	if _, err := svc.Deposit(ctx, "alice", "ICP", 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, "alice", "ETH", 5); !errors.Is(err, wallet.ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
	b, err := svc.Deposit(ctx, "alice", "icp", 5)
	if err != nil || b.Balance != 5 || b.Currency != "ICP" {
		t.Fatalf("unexpected deposit result %+v, err %v", b, err)
	}
}

func TestNotificationFailureDoesNotFailTransfer(t *testing.T) {
	svc := newTestService(t, &testNotifier{err: errors.New("broker down")})
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 10)

	if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 10, Currency: "ICP"}); err != nil {
		t.Fatalf("transfer failed on notification error: %v", err)
	}
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 1_000)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 100, Currency: "ICP"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, wallet.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected 10 successful transfers, got %d", succeeded)
	}
	if mustBalance(t, svc, "alice", "ICP") != 0 || mustBalance(t, svc, "bob", "ICP") != 1_000 {
		t.Fatalf("ledger not balanced after concurrency")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	mustCreate(t, svc, "alice", "ICP")
	mustCreate(t, svc, "bob", "ICP")
	svc.Deposit(ctx, "alice", "ICP", 150)
	id, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 100, Currency: "ICP", Memo: "m"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	store := snapshot.NewMemoryStore()
	if err := svc.Save(ctx, store); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := newTestService(t, nil)
	if err := restored.Load(ctx, store); err != nil {
		t.Fatalf("load: %v", err)
	}

	if mustBalance(t, restored, "alice", "ICP") != 50 || mustBalance(t, restored, "bob", "ICP") != 100 {
		t.Fatalf("balances not restored")
	}
	tx, err := restored.GetTransaction(ctx, id)
	if err != nil || tx.Status != ledger.StatusConfirmed || tx.Metadata[ledger.MetadataMemo] != "m" {
		t.Fatalf("transaction not restored: %+v, err %v", tx, err)
	}
	if len(restored.UserTransactions(ctx, "bob")) != 1 {
		t.Fatalf("owner index not restored")
	}
	original, _ := svc.KeyRecord(ctx, "alice")
	copied, err := restored.KeyRecord(ctx, "alice")
	if err != nil || copied != original {
		t.Fatalf("key record not restored: %+v, err %v", copied, err)
	}
	if _, err := restored.CreateWallet(ctx, "alice", "ICP"); !errors.Is(err, wallet.ErrWalletExists) {
		t.Fatalf("restored registry lost wallet uniqueness: %v", err)
	}
}

func TestLoadWithoutSnapshotStartsEmpty(t *testing.T) {
	svc := newTestService(t, nil)
	if err := svc.Load(context.Background(), snapshot.NewMemoryStore()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(svc.ListWallets(context.Background(), "alice")) != 0 {
		t.Fatalf("expected empty state")
	}
}

func TestRestoreRejectsNewerVersion(t *testing.T) {
	svc := newTestService(t, nil)
	if err := svc.Restore(snapshot.State{Version: snapshot.Version + 1}); !errors.Is(err, snapshot.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}
