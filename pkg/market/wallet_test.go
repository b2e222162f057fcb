package market

import (
	"context"
	"errors"
	"testing"
)

func TestChargeForListingActionDebitsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "owner-1")
	listingID := mustListingID(test, "listing-1")
	store.seedBalance(test, userID, 100000)

	entry, err := wallet.ChargeForListingAction(context.Background(), userID, ActionListingCreateCharge, mustPositiveAmount(test, 30000), listingID)
	if err != nil {
		test.Fatalf("charge: %v", err)
	}
	if entry.AmountIn != 0 || entry.AmountOut != 30000 {
		test.Fatalf("expected debit of 30000, got in=%d out=%d", entry.AmountIn, entry.AmountOut)
	}
	if entry.BalanceBefore != 100000 || entry.BalanceAfter != 70000 {
		test.Fatalf("expected balance 100000 -> 70000, got %d -> %d", entry.BalanceBefore, entry.BalanceAfter)
	}
	if entry.Reference == nil || entry.Reference.Kind != ReferenceListing || entry.Reference.ID != listingID.String() {
		test.Fatalf("expected listing reference, got %+v", entry.Reference)
	}

	balance, err := wallet.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 70000 {
		test.Fatalf("expected balance 70000, got %d", balance)
	}
}

func TestChargeForListingActionInsufficientFunds(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "owner-poor")
	listingID := mustListingID(test, "listing-poor")
	store.seedBalance(test, userID, 500)

	_, err := wallet.ChargeForListingAction(context.Background(), userID, ActionLabelCharge, mustPositiveAmount(test, 1000), listingID)
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := len(store.entriesFor(userID)); got != 1 {
		test.Fatalf("expected only the seed entry, got %d entries", got)
	}
}

func TestChargeForListingActionRejectsNonChargeKind(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "owner-kind")
	store.seedBalance(test, userID, 1000)

	_, err := wallet.ChargeForListingAction(context.Background(), userID, ActionTopupCredit, mustPositiveAmount(test, 100), mustListingID(test, "listing-kind"))
	if !errors.Is(err, ErrInvalidActionKind) {
		test.Fatalf("expected ErrInvalidActionKind, got %v", err)
	}
}

func TestCreditTopupAppliesOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "topup-user")
	providerTxnID := mustIdempotencyKey(test, "provider-txn-42")
	amount := mustPositiveAmount(test, 5000)

	first, err := wallet.CreditTopup(context.Background(), userID, amount, providerTxnID)
	if err != nil {
		test.Fatalf("first topup: %v", err)
	}
	second, err := wallet.CreditTopup(context.Background(), userID, amount, providerTxnID)
	if err != nil {
		test.Fatalf("second topup: %v", err)
	}
	if got := len(store.entriesFor(userID)); got != 1 {
		test.Fatalf("expected exactly one topup entry, got %d", got)
	}
	if first.EntryID != second.EntryID {
		test.Fatalf("expected second topup to return the original entry, got %s and %s", first.EntryID, second.EntryID)
	}
	balance, err := wallet.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 5000 {
		test.Fatalf("expected balance 5000, got %d", balance)
	}
}

func TestBalanceWithoutEntriesIsZero(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)

	balance, err := wallet.Balance(context.Background(), mustUserID(test, "fresh-user"))
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected zero balance, got %d", balance)
	}
	if len(store.entries) != 0 {
		test.Fatalf("balance read must not create entries, got %d", len(store.entries))
	}
}

func TestWithdrawDebitsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "withdraw-user")
	store.seedBalance(test, userID, 8000)

	entry, err := wallet.Withdraw(context.Background(), userID, mustPositiveAmount(test, 3000))
	if err != nil {
		test.Fatalf("withdraw: %v", err)
	}
	if entry.Kind != ActionWithdrawalDebit {
		test.Fatalf("expected withdrawal entry, got %s", entry.Kind)
	}
	if entry.BalanceAfter != 5000 {
		test.Fatalf("expected balance after 5000, got %d", entry.BalanceAfter)
	}

	_, err = wallet.Withdraw(context.Background(), userID, mustPositiveAmount(test, 6000))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestEntriesReturnsNewestFirst(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "history-user")
	store.seedBalance(test, userID, 1000)
	store.seedBalance(test, userID, 2000)

	entries, err := wallet.Entries(context.Background(), userID, 0, 10)
	if err != nil {
		test.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].BalanceAfter != 3000 {
		test.Fatalf("expected newest entry first, got balance after %d", entries[0].BalanceAfter)
	}
}

func TestVerifyLedgerAcceptsValidChain(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "chain-user")
	store.seedBalance(test, userID, 10000)

	if _, err := wallet.Withdraw(context.Background(), userID, mustPositiveAmount(test, 4000)); err != nil {
		test.Fatalf("withdraw: %v", err)
	}
	if err := wallet.VerifyLedger(context.Background(), userID); err != nil {
		test.Fatalf("verify: %v", err)
	}
}

func TestVerifyLedgerDetectsBrokenChain(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{now: 100}
	wallet := mustWallet(test, store, clock)
	userID := mustUserID(test, "broken-user")
	store.seedBalance(test, userID, 10000)
	store.entries = append(store.entries, Entry{
		EntryID:        "forged",
		UserID:         userID,
		Kind:           ActionWithdrawalDebit,
		AmountOut:      100,
		BalanceBefore:  9000,
		BalanceAfter:   8900,
		IdempotencyKey: mustIdempotencyKey(test, "forged-key"),
		MetadataJSON:   emptyMetadata,
		CreatedUnixUTC: 2,
	})

	err := wallet.VerifyLedger(context.Background(), userID)
	if !errors.Is(err, ErrLedgerChainBroken) {
		test.Fatalf("expected ErrLedgerChainBroken, got %v", err)
	}
}

func TestNewWalletRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewWallet(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewWallet(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}
