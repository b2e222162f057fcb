package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Wallet exposes the balance-affecting operations over the ledger store.
// The ledger is append-only; the current balance is the BalanceAfter of the
// user's latest entry, never a mutable field.
type Wallet struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// WalletOption configures a Wallet instance.
type WalletOption func(*Wallet)

// WithWalletOperationLogger wires a logger that receives callbacks for every
// wallet operation.
func WithWalletOperationLogger(logger OperationLogger) WalletOption {
	return func(wallet *Wallet) {
		wallet.logger = logger
	}
}

// NewWallet wires a Wallet.
func NewWallet(store Store, now func() int64, options ...WalletOption) (*Wallet, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	wallet := &Wallet{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(wallet)
		}
	}
	return wallet, nil
}

// Balance returns the user's current balance. A user with no entries has a
// zero balance; the read never creates an entry.
func (wallet *Wallet) Balance(ctx context.Context, userID UserID) (AmountCents, error) {
	latest, found, err := wallet.store.LatestEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return latest.BalanceAfter, nil
}

// Entries lists ledger entries for a user before a cutoff time, newest first.
func (wallet *Wallet) Entries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	return wallet.store.ListEntries(ctx, userID, beforeUnixUTC, limit)
}

// ChargeForListingAction debits the user for a listing action (create, label,
// extension, repost). The caller owns any associated side effect and must
// invoke this through the same unit of work when there is one.
func (wallet *Wallet) ChargeForListingAction(ctx context.Context, userID UserID, kind ActionKind, amount PositiveAmountCents, listingID ListingID) (Entry, error) {
	var entry Entry
	operationError := wallet.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var err error
		entry, err = chargeForListingActionTx(ctx, txStore, userID, kind, amount, listingID, wallet.nowFn())
		return err
	})
	listingRef := listingID
	logOperation(ctx, wallet.logger, OperationLog{
		Operation: operationCharge,
		UserID:    userID,
		ListingID: &listingRef,
		Kind:      kind,
		Amount:    amount.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// chargeForListingActionTx is the transaction-scoped charge used by the
// listing flows that pair a charge with a status change.
func chargeForListingActionTx(ctx context.Context, txStore Store, userID UserID, kind ActionKind, amount PositiveAmountCents, listingID ListingID, nowUnixUTC int64) (Entry, error) {
	if !kind.IsListingCharge() {
		return Entry{}, fmt.Errorf("%w: %q is not a listing charge", ErrInvalidActionKind, kind)
	}
	key, err := NewIdempotencyKey(uuid.NewString())
	if err != nil {
		return Entry{}, err
	}
	return appendEntryTx(ctx, txStore, appendRequest{
		userID:         userID,
		kind:           kind,
		amount:         amount,
		reference:      ListingReference(listingID),
		idempotencyKey: key,
		metadata:       emptyMetadata,
		nowUnixUTC:     nowUnixUTC,
	})
}

// CreditTopup credits a payment-provider topup. The provider transaction id
// is the idempotency key: applying the same id twice produces exactly one
// entry, and the second call returns the original.
func (wallet *Wallet) CreditTopup(ctx context.Context, userID UserID, amount PositiveAmountCents, providerTxnID IdempotencyKey) (Entry, error) {
	key, err := NewIdempotencyKey(idempotencyPrefixTopup + providerTxnID.String())
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	operationError := wallet.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var txErr error
		entry, _, txErr = appendIdempotentTx(ctx, txStore, appendRequest{
			userID:         userID,
			kind:           ActionTopupCredit,
			amount:         amount,
			idempotencyKey: key,
			metadata:       emptyMetadata,
			nowUnixUTC:     wallet.nowFn(),
		})
		return txErr
	})
	logOperation(ctx, wallet.logger, OperationLog{
		Operation: operationTopup,
		UserID:    userID,
		Kind:      ActionTopupCredit,
		Amount:    amount.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// Withdraw debits funds leaving the platform.
func (wallet *Wallet) Withdraw(ctx context.Context, userID UserID, amount PositiveAmountCents) (Entry, error) {
	key, err := NewIdempotencyKey(uuid.NewString())
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	operationError := wallet.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var txErr error
		entry, txErr = appendEntryTx(ctx, txStore, appendRequest{
			userID:         userID,
			kind:           ActionWithdrawalDebit,
			amount:         amount,
			idempotencyKey: key,
			metadata:       emptyMetadata,
			nowUnixUTC:     wallet.nowFn(),
		})
		return txErr
	})
	logOperation(ctx, wallet.logger, OperationLog{
		Operation: operationWithdraw,
		UserID:    userID,
		Kind:      ActionWithdrawalDebit,
		Amount:    amount.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// VerifyLedger replays the user's entries oldest first and checks the chain:
// each entry's BalanceAfter equals BalanceBefore plus AmountIn minus
// AmountOut, never negative, and equals the next entry's BalanceBefore.
func (wallet *Wallet) VerifyLedger(ctx context.Context, userID UserID) error {
	entries, err := wallet.store.ListEntriesAscending(ctx, userID)
	if err != nil {
		return err
	}
	expectedBefore := AmountCents(0)
	for _, entry := range entries {
		if entry.BalanceBefore != expectedBefore {
			return fmt.Errorf("%w: entry %s balance-before %d, expected %d",
				ErrLedgerChainBroken, entry.EntryID, entry.BalanceBefore, expectedBefore)
		}
		computed := entry.BalanceBefore + entry.AmountIn - entry.AmountOut
		if entry.BalanceAfter != computed || entry.BalanceAfter < 0 {
			return fmt.Errorf("%w: entry %s balance-after %d, computed %d",
				ErrLedgerChainBroken, entry.EntryID, entry.BalanceAfter, computed)
		}
		expectedBefore = entry.BalanceAfter
	}
	return nil
}
