package market

import "context"

// appendRequest carries everything needed to append one ledger entry.
type appendRequest struct {
	userID         UserID
	kind           ActionKind
	amount         PositiveAmountCents
	reference      *Reference
	idempotencyKey IdempotencyKey
	metadata       MetadataJSON
	nowUnixUTC     int64
}

// appendEntryTx is the single write path into the ledger. It must run on a
// transaction-scoped store: the account row lock serializes concurrent
// appends for the same user, so the balance-before read cannot go stale
// between the read and the insert. Debits that would drive the balance
// negative fail with ErrInsufficientFunds and leave no partial effect.
func appendEntryTx(ctx context.Context, txStore Store, request appendRequest) (Entry, error) {
	if err := txStore.LockAccount(ctx, request.userID); err != nil {
		return Entry{}, err
	}
	latest, found, err := txStore.LatestEntry(ctx, request.userID)
	if err != nil {
		return Entry{}, err
	}
	balanceBefore := AmountCents(0)
	if found {
		balanceBefore = latest.BalanceAfter
	}
	var amountIn, amountOut AmountCents
	if request.kind.IsCredit() {
		amountIn = request.amount.ToAmountCents()
	} else {
		amountOut = request.amount.ToAmountCents()
	}
	balanceAfter := balanceBefore + amountIn - amountOut
	if balanceAfter < 0 {
		return Entry{}, ErrInsufficientFunds
	}
	return txStore.InsertEntry(ctx, EntryInput{
		UserID:         request.userID,
		Kind:           request.kind,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		BalanceBefore:  balanceBefore,
		BalanceAfter:   balanceAfter,
		Reference:      request.reference,
		IdempotencyKey: request.idempotencyKey,
		MetadataJSON:   request.metadata,
		CreatedUnixUTC: request.nowUnixUTC,
	})
}

// appendIdempotentTx appends an entry unless one with the same idempotency
// key already exists, in which case the original entry is returned. The
// account lock taken by appendEntryTx also guards the lookup, and the unique
// (user_id, idempotency_key) index is the backstop for writers that never
// met on the lock.
func appendIdempotentTx(ctx context.Context, txStore Store, request appendRequest) (Entry, bool, error) {
	if err := txStore.LockAccount(ctx, request.userID); err != nil {
		return Entry{}, false, err
	}
	existing, found, err := txStore.FindEntryByIdempotencyKey(ctx, request.userID, request.idempotencyKey)
	if err != nil {
		return Entry{}, false, err
	}
	if found {
		return existing, true, nil
	}
	entry, err := appendEntryTx(ctx, txStore, request)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, false, nil
}
