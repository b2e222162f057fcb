package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Listings coordinates listing visibility status. Moderation and owner flows
// go through the restricted transition table; the booking-derived statuses
// are only ever set by the booking lifecycle.
type Listings struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// ListingsOption configures a Listings instance.
type ListingsOption func(*Listings)

// WithListingsOperationLogger wires a logger that receives callbacks for
// every listing status change.
func WithListingsOperationLogger(logger OperationLogger) ListingsOption {
	return func(listings *Listings) {
		listings.logger = logger
	}
}

// NewListings wires a Listings service.
func NewListings(store Store, now func() int64, options ...ListingsOption) (*Listings, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	listings := &Listings{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(listings)
		}
	}
	return listings, nil
}

// Get returns a listing by id.
func (listings *Listings) Get(ctx context.Context, listingID ListingID) (Listing, error) {
	return listings.store.GetListing(ctx, listingID)
}

// Create charges the owner the posting fee and inserts the listing in
// pending, awaiting moderation, in one unit of work. A failed charge leaves
// no listing row behind.
func (listings *Listings) Create(ctx context.Context, ownerID UserID, createFee PositiveAmountCents) (Listing, error) {
	listingID, err := NewListingID(uuid.NewString())
	if err != nil {
		return Listing{}, err
	}
	var listing Listing
	operationError := listings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		nowUnixUTC := listings.nowFn()
		if _, err := chargeForListingActionTx(ctx, txStore, ownerID, ActionListingCreateCharge, createFee, listingID, nowUnixUTC); err != nil {
			return err
		}
		var err error
		listing, err = txStore.InsertListing(ctx, ListingInput{
			ListingID:      listingID,
			OwnerID:        ownerID,
			Status:         ListingPending,
			CreatedUnixUTC: nowUnixUTC,
		})
		return err
	})
	listingRef := listingID
	logOperation(ctx, listings.logger, OperationLog{
		Operation: operationCreateListing,
		UserID:    ownerID,
		ListingID: &listingRef,
		Kind:      ActionListingCreateCharge,
		Amount:    createFee.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Listing{}, operationError
	}
	return listing, nil
}

// Approve is the moderation approval shortcut.
func (listings *Listings) Approve(ctx context.Context, listingID ListingID) error {
	return listings.SetStatus(ctx, listingID, ListingApproved, CauseModeration)
}

// SetStatus applies a listing status change on behalf of a caller. Booking
// and booked may only be entered or left with cause booking-lifecycle;
// moderation may hide any listing unconditionally, force-canceling an active
// booking with a refund. Anything outside the table fails with
// ErrInvalidTransition and no effect.
func (listings *Listings) SetStatus(ctx context.Context, listingID ListingID, newStatus ListingStatus, cause StatusCause) error {
	var refund forcedRefund
	operationError := listings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if cause == CauseModeration && newStatus == ListingHidden {
			var err error
			refund, err = listings.forceHideTx(ctx, txStore, listingID)
			return err
		}
		listing, err := txStore.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if !allowedTransition(listing.Status, newStatus, cause) {
			return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, listing.Status, newStatus, cause)
		}
		return txStore.UpdateListingStatus(ctx, listingID, listing.Status, newStatus)
	})
	listingRef := listingID
	logOperation(ctx, listings.logger, refund.annotate(OperationLog{
		Operation: operationSetStatus,
		ListingID: &listingRef,
		Error:     operationError,
	}))
	return operationError
}

// ForceHide is the moderation entry point behind report resolution: the
// listing goes hidden regardless of its current status, and any active
// booking is force-canceled, because a hidden listing cannot legitimately
// hold a reservation. The guest is refunded unless the deposit was already
// released to the owner. Calling it on an already hidden listing is a no-op.
func (listings *Listings) ForceHide(ctx context.Context, listingID ListingID) error {
	var refund forcedRefund
	operationError := listings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var err error
		refund, err = listings.forceHideTx(ctx, txStore, listingID)
		return err
	})
	listingRef := listingID
	logOperation(ctx, listings.logger, refund.annotate(OperationLog{
		Operation: operationForceHide,
		ListingID: &listingRef,
		Error:     operationError,
	}))
	return operationError
}

// forcedRefund carries the guest refund a force-hide posted, if any, out of
// the transaction for operation logging.
type forcedRefund struct {
	userID UserID
	amount AmountCents
}

func (refund forcedRefund) annotate(entry OperationLog) OperationLog {
	if refund.userID.String() != "" {
		entry.UserID = refund.userID
		entry.Kind = ActionBookingRefund
		entry.Amount = refund.amount
	}
	return entry
}

func (listings *Listings) forceHideTx(ctx context.Context, txStore Store, listingID ListingID) (forcedRefund, error) {
	var refund forcedRefund
	listing, err := txStore.GetListingForUpdate(ctx, listingID)
	if err != nil {
		return refund, err
	}
	if listing.Status == ListingHidden {
		return refund, nil
	}
	active, hasActive, err := txStore.ActiveBookingForListing(ctx, listingID)
	if err != nil {
		return refund, err
	}
	nowUnixUTC := listings.nowFn()
	if hasActive {
		// A deposit already paid out to the owner stays with the owner; the
		// booking is only canceled, not refunded, or the deposit would be
		// paid twice.
		depositKey, err := NewIdempotencyKey(idempotencyPrefixDeposit + active.BookingID.String())
		if err != nil {
			return refund, err
		}
		_, released, err := txStore.FindEntryByIdempotencyKey(ctx, listing.OwnerID, depositKey)
		if err != nil {
			return refund, err
		}
		if !released {
			refundKey, err := NewIdempotencyKey(idempotencyPrefixRefund + active.BookingID.String())
			if err != nil {
				return refund, err
			}
			metadata, err := NewMetadataJSON(fmt.Sprintf(`{"initiator":%q}`, InitiatorModeration))
			if err != nil {
				return refund, err
			}
			if _, _, err := appendIdempotentTx(ctx, txStore, appendRequest{
				userID:         active.UserID,
				kind:           ActionBookingRefund,
				amount:         active.DepositCents,
				reference:      BookingReference(active.BookingID),
				idempotencyKey: refundKey,
				metadata:       metadata,
				nowUnixUTC:     nowUnixUTC,
			}); err != nil {
				return refund, err
			}
			refund = forcedRefund{userID: active.UserID, amount: active.DepositCents.ToAmountCents()}
		}
		if err := txStore.UpdateBookingStatus(ctx, active.BookingID, active.Status, BookingCanceled, 0); err != nil {
			return refund, err
		}
	}
	return refund, txStore.UpdateListingStatus(ctx, listingID, listing.Status, ListingHidden)
}

// Extend charges the owner the extension fee and republishes an expired
// listing without re-moderation.
func (listings *Listings) Extend(ctx context.Context, ownerID UserID, listingID ListingID, fee PositiveAmountCents) error {
	return listings.ownerCharge(ctx, ownerID, listingID, fee, ActionExtendCharge, ListingApproved, operationExtendListing)
}

// Repost charges the owner the repost fee and sends an expired listing back
// through moderation.
func (listings *Listings) Repost(ctx context.Context, ownerID UserID, listingID ListingID, fee PositiveAmountCents) error {
	return listings.ownerCharge(ctx, ownerID, listingID, fee, ActionRepostCharge, ListingPending, operationRepostListing)
}

func (listings *Listings) ownerCharge(ctx context.Context, ownerID UserID, listingID ListingID, fee PositiveAmountCents, kind ActionKind, target ListingStatus, operation string) error {
	operationError := listings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		listing, err := txStore.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.OwnerID != ownerID {
			return ErrNotListingOwner
		}
		if !allowedTransition(listing.Status, target, CauseOwnerAction) {
			return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, listing.Status, target, CauseOwnerAction)
		}
		if _, err := chargeForListingActionTx(ctx, txStore, ownerID, kind, fee, listingID, listings.nowFn()); err != nil {
			return err
		}
		return txStore.UpdateListingStatus(ctx, listingID, listing.Status, target)
	})
	listingRef := listingID
	logOperation(ctx, listings.logger, OperationLog{
		Operation: operation,
		UserID:    ownerID,
		ListingID: &listingRef,
		Kind:      kind,
		Amount:    fee.ToAmountCents(),
		Error:     operationError,
	})
	return operationError
}
