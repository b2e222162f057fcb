package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Bookings is the reservation state machine. Every transition couples a
// booking row change, its ledger effect, and the listing status flip into a
// single unit of work.
type Bookings struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// BookingsOption configures a Bookings instance.
type BookingsOption func(*Bookings)

// WithBookingsOperationLogger wires a logger that receives callbacks for
// every booking transition.
func WithBookingsOperationLogger(logger OperationLogger) BookingsOption {
	return func(bookings *Bookings) {
		bookings.logger = logger
	}
}

// NewBookings wires a Bookings service.
func NewBookings(store Store, now func() int64, options ...BookingsOption) (*Bookings, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	bookings := &Bookings{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(bookings)
		}
	}
	return bookings, nil
}

// Get returns a booking by id.
func (bookings *Bookings) Get(ctx context.Context, bookingID BookingID) (Booking, error) {
	return bookings.store.GetBooking(ctx, bookingID)
}

// Create places a deposit hold against a listing. The listing row lock
// serializes competing creates: the loser observes either the winner's
// active booking or its listing status and fails with ErrListingNotAvailable.
// If the hold charge fails, no booking row is written and the listing status
// is untouched.
func (bookings *Bookings) Create(ctx context.Context, listingID ListingID, userID UserID, deposit PositiveAmountCents, holdSeconds int64) (Booking, error) {
	if holdSeconds <= 0 {
		return Booking{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidHoldDuration)
	}
	bookingID, err := NewBookingID(uuid.NewString())
	if err != nil {
		return Booking{}, err
	}
	var booking Booking
	operationError := bookings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		listing, err := txStore.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != ListingApproved {
			return ErrListingNotAvailable
		}
		if _, hasActive, err := txStore.ActiveBookingForListing(ctx, listingID); err != nil {
			return err
		} else if hasActive {
			return ErrListingNotAvailable
		}
		nowUnixUTC := bookings.nowFn()
		holdKey, err := NewIdempotencyKey(idempotencyPrefixHold + bookingID.String())
		if err != nil {
			return err
		}
		if _, err := appendEntryTx(ctx, txStore, appendRequest{
			userID:         userID,
			kind:           ActionBookingHold,
			amount:         deposit,
			reference:      BookingReference(bookingID),
			idempotencyKey: holdKey,
			metadata:       emptyMetadata,
			nowUnixUTC:     nowUnixUTC,
		}); err != nil {
			return err
		}
		booking, err = txStore.InsertBooking(ctx, BookingInput{
			BookingID:      bookingID,
			ListingID:      listingID,
			UserID:         userID,
			DepositCents:   deposit,
			Status:         BookingPending,
			CreatedUnixUTC: nowUnixUTC,
			ExpiresUnixUTC: nowUnixUTC + holdSeconds,
		})
		if err != nil {
			return err
		}
		return txStore.UpdateListingStatus(ctx, listingID, ListingApproved, ListingBooking)
	})
	listingRef := listingID
	bookingRef := bookingID
	logOperation(ctx, bookings.logger, OperationLog{
		Operation: operationCreateBooking,
		UserID:    userID,
		ListingID: &listingRef,
		BookingID: &bookingRef,
		Kind:      ActionBookingHold,
		Amount:    deposit.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	return booking, nil
}

// Confirm moves a pending booking to confirmed before its expiry. The hold
// already happened, so confirmation has no ledger effect of its own.
func (bookings *Bookings) Confirm(ctx context.Context, bookingID BookingID) (Booking, error) {
	var booking Booking
	operationError := bookings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Status != BookingPending {
			return ErrInvalidState
		}
		nowUnixUTC := bookings.nowFn()
		if current.ExpiresUnixUTC <= nowUnixUTC {
			return ErrBookingExpired
		}
		if err := txStore.UpdateBookingStatus(ctx, bookingID, BookingPending, BookingConfirmed, nowUnixUTC); err != nil {
			return err
		}
		if err := txStore.UpdateListingStatus(ctx, current.ListingID, ListingBooking, ListingBooked); err != nil {
			return err
		}
		booking = current
		booking.Status = BookingConfirmed
		booking.ConfirmedUnixUTC = nowUnixUTC
		return nil
	})
	bookingRef := bookingID
	logOperation(ctx, bookings.logger, OperationLog{
		Operation: operationConfirmBooking,
		UserID:    booking.UserID,
		BookingID: &bookingRef,
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	return booking, nil
}

// Cancel aborts a pending booking, refunding the deposit.
func (bookings *Bookings) Cancel(ctx context.Context, bookingID BookingID, initiator Initiator) (Booking, error) {
	var booking Booking
	operationError := bookings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Status != BookingPending {
			return ErrInvalidState
		}
		if err := settleBookingTx(ctx, txStore, current, BookingCanceled, initiator, bookings.nowFn()); err != nil {
			return err
		}
		booking = current
		booking.Status = BookingCanceled
		return nil
	})
	bookingRef := bookingID
	logOperation(ctx, bookings.logger, OperationLog{
		Operation: operationCancelBooking,
		UserID:    booking.UserID,
		BookingID: &bookingRef,
		Kind:      ActionBookingRefund,
		Amount:    booking.DepositCents.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	return booking, nil
}

// ReleaseDeposit pays a confirmed booking's deposit out to the listing
// owner. Idempotent per booking: the deposit-receive entry is keyed on the
// booking id, so a second call returns the original entry.
func (bookings *Bookings) ReleaseDeposit(ctx context.Context, bookingID BookingID) (Entry, error) {
	var entry Entry
	var ownerID UserID
	operationError := bookings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		booking, err := txStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != BookingConfirmed {
			return ErrInvalidState
		}
		listing, err := txStore.GetListing(ctx, booking.ListingID)
		if err != nil {
			return err
		}
		ownerID = listing.OwnerID
		depositKey, err := NewIdempotencyKey(idempotencyPrefixDeposit + bookingID.String())
		if err != nil {
			return err
		}
		entry, _, err = appendIdempotentTx(ctx, txStore, appendRequest{
			userID:         ownerID,
			kind:           ActionDepositReceive,
			amount:         booking.DepositCents,
			reference:      BookingReference(bookingID),
			idempotencyKey: depositKey,
			metadata:       emptyMetadata,
			nowUnixUTC:     bookings.nowFn(),
		})
		return err
	})
	bookingRef := bookingID
	logOperation(ctx, bookings.logger, OperationLog{
		Operation: operationReleaseDeposit,
		UserID:    ownerID,
		BookingID: &bookingRef,
		Kind:      ActionDepositReceive,
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// ExpireSweep expires every pending booking whose hold deadline has passed.
// Each booking is processed in its own unit of work so one failure does not
// block the rest, and re-running the sweep is a no-op for bookings already
// moved out of pending. Returns the number of bookings expired.
func (bookings *Bookings) ExpireSweep(ctx context.Context, nowUnixUTC int64) (int, error) {
	stale, err := bookings.store.ListExpiredPendingBookings(ctx, nowUnixUTC, defaultSweepBatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, candidate := range stale {
		expired := false
		sweepError := bookings.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			current, err := txStore.GetBookingForUpdate(ctx, candidate.BookingID)
			if err != nil {
				return err
			}
			// Another sweep or a confirm won the race; skip cleanly.
			if current.Status != BookingPending || current.ExpiresUnixUTC > nowUnixUTC {
				return nil
			}
			if err := settleBookingTx(ctx, txStore, current, BookingExpired, "", bookings.nowFn()); err != nil {
				return err
			}
			expired = true
			return nil
		})
		if sweepError == nil && expired {
			processed++
		}
		if sweepError != nil || expired {
			bookingRef := candidate.BookingID
			logOperation(ctx, bookings.logger, OperationLog{
				Operation: operationExpireSweep,
				UserID:    candidate.UserID,
				BookingID: &bookingRef,
				Kind:      ActionBookingRefund,
				Amount:    candidate.DepositCents.ToAmountCents(),
				Error:     sweepError,
			})
		}
	}
	return processed, nil
}

// settleBookingTx releases a hold: it posts the refund entry, moves the
// booking from pending to its terminal status, and reverts the listing to
// approved. The refund entry is keyed on the booking id, so a competing
// settle of the same booking cannot double-refund.
func settleBookingTx(ctx context.Context, txStore Store, booking Booking, terminal BookingStatus, initiator Initiator, nowUnixUTC int64) error {
	refundKey, err := NewIdempotencyKey(idempotencyPrefixRefund + booking.BookingID.String())
	if err != nil {
		return err
	}
	metadata := emptyMetadata
	if initiator != "" {
		metadata, err = NewMetadataJSON(fmt.Sprintf(`{"initiator":%q}`, initiator))
		if err != nil {
			return err
		}
	}
	if _, err := appendEntryTx(ctx, txStore, appendRequest{
		userID:         booking.UserID,
		kind:           ActionBookingRefund,
		amount:         booking.DepositCents,
		reference:      BookingReference(booking.BookingID),
		idempotencyKey: refundKey,
		metadata:       metadata,
		nowUnixUTC:     nowUnixUTC,
	}); err != nil {
		return err
	}
	if err := txStore.UpdateBookingStatus(ctx, booking.BookingID, booking.Status, terminal, 0); err != nil {
		return err
	}
	return txStore.UpdateListingStatus(ctx, booking.ListingID, ListingBooking, ListingApproved)
}
