package market

import "context"

// Store is the persistence contract shared by the market services. Every
// state-changing operation runs inside WithTx; reads that decide whether an
// operation is legal happen on the transaction-scoped store, never before it.
//
// Locking contract for implementations:
//   - LockAccount serializes ledger appends per user for the rest of the
//     transaction (row lock, creating the account row if absent).
//   - GetListingForUpdate and GetBookingForUpdate lock the returned row.
//   - UpdateListingStatus and UpdateBookingStatus are compare-and-set on the
//     from-status and return ErrConflict when no row matched.
//   - InsertBooking returns ErrConflict when another active booking for the
//     same listing slipped in (partial unique index backstop).
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	LockAccount(ctx context.Context, userID UserID) error
	LatestEntry(ctx context.Context, userID UserID) (Entry, bool, error)
	FindEntryByIdempotencyKey(ctx context.Context, userID UserID, key IdempotencyKey) (Entry, bool, error)
	InsertEntry(ctx context.Context, entryInput EntryInput) (Entry, error)
	ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error)
	ListEntriesAscending(ctx context.Context, userID UserID) ([]Entry, error)

	InsertListing(ctx context.Context, listingInput ListingInput) (Listing, error)
	GetListing(ctx context.Context, listingID ListingID) (Listing, error)
	GetListingForUpdate(ctx context.Context, listingID ListingID) (Listing, error)
	UpdateListingStatus(ctx context.Context, listingID ListingID, from, to ListingStatus) error

	InsertBooking(ctx context.Context, bookingInput BookingInput) (Booking, error)
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	GetBookingForUpdate(ctx context.Context, bookingID BookingID) (Booking, error)
	ActiveBookingForListing(ctx context.Context, listingID ListingID) (Booking, bool, error)
	UpdateBookingStatus(ctx context.Context, bookingID BookingID, from, to BookingStatus, confirmedUnixUTC int64) error
	ListExpiredPendingBookings(ctx context.Context, nowUnixUTC int64, limit int) ([]Booking, error)
}
