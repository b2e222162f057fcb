package market

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store. WithTx runs the callback against the same
// instance, matching the rebinding contract of the real implementation.
type stubStore struct {
	entries  []Entry
	listings map[ListingID]Listing
	bookings map[BookingID]Booking

	insertEntryErr   error
	insertBookingErr error
	bookingLockErr   map[BookingID]error
	commitErr        error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		listings:       make(map[ListingID]Listing),
		bookings:       make(map[BookingID]Booking),
		bookingLockErr: make(map[BookingID]error),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	if store.commitErr != nil {
		store.restore(snapshot)
		return store.commitErr
	}
	return nil
}

type stubSnapshot struct {
	entries  []Entry
	listings map[ListingID]Listing
	bookings map[BookingID]Booking
}

func (store *stubStore) snapshot() stubSnapshot {
	snapshot := stubSnapshot{
		entries:  append([]Entry(nil), store.entries...),
		listings: make(map[ListingID]Listing, len(store.listings)),
		bookings: make(map[BookingID]Booking, len(store.bookings)),
	}
	for listingID, listing := range store.listings {
		snapshot.listings[listingID] = listing
	}
	for bookingID, booking := range store.bookings {
		snapshot.bookings[bookingID] = booking
	}
	return snapshot
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.entries = snapshot.entries
	store.listings = snapshot.listings
	store.bookings = snapshot.bookings
}

func (store *stubStore) LockAccount(ctx context.Context, userID UserID) error {
	return nil
}

func (store *stubStore) LatestEntry(ctx context.Context, userID UserID) (Entry, bool, error) {
	for index := len(store.entries) - 1; index >= 0; index-- {
		if store.entries[index].UserID == userID {
			return store.entries[index], true, nil
		}
	}
	return Entry{}, false, nil
}

func (store *stubStore) FindEntryByIdempotencyKey(ctx context.Context, userID UserID, key IdempotencyKey) (Entry, bool, error) {
	for _, entry := range store.entries {
		if entry.UserID == userID && entry.IdempotencyKey == key {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entryInput EntryInput) (Entry, error) {
	if store.insertEntryErr != nil {
		return Entry{}, store.insertEntryErr
	}
	if _, found, _ := store.FindEntryByIdempotencyKey(ctx, entryInput.UserID, entryInput.IdempotencyKey); found {
		return Entry{}, ErrDuplicateIdempotencyKey
	}
	entry := Entry{
		EntryID:        fmt.Sprintf("entry-%d", len(store.entries)+1),
		UserID:         entryInput.UserID,
		Kind:           entryInput.Kind,
		AmountIn:       entryInput.AmountIn,
		AmountOut:      entryInput.AmountOut,
		BalanceBefore:  entryInput.BalanceBefore,
		BalanceAfter:   entryInput.BalanceAfter,
		Reference:      entryInput.Reference,
		IdempotencyKey: entryInput.IdempotencyKey,
		MetadataJSON:   entryInput.MetadataJSON,
		CreatedUnixUTC: entryInput.CreatedUnixUTC,
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	var result []Entry
	for index := len(store.entries) - 1; index >= 0; index-- {
		entry := store.entries[index]
		if entry.UserID != userID {
			continue
		}
		if beforeUnixUTC > 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (store *stubStore) ListEntriesAscending(ctx context.Context, userID UserID) ([]Entry, error) {
	var result []Entry
	for _, entry := range store.entries {
		if entry.UserID == userID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (store *stubStore) InsertListing(ctx context.Context, listingInput ListingInput) (Listing, error) {
	listing := Listing{
		ListingID:      listingInput.ListingID,
		OwnerID:        listingInput.OwnerID,
		Status:         listingInput.Status,
		CreatedUnixUTC: listingInput.CreatedUnixUTC,
	}
	store.listings[listing.ListingID] = listing
	return listing, nil
}

func (store *stubStore) GetListing(ctx context.Context, listingID ListingID) (Listing, error) {
	listing, ok := store.listings[listingID]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return listing, nil
}

func (store *stubStore) GetListingForUpdate(ctx context.Context, listingID ListingID) (Listing, error) {
	return store.GetListing(ctx, listingID)
}

func (store *stubStore) UpdateListingStatus(ctx context.Context, listingID ListingID, from, to ListingStatus) error {
	listing, ok := store.listings[listingID]
	if !ok {
		return ErrNotFound
	}
	if listing.Status != from {
		return ErrConflict
	}
	listing.Status = to
	store.listings[listingID] = listing
	return nil
}

func (store *stubStore) InsertBooking(ctx context.Context, bookingInput BookingInput) (Booking, error) {
	if store.insertBookingErr != nil {
		return Booking{}, store.insertBookingErr
	}
	for _, existing := range store.bookings {
		if existing.ListingID == bookingInput.ListingID && existing.Active() {
			return Booking{}, ErrConflict
		}
	}
	booking := Booking{
		BookingID:      bookingInput.BookingID,
		ListingID:      bookingInput.ListingID,
		UserID:         bookingInput.UserID,
		DepositCents:   bookingInput.DepositCents,
		Status:         bookingInput.Status,
		CreatedUnixUTC: bookingInput.CreatedUnixUTC,
		ExpiresUnixUTC: bookingInput.ExpiresUnixUTC,
	}
	store.bookings[booking.BookingID] = booking
	return booking, nil
}

func (store *stubStore) GetBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return booking, nil
}

func (store *stubStore) GetBookingForUpdate(ctx context.Context, bookingID BookingID) (Booking, error) {
	if err := store.bookingLockErr[bookingID]; err != nil {
		return Booking{}, err
	}
	return store.GetBooking(ctx, bookingID)
}

func (store *stubStore) ActiveBookingForListing(ctx context.Context, listingID ListingID) (Booking, bool, error) {
	for _, booking := range store.bookings {
		if booking.ListingID == listingID && booking.Active() {
			return booking, true, nil
		}
	}
	return Booking{}, false, nil
}

func (store *stubStore) UpdateBookingStatus(ctx context.Context, bookingID BookingID, from, to BookingStatus, confirmedUnixUTC int64) error {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if booking.Status != from {
		return ErrConflict
	}
	booking.Status = to
	if confirmedUnixUTC > 0 {
		booking.ConfirmedUnixUTC = confirmedUnixUTC
	}
	store.bookings[bookingID] = booking
	return nil
}

func (store *stubStore) ListExpiredPendingBookings(ctx context.Context, nowUnixUTC int64, limit int) ([]Booking, error) {
	var result []Booking
	for _, booking := range store.bookings {
		if booking.Status == BookingPending && booking.ExpiresUnixUTC <= nowUnixUTC {
			result = append(result, booking)
			if limit > 0 && len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (store *stubStore) mustListing(test *testing.T, listingID ListingID) Listing {
	test.Helper()
	listing, ok := store.listings[listingID]
	if !ok {
		test.Fatalf("listing %s not found", listingID.String())
	}
	return listing
}

func (store *stubStore) mustBooking(test *testing.T, bookingID BookingID) Booking {
	test.Helper()
	booking, ok := store.bookings[bookingID]
	if !ok {
		test.Fatalf("booking %s not found", bookingID.String())
	}
	return booking
}

func (store *stubStore) entriesFor(userID UserID) []Entry {
	var result []Entry
	for _, entry := range store.entries {
		if entry.UserID == userID {
			result = append(result, entry)
		}
	}
	return result
}

// seedBalance plants a topup entry so the user starts with a known balance.
func (store *stubStore) seedBalance(test *testing.T, userID UserID, amount int64) {
	test.Helper()
	latest, found, _ := store.LatestEntry(context.Background(), userID)
	before := AmountCents(0)
	if found {
		before = latest.BalanceAfter
	}
	if _, err := store.InsertEntry(context.Background(), EntryInput{
		UserID:         userID,
		Kind:           ActionTopupCredit,
		AmountIn:       AmountCents(amount),
		BalanceBefore:  before,
		BalanceAfter:   before + AmountCents(amount),
		IdempotencyKey: mustIdempotencyKey(test, fmt.Sprintf("seed-%s-%d", userID.String(), len(store.entries))),
		MetadataJSON:   emptyMetadata,
		CreatedUnixUTC: 1,
	}); err != nil {
		test.Fatalf("seed balance: %v", err)
	}
}

func (store *stubStore) seedListing(test *testing.T, listingID ListingID, ownerID UserID, status ListingStatus) {
	test.Helper()
	store.listings[listingID] = Listing{
		ListingID:      listingID,
		OwnerID:        ownerID,
		Status:         status,
		CreatedUnixUTC: 1,
	}
}

type stubClock struct {
	now int64
}

func (clock *stubClock) Now() int64 {
	return clock.now
}

func mustWallet(test *testing.T, store Store, clock *stubClock) *Wallet {
	test.Helper()
	wallet, err := NewWallet(store, clock.Now)
	if err != nil {
		test.Fatalf("new wallet: %v", err)
	}
	return wallet
}

func mustBookings(test *testing.T, store Store, clock *stubClock) *Bookings {
	test.Helper()
	bookings, err := NewBookings(store, clock.Now)
	if err != nil {
		test.Fatalf("new bookings: %v", err)
	}
	return bookings
}

func mustListings(test *testing.T, store Store, clock *stubClock) *Listings {
	test.Helper()
	listings, err := NewListings(store, clock.Now)
	if err != nil {
		test.Fatalf("new listings: %v", err)
	}
	return listings
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustListingID(test *testing.T, raw string) ListingID {
	test.Helper()
	value, err := NewListingID(raw)
	if err != nil {
		test.Fatalf("listing id: %v", err)
	}
	return value
}

func mustBookingID(test *testing.T, raw string) BookingID {
	test.Helper()
	value, err := NewBookingID(raw)
	if err != nil {
		test.Fatalf("booking id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmountCents {
	test.Helper()
	value, err := NewPositiveAmountCents(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}
