package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roomly/core/pkg/market"
)

const (
	constraintEntryIdempotency = "uniq_entry_idem"
	constraintActiveBooking    = "uniq_active_booking"
	defaultMetadataJSON        = "{}"
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	errorOperationStore        = "store"
	errorSubjectAccount        = "account"
	errorSubjectEntry          = "entry"
	errorSubjectListing        = "listing"
	errorSubjectBooking        = "booking"
	errorCodeCreate            = "create"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeLock              = "lock"
	errorCodeUpdateStatus      = "update_status"
)

// Store implements market.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Used for sqlite deployments and tests;
// postgres schemas are managed externally.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&WalletAccount{}, &LedgerEntry{}, &Listing{}, &Booking{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore market.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// LockAccount creates the user's account row if absent and locks it for the
// rest of the transaction, serializing ledger appends per user.
func (store *Store) LockAccount(ctx context.Context, userID market.UserID) error {
	account := WalletAccount{UserID: userID.String(), CreatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	var locked WalletAccount
	err = store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID.String()).
		Take(&locked).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeLock, err)
	}
	return nil
}

func (store *Store) LatestEntry(ctx context.Context, userID market.UserID) (market.Entry, bool, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("seq DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Entry{}, false, nil
	}
	if err != nil {
		return market.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return market.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, true, nil
}

func (store *Store) FindEntryByIdempotencyKey(ctx context.Context, userID market.UserID, key market.IdempotencyKey) (market.Entry, bool, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID.String(), key.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Entry{}, false, nil
	}
	if err != nil {
		return market.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return market.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, true, nil
}

func (store *Store) InsertEntry(ctx context.Context, entryInput market.EntryInput) (market.Entry, error) {
	var refKind, refID *string
	if entryInput.Reference != nil {
		kindValue := string(entryInput.Reference.Kind)
		idValue := entryInput.Reference.ID
		refKind = &kindValue
		refID = &idValue
	}
	row := LedgerEntry{
		UserID:         entryInput.UserID.String(),
		Kind:           entryInput.Kind.String(),
		AmountIn:       entryInput.AmountIn.Int64(),
		AmountOut:      entryInput.AmountOut.Int64(),
		BalanceBefore:  entryInput.BalanceBefore.Int64(),
		BalanceAfter:   entryInput.BalanceAfter.Int64(),
		RefKind:        refKind,
		RefID:          refID,
		IdempotencyKey: entryInput.IdempotencyKey.String(),
		Metadata:       datatypesJSON(entryInput.MetadataJSON.String()),
		CreatedAt:      time.Unix(entryInput.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isIdempotencyConflict(err) {
		return market.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, market.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return market.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return market.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListEntries(ctx context.Context, userID market.UserID, beforeUnixUTC int64, limit int) ([]market.Entry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), before).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) ListEntriesAscending(ctx context.Context, userID market.UserID) ([]market.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) InsertListing(ctx context.Context, listingInput market.ListingInput) (market.Listing, error) {
	row := Listing{
		ListingID: listingInput.ListingID.String(),
		OwnerID:   listingInput.OwnerID.String(),
		Status:    listingInput.Status.String(),
		CreatedAt: time.Unix(listingInput.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeCreate, err)
	}
	listing, err := mapListing(row)
	if err != nil {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	return listing, nil
}

func (store *Store) GetListing(ctx context.Context, listingID market.ListingID) (market.Listing, error) {
	return store.getListing(ctx, listingID, false)
}

func (store *Store) GetListingForUpdate(ctx context.Context, listingID market.ListingID) (market.Listing, error) {
	return store.getListing(ctx, listingID, true)
}

func (store *Store) getListing(ctx context.Context, listingID market.ListingID, forUpdate bool) (market.Listing, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Listing
	err := query.Where("listing_id = ?", listingID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, market.ErrNotFound)
	}
	if err != nil {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, err)
	}
	listing, err := mapListing(row)
	if err != nil {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	return listing, nil
}

// UpdateListingStatus is compare-and-set on the from-status; losing a race
// surfaces as a retryable conflict.
func (store *Store) UpdateListingStatus(ctx context.Context, listingID market.ListingID, from, to market.ListingStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Listing{}).
		Where("listing_id = ? AND status = ?", listingID.String(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectListing, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectListing, errorCodeUpdateStatus, market.ErrConflict)
	}
	return nil
}

func (store *Store) InsertBooking(ctx context.Context, bookingInput market.BookingInput) (market.Booking, error) {
	row := Booking{
		BookingID:    bookingInput.BookingID.String(),
		ListingID:    bookingInput.ListingID.String(),
		UserID:       bookingInput.UserID.String(),
		DepositCents: bookingInput.DepositCents.Int64(),
		Status:       bookingInput.Status.String(),
		ExpiresAt:    time.Unix(bookingInput.ExpiresUnixUTC, 0).UTC(),
		CreatedAt:    time.Unix(bookingInput.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isActiveBookingConflict(err) {
		// Another active booking for the listing slipped past the row lock.
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeDuplicate, market.ErrConflict)
	}
	if err != nil {
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	booking, err := mapBooking(row)
	if err != nil {
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID market.BookingID) (market.Booking, error) {
	return store.getBooking(ctx, bookingID, false)
}

func (store *Store) GetBookingForUpdate(ctx context.Context, bookingID market.BookingID) (market.Booking, error) {
	return store.getBooking(ctx, bookingID, true)
}

func (store *Store) getBooking(ctx context.Context, bookingID market.BookingID, forUpdate bool) (market.Booking, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Booking
	err := query.Where("booking_id = ?", bookingID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, market.ErrNotFound)
	}
	if err != nil {
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBooking(row)
	if err != nil {
		return market.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

func (store *Store) ActiveBookingForListing(ctx context.Context, listingID market.ListingID) (market.Booking, bool, error) {
	var row Booking
	err := store.db.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID.String(),
			[]string{market.BookingPending.String(), market.BookingConfirmed.String()}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Booking{}, false, nil
	}
	if err != nil {
		return market.Booking{}, false, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBooking(row)
	if err != nil {
		return market.Booking{}, false, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, true, nil
}

// UpdateBookingStatus is compare-and-set on the from-status. A non-zero
// confirmedUnixUTC also records the confirmation time.
func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID market.BookingID, from, to market.BookingStatus, confirmedUnixUTC int64) error {
	updates := map[string]interface{}{"status": to.String()}
	if confirmedUnixUTC != 0 {
		confirmedAt := time.Unix(confirmedUnixUTC, 0).UTC()
		updates["confirmed_at"] = &confirmedAt
	}
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("booking_id = ? AND status = ?", bookingID.String(), from.String()).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, market.ErrConflict)
	}
	return nil
}

func (store *Store) ListExpiredPendingBookings(ctx context.Context, nowUnixUTC int64, limit int) ([]market.Booking, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	var rows []Booking
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", market.BookingPending.String(), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]market.Booking, 0, len(rows))
	for _, row := range rows {
		booking, err := mapBooking(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return market.WrapError(errorOperationStore, subject, code, err)
}

func mapLedgerEntries(rows []LedgerEntry) ([]market.Entry, error) {
	entries := make([]market.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapLedgerEntry(row LedgerEntry) (market.Entry, error) {
	userID, err := market.NewUserID(row.UserID)
	if err != nil {
		return market.Entry{}, err
	}
	kind, err := market.ParseActionKind(row.Kind)
	if err != nil {
		return market.Entry{}, err
	}
	idempotencyKey, err := market.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return market.Entry{}, err
	}
	metadata, err := market.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return market.Entry{}, err
	}
	var reference *market.Reference
	if row.RefKind != nil && row.RefID != nil {
		reference = &market.Reference{Kind: market.ReferenceKind(*row.RefKind), ID: *row.RefID}
	}
	return market.Entry{
		EntryID:        row.EntryID,
		UserID:         userID,
		Kind:           kind,
		AmountIn:       market.AmountCents(row.AmountIn),
		AmountOut:      market.AmountCents(row.AmountOut),
		BalanceBefore:  market.AmountCents(row.BalanceBefore),
		BalanceAfter:   market.AmountCents(row.BalanceAfter),
		Reference:      reference,
		IdempotencyKey: idempotencyKey,
		MetadataJSON:   metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapListing(row Listing) (market.Listing, error) {
	listingID, err := market.NewListingID(row.ListingID)
	if err != nil {
		return market.Listing{}, err
	}
	ownerID, err := market.NewUserID(row.OwnerID)
	if err != nil {
		return market.Listing{}, err
	}
	status, err := market.ParseListingStatus(row.Status)
	if err != nil {
		return market.Listing{}, err
	}
	return market.Listing{
		ListingID:      listingID,
		OwnerID:        ownerID,
		Status:         status,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapBooking(row Booking) (market.Booking, error) {
	bookingID, err := market.NewBookingID(row.BookingID)
	if err != nil {
		return market.Booking{}, err
	}
	listingID, err := market.NewListingID(row.ListingID)
	if err != nil {
		return market.Booking{}, err
	}
	userID, err := market.NewUserID(row.UserID)
	if err != nil {
		return market.Booking{}, err
	}
	deposit, err := market.NewPositiveAmountCents(row.DepositCents)
	if err != nil {
		return market.Booking{}, err
	}
	status, err := market.ParseBookingStatus(row.Status)
	if err != nil {
		return market.Booking{}, err
	}
	booking := market.Booking{
		BookingID:      bookingID,
		ListingID:      listingID,
		UserID:         userID,
		DepositCents:   deposit,
		Status:         status,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		ExpiresUnixUTC: row.ExpiresAt.Unix(),
	}
	if row.ConfirmedAt != nil {
		booking.ConfirmedUnixUTC = row.ConfirmedAt.Unix()
	}
	return booking, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isIdempotencyConflict(err error) bool {
	return isUniqueViolation(err, constraintEntryIdempotency)
}

func isActiveBookingConflict(err error) bool {
	return isUniqueViolation(err, constraintActiveBooking)
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
