package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AmountCents is an integer currency amount in the smallest unit.
type AmountCents int64

// Int64 returns the raw amount.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// PositiveAmountCents is an operation amount, strictly greater than zero.
type PositiveAmountCents int64

// NewPositiveAmountCents validates an operation amount.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return PositiveAmountCents(raw), nil
}

// ToAmountCents converts to a plain amount.
func (amount PositiveAmountCents) ToAmountCents() AmountCents {
	return AmountCents(amount)
}

// Int64 returns the raw amount.
func (amount PositiveAmountCents) Int64() int64 {
	return int64(amount)
}

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// ListingID identifies a listing.
type ListingID struct {
	value string
}

// NewListingID validates and normalizes a listing id.
func NewListingID(raw string) (ListingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ListingID{}, fmt.Errorf("%w: empty value", ErrInvalidListingID)
	}
	return ListingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ListingID) String() string {
	return id.value
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// IdempotencyKey scopes duplicate detection per user.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// emptyMetadata is the default for operations with nothing to record.
var emptyMetadata = MetadataJSON{value: "{}"}

// ReferenceKind tags which entity a ledger entry points at.
type ReferenceKind string

const (
	ReferenceListing ReferenceKind = "listing"
	ReferenceBooking ReferenceKind = "booking"
)

// Reference links a ledger entry to the entity that caused it.
type Reference struct {
	Kind ReferenceKind
	ID   string
}

// ListingReference builds a listing reference.
func ListingReference(listingID ListingID) *Reference {
	return &Reference{Kind: ReferenceListing, ID: listingID.String()}
}

// BookingReference builds a booking reference.
func BookingReference(bookingID BookingID) *Reference {
	return &Reference{Kind: ReferenceBooking, ID: bookingID.String()}
}

// Initiator identifies who asked for a booking cancellation.
type Initiator string

const (
	InitiatorGuest      Initiator = "guest"
	InitiatorOwner      Initiator = "owner"
	InitiatorModeration Initiator = "moderation"
)

// ParseInitiator validates an initiator value.
func ParseInitiator(raw string) (Initiator, error) {
	switch Initiator(raw) {
	case InitiatorGuest, InitiatorOwner, InitiatorModeration:
		return Initiator(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidInitiator, raw)
}

// Entry is a single immutable line in the ledger. The balance chain is the
// source of truth: BalanceAfter of entry N equals BalanceBefore of entry N+1
// for the same user.
type Entry struct {
	EntryID        string
	UserID         UserID
	Kind           ActionKind
	AmountIn       AmountCents
	AmountOut      AmountCents
	BalanceBefore  AmountCents
	BalanceAfter   AmountCents
	Reference      *Reference
	IdempotencyKey IdempotencyKey
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// EntryInput carries the fields of an entry about to be appended.
type EntryInput struct {
	UserID         UserID
	Kind           ActionKind
	AmountIn       AmountCents
	AmountOut      AmountCents
	BalanceBefore  AmountCents
	BalanceAfter   AmountCents
	Reference      *Reference
	IdempotencyKey IdempotencyKey
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// Listing is the slice of a listing row the core owns: identity and status.
type Listing struct {
	ListingID      ListingID
	OwnerID        UserID
	Status         ListingStatus
	CreatedUnixUTC int64
}

// ListingInput carries the fields of a listing about to be inserted.
type ListingInput struct {
	ListingID      ListingID
	OwnerID        UserID
	Status         ListingStatus
	CreatedUnixUTC int64
}

// Booking is a deposit hold against one listing by one user.
type Booking struct {
	BookingID        BookingID
	ListingID        ListingID
	UserID           UserID
	DepositCents     PositiveAmountCents
	Status           BookingStatus
	CreatedUnixUTC   int64
	ExpiresUnixUTC   int64
	ConfirmedUnixUTC int64
}

// BookingInput carries the fields of a booking about to be inserted.
type BookingInput struct {
	BookingID      BookingID
	ListingID      ListingID
	UserID         UserID
	DepositCents   PositiveAmountCents
	Status         BookingStatus
	CreatedUnixUTC int64
	ExpiresUnixUTC int64
}

// Active reports whether the booking blocks new bookings on its listing.
func (booking Booking) Active() bool {
	return booking.Status == BookingPending || booking.Status == BookingConfirmed
}
