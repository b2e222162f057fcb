package market

import "fmt"

// ActionKind enumerates balance-affecting event kinds. Every kind is
// statically classified as a credit or a debit; an entry carries the amount
// on exactly one side.
type ActionKind string

const (
	ActionListingCreateCharge ActionKind = "listing_create_charge"
	ActionLabelCharge         ActionKind = "label_charge"
	ActionExtendCharge        ActionKind = "extend_charge"
	ActionRepostCharge        ActionKind = "repost_charge"
	ActionTopupCredit         ActionKind = "topup_credit"
	ActionWithdrawalDebit     ActionKind = "withdrawal_debit"
	ActionBookingHold         ActionKind = "booking_hold"
	ActionBookingRefund       ActionKind = "booking_refund"
	ActionBookingForfeit      ActionKind = "booking_forfeit"
	ActionDepositReceive      ActionKind = "deposit_receive"
)

// String returns the stored representation.
func (kind ActionKind) String() string {
	return string(kind)
}

// IsCredit reports whether the kind adds funds to the user's balance.
func (kind ActionKind) IsCredit() bool {
	switch kind {
	case ActionTopupCredit, ActionBookingRefund, ActionBookingForfeit, ActionDepositReceive:
		return true
	}
	return false
}

// IsListingCharge reports whether the kind is a charge for a listing action.
func (kind ActionKind) IsListingCharge() bool {
	switch kind {
	case ActionListingCreateCharge, ActionLabelCharge, ActionExtendCharge, ActionRepostCharge:
		return true
	}
	return false
}

// ParseActionKind validates a stored action kind.
func ParseActionKind(raw string) (ActionKind, error) {
	switch ActionKind(raw) {
	case ActionListingCreateCharge, ActionLabelCharge, ActionExtendCharge, ActionRepostCharge,
		ActionTopupCredit, ActionWithdrawalDebit, ActionBookingHold, ActionBookingRefund,
		ActionBookingForfeit, ActionDepositReceive:
		return ActionKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActionKind, raw)
}

// BookingStatus defines the booking lifecycle. Pending is the only
// non-terminal state.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingExpired   BookingStatus = "expired"
	BookingCanceled  BookingStatus = "canceled"
)

// String returns the stored representation.
func (status BookingStatus) String() string {
	return string(status)
}

// ParseBookingStatus validates a stored booking status.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case BookingPending, BookingConfirmed, BookingExpired, BookingCanceled:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// ListingStatus defines listing visibility. ListingBooking and ListingBooked
// are derived from an active booking and may only be entered or left by the
// booking lifecycle.
type ListingStatus string

const (
	ListingPending  ListingStatus = "pending"
	ListingApproved ListingStatus = "approved"
	ListingExpired  ListingStatus = "expired"
	ListingHidden   ListingStatus = "hidden"
	ListingBooking  ListingStatus = "booking"
	ListingBooked   ListingStatus = "booked"
)

// String returns the stored representation.
func (status ListingStatus) String() string {
	return string(status)
}

// ParseListingStatus validates a stored listing status.
func ParseListingStatus(raw string) (ListingStatus, error) {
	switch ListingStatus(raw) {
	case ListingPending, ListingApproved, ListingExpired, ListingHidden, ListingBooking, ListingBooked:
		return ListingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidListingStatus, raw)
}

// StatusCause identifies which flow asks for a listing status change.
type StatusCause string

const (
	CauseModeration       StatusCause = "moderation"
	CauseBookingLifecycle StatusCause = "booking-lifecycle"
	CauseOwnerAction      StatusCause = "owner-action"
)

// String returns the stored representation.
func (cause StatusCause) String() string {
	return string(cause)
}

// ParseStatusCause validates a status-change cause.
func ParseStatusCause(raw string) (StatusCause, error) {
	switch StatusCause(raw) {
	case CauseModeration, CauseBookingLifecycle, CauseOwnerAction:
		return StatusCause(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatusCause, raw)
}

// allowedTransition is the restricted listing transition table. Hiding by
// moderation is handled separately because it is unconditional.
func allowedTransition(from, to ListingStatus, cause StatusCause) bool {
	switch cause {
	case CauseBookingLifecycle:
		switch {
		case from == ListingApproved && to == ListingBooking:
			return true
		case from == ListingBooking && to == ListingBooked:
			return true
		case from == ListingBooking && to == ListingApproved:
			return true
		}
		return false
	case CauseModeration:
		if to == ListingHidden {
			return from != ListingHidden
		}
		switch {
		case from == ListingPending && to == ListingApproved:
			return true
		case from == ListingHidden && to == ListingApproved:
			return true
		}
		return false
	case CauseOwnerAction:
		switch {
		case from == ListingExpired && to == ListingApproved:
			return true
		case from == ListingExpired && to == ListingPending:
			return true
		case from == ListingApproved && to == ListingHidden:
			return true
		}
		return false
	}
	return false
}
