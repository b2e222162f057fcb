package market

import (
	"errors"
	"testing"
)

func TestAllowedTransitionBookingLifecycle(test *testing.T) {
	test.Parallel()
	allowed := []struct{ from, to ListingStatus }{
		{ListingApproved, ListingBooking},
		{ListingBooking, ListingBooked},
		{ListingBooking, ListingApproved},
	}
	for _, transition := range allowed {
		if !allowedTransition(transition.from, transition.to, CauseBookingLifecycle) {
			test.Fatalf("expected %s -> %s allowed for booking lifecycle", transition.from, transition.to)
		}
	}
	denied := []struct{ from, to ListingStatus }{
		{ListingPending, ListingBooking},
		{ListingBooked, ListingApproved},
		{ListingApproved, ListingBooked},
	}
	for _, transition := range denied {
		if allowedTransition(transition.from, transition.to, CauseBookingLifecycle) {
			test.Fatalf("expected %s -> %s denied for booking lifecycle", transition.from, transition.to)
		}
	}
}

func TestAllowedTransitionModeration(test *testing.T) {
	test.Parallel()
	// Hiding works from any status except hidden itself.
	for _, from := range []ListingStatus{ListingPending, ListingApproved, ListingExpired, ListingBooking, ListingBooked} {
		if !allowedTransition(from, ListingHidden, CauseModeration) {
			test.Fatalf("expected %s -> hidden allowed for moderation", from)
		}
	}
	if allowedTransition(ListingHidden, ListingHidden, CauseModeration) {
		test.Fatalf("expected hidden -> hidden denied")
	}
	if !allowedTransition(ListingPending, ListingApproved, CauseModeration) {
		test.Fatalf("expected pending -> approved allowed for moderation")
	}
	if !allowedTransition(ListingHidden, ListingApproved, CauseModeration) {
		test.Fatalf("expected hidden -> approved allowed for moderation")
	}
	if allowedTransition(ListingApproved, ListingBooking, CauseModeration) {
		test.Fatalf("expected approved -> booking denied for moderation")
	}
}

func TestAllowedTransitionOwnerAction(test *testing.T) {
	test.Parallel()
	if !allowedTransition(ListingExpired, ListingApproved, CauseOwnerAction) {
		test.Fatalf("expected expired -> approved allowed for owner")
	}
	if !allowedTransition(ListingExpired, ListingPending, CauseOwnerAction) {
		test.Fatalf("expected expired -> pending allowed for owner")
	}
	if !allowedTransition(ListingApproved, ListingHidden, CauseOwnerAction) {
		test.Fatalf("expected approved -> hidden allowed for owner")
	}
	if allowedTransition(ListingBooked, ListingApproved, CauseOwnerAction) {
		test.Fatalf("expected booked -> approved denied for owner")
	}
	if allowedTransition(ListingPending, ListingApproved, CauseOwnerAction) {
		test.Fatalf("expected pending -> approved denied for owner")
	}
}

func TestParseStatuses(test *testing.T) {
	test.Parallel()
	if _, err := ParseBookingStatus("confirmed"); err != nil {
		test.Fatalf("booking status: %v", err)
	}
	if _, err := ParseBookingStatus("done"); !errors.Is(err, ErrInvalidBookingStatus) {
		test.Fatalf("expected ErrInvalidBookingStatus, got %v", err)
	}
	if _, err := ParseListingStatus("booking"); err != nil {
		test.Fatalf("listing status: %v", err)
	}
	if _, err := ParseListingStatus("archived"); !errors.Is(err, ErrInvalidListingStatus) {
		test.Fatalf("expected ErrInvalidListingStatus, got %v", err)
	}
	if _, err := ParseStatusCause("owner-action"); err != nil {
		test.Fatalf("status cause: %v", err)
	}
	if _, err := ParseStatusCause("admin"); !errors.Is(err, ErrInvalidStatusCause) {
		test.Fatalf("expected ErrInvalidStatusCause, got %v", err)
	}
}
