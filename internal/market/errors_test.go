package market

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"NotFound", ErrNotFound, KindNotFound},
		{"WrappedNotFound", fmt.Errorf("listing: %w", ErrNotFound), KindNotFound},
		{"BidTooLow", ErrBidTooLow, KindPreconditionFailed},
		{"SelfBid", ErrSelfBidNotAllowed, KindPreconditionFailed},
		{"ListingNotActive", ErrListingNotActive, KindInvalidState},
		{"ListingEnded", ErrListingEnded, KindInvalidState},
		{"OfferExpired", ErrOfferExpired, KindPreconditionFailed},
		{"DisputeExists", ErrDisputeAlreadyExists, KindInvalidState},
		{"NotAParty", ErrNotAParty, KindNotAuthorized},
		{"SellerFirst", ErrChecklistItemNotSellerConfirmed, KindPreconditionFailed},
		{"AlreadyConfirmed", ErrAlreadyConfirmed, KindAlreadyClaimed},
		{"SignatureReplay", ErrSignatureReplayed, KindAlreadyClaimed},
		{"Conflict", ErrConcurrencyConflict, KindConcurrencyConflict},
		{"Unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestOperationErrorsCarryTheirKind(t *testing.T) {
	// Handlers dispatch with errors.Is on the base kinds; every
	// operation-specific error must wrap exactly one of them.
	if !errors.Is(ErrBidTooLow, ErrPreconditionFailed) {
		t.Error("ErrBidTooLow does not wrap ErrPreconditionFailed")
	}
	if !errors.Is(ErrOfferNotActive, ErrInvalidState) {
		t.Error("ErrOfferNotActive does not wrap ErrInvalidState")
	}
	if errors.Is(ErrBidTooLow, ErrInvalidState) {
		t.Error("ErrBidTooLow wraps more than one kind")
	}
}
