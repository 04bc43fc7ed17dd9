package market

import (
	"errors"
	"fmt"
)

// Base error kinds. Every business-rule violation surfaced by the
// engines wraps exactly one of these, so callers can dispatch with
// errors.Is or KindOf without parsing messages.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Operation-specific failures, each tied to its kind.
var (
	ErrListingNotActive                = fmt.Errorf("listing is not active: %w", ErrInvalidState)
	ErrListingEnded                    = fmt.Errorf("auction has ended: %w", ErrInvalidState)
	ErrSelfBidNotAllowed               = fmt.Errorf("sellers cannot bid on their own listing: %w", ErrPreconditionFailed)
	ErrBidTooLow                       = fmt.Errorf("bid amount too low: %w", ErrPreconditionFailed)
	ErrOfferNotActive                  = fmt.Errorf("offer is not active: %w", ErrInvalidState)
	ErrOfferExpired                    = fmt.Errorf("offer deadline has passed: %w", ErrPreconditionFailed)
	ErrDisputeAlreadyExists            = fmt.Errorf("dispute already exists: %w", ErrInvalidState)
	ErrInvalidStateForDispute          = fmt.Errorf("transaction state does not permit a dispute: %w", ErrInvalidState)
	ErrNotAParty                       = fmt.Errorf("caller is not a party to this transaction: %w", ErrNotAuthorized)
	ErrChecklistItemNotSellerConfirmed = fmt.Errorf("seller has not confirmed this checklist item yet: %w", ErrPreconditionFailed)
	ErrAlreadyConfirmed                = fmt.Errorf("already confirmed: %w", ErrAlreadyClaimed)
	ErrSignatureReplayed               = fmt.Errorf("agreement signature already used: %w", ErrAlreadyClaimed)
)

// Kind identifies the error taxonomy bucket of a business error.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindNotAuthorized       Kind = "not_authorized"
	KindInvalidState        Kind = "invalid_state"
	KindPreconditionFailed  Kind = "precondition_failed"
	KindAlreadyClaimed      Kind = "already_claimed"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindInternal            Kind = "internal"
)

// KindOf maps any error returned by the engines to its kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	case errors.Is(err, ErrAlreadyClaimed):
		return KindAlreadyClaimed
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	default:
		return KindInternal
	}
}
