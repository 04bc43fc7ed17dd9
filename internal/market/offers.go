package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// CreateOffer opens a negotiated price proposal on an active listing.
func (s *Service) CreateOffer(ctx context.Context, listingID, buyerID int64, amount decimal.Decimal, deadline time.Time) (*models.Offer, error) {
	var (
		created *models.Offer
		notes   []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		if buyerID == listing.SellerID {
			return ErrSelfBidNotAllowed
		}
		if !amount.IsPositive() {
			return fmt.Errorf("offer amount must be positive: %w", ErrPreconditionFailed)
		}
		if !deadline.After(s.Clock.Now()) {
			return fmt.Errorf("offer deadline must be in the future: %w", ErrPreconditionFailed)
		}

		created, err = db.InsertOffer(ctx, tx, &models.Offer{
			ListingID: listingID,
			BuyerID:   buyerID,
			Amount:    amount,
			Currency:  listing.Currency,
			Deadline:  deadline,
		})
		if errors.Is(err, db.ErrOpenOfferExists) {
			return fmt.Errorf("%v: %w", err, ErrInvalidState)
		}
		if err != nil {
			return err
		}
		notes = append(notes, note{listing.SellerID, NotifyOfferReceived, map[string]any{
			"listing_id": listingID, "offer_id": created.ID, "amount": amount.String(),
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return created, nil
}

// CounterOffer responds to an active offer with the seller's counter
// terms.
func (s *Service) CounterOffer(ctx context.Context, offerID, sellerID int64, counterAmount decimal.Decimal, message string) (*models.Offer, error) {
	var (
		countered *models.Offer
		notes     []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		offer, err := db.GetOfferForUpdate(ctx, tx, offerID)
		if err != nil {
			return notFound(err, "offer")
		}
		listing, err := db.GetListing(ctx, tx, offer.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotAuthorized
		}
		if offer.Status != models.OfferStatusActive {
			return ErrOfferNotActive
		}
		if !counterAmount.IsPositive() {
			return fmt.Errorf("counter amount must be positive: %w", ErrPreconditionFailed)
		}

		var msg *string
		if message != "" {
			msg = &message
		}
		ok, err := db.CounterOffer(ctx, tx, offerID, counterAmount, msg)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}
		countered, err = db.GetOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		notes = append(notes, note{offer.BuyerID, NotifyOfferCountered, map[string]any{
			"offer_id": offerID, "counter_amount": counterAmount.String(),
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return countered, nil
}

// AcceptOffer accepts an active offer: the offer flips to accepted, a
// transaction is created in escrow, the listing is reserved for the
// buyer and every sibling open offer is cancelled. All four mutations
// commit or none do. An offer past its deadline auto-expires and the
// acceptance fails.
func (s *Service) AcceptOffer(ctx context.Context, offerID, sellerID int64) (*models.Transaction, error) {
	var (
		settlement *models.Transaction
		notes      []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		offer, err := db.GetOfferForUpdate(ctx, tx, offerID)
		if err != nil {
			return notFound(err, "offer")
		}
		listing, err := db.GetListingForUpdate(ctx, tx, offer.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotAuthorized
		}
		if offer.Status != models.OfferStatusActive {
			return ErrOfferNotActive
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		if !s.Clock.Now().Before(offer.Deadline) {
			// Lazy expiry: flip the offer and fail the acceptance.
			if _, err := db.UpdateOfferStatus(ctx, tx, offerID, models.OfferStatusActive, models.OfferStatusExpired); err != nil {
				return err
			}
			return ErrOfferExpired
		}

		ok, err := db.UpdateOfferStatus(ctx, tx, offerID, models.OfferStatusActive, models.OfferStatusAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}

		settlement, notes, err = s.settleOffer(ctx, tx, listing, offer, offer.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return settlement, nil
}

// settleOffer runs the shared settlement path for an accepted offer
// and prepends the acceptance notification.
func (s *Service) settleOffer(ctx context.Context, tx pgx.Tx, listing *models.Listing, offer *models.Offer, price decimal.Decimal) (*models.Transaction, []note, error) {
	settlement, notes, err := s.settle(ctx, tx, listing, offer.BuyerID, price, offer.ID)
	if err != nil {
		return nil, nil, err
	}
	notes = append([]note{{offer.BuyerID, NotifyOfferAccepted, map[string]any{
		"offer_id": offer.ID, "transaction_id": settlement.ID,
	}}}, notes...)
	return settlement, notes, nil
}

// RejectOffer is the seller's one-way transition of an open offer to
// rejected.
func (s *Service) RejectOffer(ctx context.Context, offerID, sellerID int64) error {
	return s.closeOffer(ctx, offerID, sellerID, true, models.OfferStatusRejected, NotifyOfferRejected)
}

// WithdrawOffer is the buyer's one-way transition of an open offer to
// cancelled.
func (s *Service) WithdrawOffer(ctx context.Context, offerID, buyerID int64) error {
	return s.closeOffer(ctx, offerID, buyerID, false, models.OfferStatusCancelled, NotifyOfferCancelled)
}

// closeOffer handles the shared reject/withdraw shape: authorization,
// the open-status guard, and the conditional flip from either active
// or countered.
func (s *Service) closeOffer(ctx context.Context, offerID, callerID int64, callerIsSeller bool, to, notifType string) error {
	var notes []note
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		offer, err := db.GetOfferForUpdate(ctx, tx, offerID)
		if err != nil {
			return notFound(err, "offer")
		}
		listing, err := db.GetListing(ctx, tx, offer.ListingID)
		if err != nil {
			return err
		}
		if callerIsSeller {
			if listing.SellerID != callerID {
				return ErrNotAuthorized
			}
		} else if offer.BuyerID != callerID {
			return ErrNotAuthorized
		}
		if offer.Status != models.OfferStatusActive && offer.Status != models.OfferStatusCountered {
			return ErrOfferNotActive
		}

		ok, err := db.UpdateOfferStatus(ctx, tx, offerID, offer.Status, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}

		counterparty := offer.BuyerID
		if !callerIsSeller {
			counterparty = listing.SellerID
		}
		notes = append(notes, note{counterparty, notifType, map[string]any{"offer_id": offerID}})
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notes)
	return nil
}

// RespondToCounter is the buyer's answer to a countered offer.
// Accepting settles at the counter amount through the same atomic
// path as a normal acceptance; declining closes the offer.
func (s *Service) RespondToCounter(ctx context.Context, offerID, buyerID int64, accept bool) (*models.Transaction, error) {
	if !accept {
		return nil, s.WithdrawOffer(ctx, offerID, buyerID)
	}

	var (
		settlement *models.Transaction
		notes      []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		offer, err := db.GetOfferForUpdate(ctx, tx, offerID)
		if err != nil {
			return notFound(err, "offer")
		}
		if offer.BuyerID != buyerID {
			return ErrNotAuthorized
		}
		if offer.Status != models.OfferStatusCountered || offer.CounterAmount == nil {
			return ErrOfferNotActive
		}
		listing, err := db.GetListingForUpdate(ctx, tx, offer.ListingID)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		if !s.Clock.Now().Before(offer.Deadline) {
			if _, err := db.UpdateOfferStatus(ctx, tx, offerID, models.OfferStatusCountered, models.OfferStatusExpired); err != nil {
				return err
			}
			return ErrOfferExpired
		}

		ok, err := db.UpdateOfferStatus(ctx, tx, offerID, models.OfferStatusCountered, models.OfferStatusAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotActive
		}

		settlement, notes, err = s.settleOffer(ctx, tx, listing, offer, *offer.CounterAmount)
		if err != nil {
			return err
		}
		notes = append(notes, note{listing.SellerID, NotifyOfferAccepted, map[string]any{
			"offer_id": offerID, "transaction_id": settlement.ID,
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return settlement, nil
}

// ListingOffers returns the offer history of a listing.
func (s *Service) ListingOffers(ctx context.Context, listingID int64) ([]models.Offer, error) {
	return db.GetListingOffers(ctx, s.DB.Pool, listingID)
}
