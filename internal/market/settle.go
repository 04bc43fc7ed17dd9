package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// settle converts an active listing into an in-escrow settlement at
// the given price: transaction created, listing reserved for the
// buyer, every sibling open offer cancelled. Runs inside the caller's
// serializable transaction with the listing row already locked; all
// four mutations commit or none do.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, listing *models.Listing, buyerID int64, price decimal.Decimal, acceptedOfferID int64) (*models.Transaction, []note, error) {
	fee := s.Config.Fees.PlatformFee(price, listing.Currency)
	settlement, err := db.InsertTransaction(ctx, tx, &models.Transaction{
		ListingID:      listing.ID,
		BuyerID:        buyerID,
		SellerID:       listing.SellerID,
		SalePrice:      price,
		PlatformFee:    fee,
		SellerProceeds: price.Sub(fee),
		Currency:       listing.Currency,
	})
	if errors.Is(err, db.ErrLiveTransactionExists) {
		return nil, nil, fmt.Errorf("listing %d already has a live transaction: %w", listing.ID, ErrInvalidState)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := db.AddTransactionPartner(ctx, tx, settlement.ID, buyerID); err != nil {
		return nil, nil, err
	}
	if err := db.InsertChecklistItems(ctx, tx, settlement.ID, s.Config.ChecklistLabels); err != nil {
		return nil, nil, err
	}

	reserved, err := db.ReserveListing(ctx, tx, listing.ID, buyerID)
	if err != nil {
		return nil, nil, err
	}
	if !reserved {
		return nil, nil, ErrListingNotActive
	}

	losers, err := db.CancelSiblingOffers(ctx, tx, listing.ID, acceptedOfferID)
	if err != nil {
		return nil, nil, err
	}

	notes := []note{
		{buyerID, NotifySaleReserved, map[string]any{"listing_id": listing.ID, "transaction_id": settlement.ID, "price": price.String()}},
		{listing.SellerID, NotifySaleReserved, map[string]any{"listing_id": listing.ID, "transaction_id": settlement.ID, "price": price.String()}},
	}
	for _, loser := range losers {
		notes = append(notes, note{loser, NotifyOfferCancelled, map[string]any{"listing_id": listing.ID}})
	}
	return settlement, notes, nil
}
