package market

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// Sweep lazily applies deadline transitions: expired offers, ended
// bidless auctions, ended auctions with a winner (settled into
// escrow), and overdue dispute reminders. Every flip is a conditional
// update, so concurrent sweeps cannot double-fire, and correctness
// never depends on the sweep running at all.
func (s *Service) Sweep(ctx context.Context) error {
	now := s.Clock.Now()

	offers, err := db.ExpireOffers(ctx, s.DB.Pool, now)
	if err != nil {
		return err
	}
	for _, o := range offers {
		s.Notifier.Notify(ctx, o.BuyerID, NotifyOfferExpired, map[string]any{"offer_id": o.ID})
	}

	if _, err := db.ExpireListings(ctx, s.DB.Pool, now); err != nil {
		return err
	}

	ended, err := db.EndedAuctionsWithWinner(ctx, s.DB.Pool, now)
	if err != nil {
		return err
	}
	for _, listingID := range ended {
		if err := s.settleEndedAuction(ctx, listingID); err != nil {
			// Another worker may have settled this listing already;
			// keep sweeping the rest.
			log.Printf("sweep: settle listing %d: %v", listingID, err)
		}
	}

	reminders, err := db.DisputesNeedingReminder(ctx, s.DB.Pool, now)
	if err != nil {
		return err
	}
	for _, d := range reminders {
		s.Notifier.Notify(ctx, d.RespondentID, NotifyDisputeReminder, map[string]any{
			"dispute_id": d.ID, "response_deadline": d.ResponseDeadline,
		})
	}
	return nil
}

// settleEndedAuction converts an ended auction's winning bid into an
// in-escrow settlement, symmetric to offer acceptance.
func (s *Service) settleEndedAuction(ctx context.Context, listingID int64) error {
	var notes []note
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if listing.Status != models.ListingStatusActive || s.Clock.Now().Before(listing.EndTime) {
			return ErrListingNotActive
		}
		winning, err := db.GetWinningBid(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if winning == nil {
			return ErrListingNotActive
		}

		settlement, settleNotes, err := s.settle(ctx, tx, listing, winning.BidderID, winning.Amount, 0)
		if err != nil {
			return err
		}
		notes = append(settleNotes, note{winning.BidderID, NotifyAuctionWon, map[string]any{
			"listing_id": listingID, "transaction_id": settlement.ID, "amount": winning.Amount.String(),
		}})
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notes)
	return nil
}
