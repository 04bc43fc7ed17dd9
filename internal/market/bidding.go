package market

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// PlaceBid accepts a bid against an active auction listing. The whole
// operation is one atomic unit: the prior winning bid is demoted, the
// new bid inserted winning, and the anti-snipe extension applied, or
// nothing happens at all. An optional idempotency key makes client
// retries return the already-inserted bid instead of double-bidding.
//
// A bid at or above the listing's buy-now price settles the auction
// immediately through the same atomic path as offer acceptance.
func (s *Service) PlaceBid(ctx context.Context, listingID, bidderID int64, amount decimal.Decimal, idempotencyKey string) (*models.Bid, error) {
	var (
		placed *models.Bid
		notes  []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}

		now := s.Clock.Now()
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		if !now.Before(listing.EndTime) {
			return ErrListingEnded
		}
		if bidderID == listing.SellerID {
			return ErrSelfBidNotAllowed
		}

		if idempotencyKey != "" {
			if prior, err := db.GetBidByIdempotencyKey(ctx, tx, listingID, idempotencyKey); err != nil {
				return err
			} else if prior != nil {
				placed = prior
				return nil
			}
		}

		current, err := db.GetWinningBid(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if current != nil {
			if !amount.GreaterThan(current.Amount) {
				return ErrBidTooLow
			}
		} else if amount.LessThan(listing.StartingPrice) {
			return ErrBidTooLow
		}

		if current != nil {
			if err := db.DemoteWinningBid(ctx, tx, current.ID); err != nil {
				return err
			}
			notes = append(notes, note{current.BidderID, NotifyOutbid, map[string]any{
				"listing_id": listingID, "amount": amount.String(),
			}})
		}

		bid := &models.Bid{ListingID: listingID, BidderID: bidderID, Amount: amount, Currency: listing.Currency}
		if idempotencyKey != "" {
			bid.IdempotencyKey = &idempotencyKey
		}
		placed, err = db.InsertBid(ctx, tx, bid)
		if err != nil {
			return err
		}

		// Buy-now short-circuits the auction at the asked price.
		if listing.BuyNowPrice != nil && amount.GreaterThanOrEqual(*listing.BuyNowPrice) {
			_, settleNotes, err := s.settle(ctx, tx, listing, bidderID, amount, 0)
			if err != nil {
				return err
			}
			notes = append(notes, settleNotes...)
			return nil
		}

		// Anti-snipe: a bid landing inside the window pushes the end
		// time out to now + extension, never earlier than it was.
		if listing.EndTime.Sub(now) <= s.Config.AntiSnipeWindow {
			newEnd := now.Add(s.Config.AntiSnipeExtension)
			extended, err := db.ExtendListingEndTime(ctx, tx, listingID, newEnd)
			if err != nil {
				return err
			}
			if extended {
				bidders, err := db.GetDistinctBidders(ctx, tx, listingID, bidderID)
				if err != nil {
					return err
				}
				for _, b := range bidders {
					notes = append(notes, note{b, NotifyAuctionExtended, map[string]any{
						"listing_id": listingID, "end_time": newEnd,
					}})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return placed, nil
}

// ListingBids returns the bid history of a listing.
func (s *Service) ListingBids(ctx context.Context, listingID int64) ([]models.Bid, error) {
	return db.GetListingBids(ctx, s.DB.Pool, listingID)
}
