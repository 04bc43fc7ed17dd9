package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// CreateListing puts a new item up for auction. Listings start active
// unless draft is set.
func (s *Service) CreateListing(ctx context.Context, sellerID int64, title, description string, startingPrice decimal.Decimal, buyNowPrice *decimal.Decimal, currency string, endTime time.Time, draft bool) (*models.Listing, error) {
	if title == "" {
		return nil, fmt.Errorf("title required: %w", ErrPreconditionFailed)
	}
	if !startingPrice.IsPositive() {
		return nil, fmt.Errorf("starting price must be positive: %w", ErrPreconditionFailed)
	}
	if buyNowPrice != nil && buyNowPrice.LessThan(startingPrice) {
		return nil, fmt.Errorf("buy-now price below starting price: %w", ErrPreconditionFailed)
	}
	if !endTime.After(s.Clock.Now()) {
		return nil, fmt.Errorf("end time must be in the future: %w", ErrPreconditionFailed)
	}

	status := models.ListingStatusActive
	if draft {
		status = models.ListingStatusDraft
	}
	return db.CreateListing(ctx, s.DB.Pool, &models.Listing{
		SellerID:      sellerID,
		Title:         title,
		Description:   description,
		Status:        status,
		StartingPrice: startingPrice,
		BuyNowPrice:   buyNowPrice,
		Currency:      currency,
		EndTime:       endTime,
	})
}

// PublishListing moves a draft listing onto the market.
func (s *Service) PublishListing(ctx context.Context, listingID, sellerID int64) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if listing.SellerID != sellerID {
			return ErrNotAuthorized
		}
		ok, err := db.UpdateListingStatus(ctx, tx, listingID, models.ListingStatusDraft, models.ListingStatusActive)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("listing is not a draft: %w", ErrInvalidState)
		}
		return nil
	})
}

// CancelListing withdraws an active listing that has attracted no
// bids. Once a bid exists the auction must run its course.
func (s *Service) CancelListing(ctx context.Context, listingID, sellerID int64) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if listing.SellerID != sellerID {
			return ErrNotAuthorized
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		winning, err := db.GetWinningBid(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if winning != nil {
			return fmt.Errorf("listing has bids: %w", ErrInvalidState)
		}
		ok, err := db.UpdateListingStatus(ctx, tx, listingID, models.ListingStatusActive, models.ListingStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return ErrListingNotActive
		}
		return nil
	})
}

// EditListingPricing adjusts prices and pushes the end time later on
// an active listing with no bids. End time is monotonic even here.
func (s *Service) EditListingPricing(ctx context.Context, listingID, sellerID int64, startingPrice decimal.Decimal, buyNowPrice *decimal.Decimal, endTime time.Time) error {
	if !startingPrice.IsPositive() {
		return fmt.Errorf("starting price must be positive: %w", ErrPreconditionFailed)
	}
	return s.run(ctx, func(tx pgx.Tx) error {
		listing, err := db.GetListingForUpdate(ctx, tx, listingID)
		if err != nil {
			return notFound(err, "listing")
		}
		if listing.SellerID != sellerID {
			return ErrNotAuthorized
		}
		ok, err := db.UpdateListingPricing(ctx, tx, listingID, startingPrice, buyNowPrice, endTime)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("listing not editable: %w", ErrInvalidState)
		}
		return nil
	})
}

// GetListing retrieves a listing.
func (s *Service) GetListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	l, err := db.GetListing(ctx, s.DB.Pool, listingID)
	if err != nil {
		return nil, notFound(err, "listing")
	}
	return l, nil
}

// SearchListings runs a closed-specification listing search.
func (s *Service) SearchListings(ctx context.Context, filter db.ListingFilter) ([]models.Listing, error) {
	return db.SearchListings(ctx, s.DB.Pool, filter)
}
