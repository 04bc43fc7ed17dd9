package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/models"
)

const listingColumns = "id, seller_id, title, description, status, starting_price, buy_now_price, currency, end_time, reserved_buyer_id, created_at, updated_at"

func scanListing(row interface{ Scan(...any) error }) (*models.Listing, error) {
	l := &models.Listing{}
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Status,
		&l.StartingPrice, &l.BuyNowPrice, &l.Currency, &l.EndTime,
		&l.ReservedBuyerID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CreateListing inserts a new listing.
func CreateListing(ctx context.Context, q Querier, l *models.Listing) (*models.Listing, error) {
	created, err := scanListing(q.QueryRow(ctx,
		`INSERT INTO listings (seller_id, title, description, status, starting_price, buy_now_price, currency, end_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+listingColumns,
		l.SellerID, l.Title, l.Description, l.Status, l.StartingPrice, l.BuyNowPrice, l.Currency, l.EndTime))
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	return created, nil
}

// GetListing retrieves a listing by id.
func GetListing(ctx context.Context, q Querier, id int64) (*models.Listing, error) {
	return scanListing(q.QueryRow(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE id = $1", id))
}

// GetListingForUpdate retrieves a listing with a row lock. The listing
// row is the lock boundary for all bid and offer operations.
func GetListingForUpdate(ctx context.Context, q Querier, id int64) (*models.Listing, error) {
	return scanListing(q.QueryRow(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE id = $1 FOR UPDATE", id))
}

// UpdateListingStatus moves a listing between statuses with a
// conditional update; the caller learns via the bool whether its
// attempt performed the transition.
func UpdateListingStatus(ctx context.Context, q Querier, id int64, from, to string) (bool, error) {
	tag, err := q.Exec(ctx,
		"UPDATE listings SET status = $1, updated_at = now() WHERE id = $2 AND status = $3",
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update listing status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReserveListing flips an active listing to reserved for a buyer.
func ReserveListing(ctx context.Context, q Querier, id, buyerID int64) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE listings SET status = 'reserved', reserved_buyer_id = $1, updated_at = now()
		 WHERE id = $2 AND status = 'active'`,
		buyerID, id)
	if err != nil {
		return false, fmt.Errorf("failed to reserve listing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseListing puts a reserved listing back on the market after a
// cancelled or refunded settlement.
func ReleaseListing(ctx context.Context, q Querier, id int64) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE listings SET status = 'active', reserved_buyer_id = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'reserved'`,
		id)
	if err != nil {
		return false, fmt.Errorf("failed to release listing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExtendListingEndTime pushes the auction end later, never earlier.
// The guard in the WHERE clause makes concurrent extensions monotonic.
func ExtendListingEndTime(ctx context.Context, q Querier, id int64, newEnd time.Time) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE listings SET end_time = $1, updated_at = now()
		 WHERE id = $2 AND status = 'active' AND end_time < $1`,
		newEnd, id)
	if err != nil {
		return false, fmt.Errorf("failed to extend listing end time: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateListingPricing edits price fields and end time while the
// listing is active and has no bids. End time may only move later.
func UpdateListingPricing(ctx context.Context, q Querier, id int64, startingPrice decimal.Decimal, buyNowPrice *decimal.Decimal, endTime time.Time) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE listings SET starting_price = $1, buy_now_price = $2, end_time = $3, updated_at = now()
		 WHERE id = $4 AND status = 'active' AND end_time <= $3
		   AND NOT EXISTS (SELECT 1 FROM bids WHERE listing_id = $4)`,
		startingPrice, buyNowPrice, endTime, id)
	if err != nil {
		return false, fmt.Errorf("failed to update listing pricing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireListings flips active listings whose auction has ended and
// that never attracted a bid. Returns the expired ids. Concurrent
// sweeps cannot double-fire: the conditional update only matches once.
func ExpireListings(ctx context.Context, q Querier, now time.Time) ([]int64, error) {
	rows, err := q.Query(ctx,
		`UPDATE listings SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND end_time < $1
		   AND NOT EXISTS (SELECT 1 FROM bids WHERE listing_id = listings.id AND winning)
		 RETURNING id`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire listings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EndedAuctionsWithWinner lists active listings past their end time
// that still hold a winning bid, for the sweeper to settle.
func EndedAuctionsWithWinner(ctx context.Context, q Querier, now time.Time) ([]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT l.id FROM listings l
		 WHERE l.status = 'active' AND l.end_time < $1
		   AND EXISTS (SELECT 1 FROM bids WHERE listing_id = l.id AND winning)
		 ORDER BY l.end_time ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended auctions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
