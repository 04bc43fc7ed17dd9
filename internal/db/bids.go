package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/models"
)

const bidColumns = "id, listing_id, bidder_id, amount, currency, winning, outbid, idempotency_key, created_at"

func scanBid(row interface{ Scan(...any) error }) (*models.Bid, error) {
	b := &models.Bid{}
	err := row.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.Amount, &b.Currency,
		&b.Winning, &b.Outbid, &b.IdempotencyKey, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// InsertBid inserts a new winning bid.
func InsertBid(ctx context.Context, q Querier, bid *models.Bid) (*models.Bid, error) {
	created, err := scanBid(q.QueryRow(ctx,
		`INSERT INTO bids (listing_id, bidder_id, amount, currency, winning, idempotency_key)
		 VALUES ($1, $2, $3, $4, true, $5) RETURNING `+bidColumns,
		bid.ListingID, bid.BidderID, bid.Amount, bid.Currency, bid.IdempotencyKey))
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}
	return created, nil
}

// GetWinningBid returns the current winning bid for a listing, or nil
// if the listing has no bids yet.
func GetWinningBid(ctx context.Context, q Querier, listingID int64) (*models.Bid, error) {
	bid, err := scanBid(q.QueryRow(ctx,
		"SELECT "+bidColumns+" FROM bids WHERE listing_id = $1 AND winning", listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get winning bid: %w", err)
	}
	return bid, nil
}

// GetBidByIdempotencyKey looks up a previously inserted bid for a
// client-retried request.
func GetBidByIdempotencyKey(ctx context.Context, q Querier, listingID int64, key string) (*models.Bid, error) {
	bid, err := scanBid(q.QueryRow(ctx,
		"SELECT "+bidColumns+" FROM bids WHERE listing_id = $1 AND idempotency_key = $2",
		listingID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bid by idempotency key: %w", err)
	}
	return bid, nil
}

// DemoteWinningBid flips a bid out of the winning slot, marking it
// outbid. Bids are never deleted.
func DemoteWinningBid(ctx context.Context, q Querier, bidID int64) error {
	tag, err := q.Exec(ctx,
		"UPDATE bids SET winning = false, outbid = true WHERE id = $1 AND winning",
		bidID)
	if err != nil {
		return fmt.Errorf("failed to demote winning bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid %d was not winning", bidID)
	}
	return nil
}

// GetListingBids retrieves all bids on a listing, newest first.
func GetListingBids(ctx context.Context, q Querier, listingID int64) ([]models.Bid, error) {
	rows, err := q.Query(ctx,
		"SELECT "+bidColumns+" FROM bids WHERE listing_id = $1 ORDER BY created_at DESC",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

// GetDistinctBidders returns every distinct bidder on a listing,
// optionally excluding one user (e.g. the bidder who just bid).
func GetDistinctBidders(ctx context.Context, q Querier, listingID int64, exclude int64) ([]int64, error) {
	rows, err := q.Query(ctx,
		"SELECT DISTINCT bidder_id FROM bids WHERE listing_id = $1 AND bidder_id <> $2",
		listingID, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct bidders: %w", err)
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
