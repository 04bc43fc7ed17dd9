package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/models"
)

// ErrOpenOfferExists is returned when a buyer already has an active or
// countered offer on the same listing.
var ErrOpenOfferExists = errors.New("an open offer already exists for this buyer and listing")

const offerColumns = "id, listing_id, buyer_id, amount, currency, deadline, status, counter_amount, counter_message, created_at, updated_at"

func scanOffer(row interface{ Scan(...any) error }) (*models.Offer, error) {
	o := &models.Offer{}
	err := row.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.Amount, &o.Currency,
		&o.Deadline, &o.Status, &o.CounterAmount, &o.CounterMessage,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// InsertOffer inserts a new active offer. The partial unique index on
// open offers enforces one open negotiation per buyer per listing.
func InsertOffer(ctx context.Context, q Querier, o *models.Offer) (*models.Offer, error) {
	created, err := scanOffer(q.QueryRow(ctx,
		`INSERT INTO offers (listing_id, buyer_id, amount, currency, deadline, status)
		 VALUES ($1, $2, $3, $4, $5, 'active') RETURNING `+offerColumns,
		o.ListingID, o.BuyerID, o.Amount, o.Currency, o.Deadline))
	if isUniqueViolation(err, "offers_one_open_per_buyer") {
		return nil, ErrOpenOfferExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert offer: %w", err)
	}
	return created, nil
}

// GetOffer retrieves an offer by id.
func GetOffer(ctx context.Context, q Querier, id int64) (*models.Offer, error) {
	return scanOffer(q.QueryRow(ctx,
		"SELECT "+offerColumns+" FROM offers WHERE id = $1", id))
}

// GetOfferForUpdate retrieves an offer with a row lock.
func GetOfferForUpdate(ctx context.Context, q Querier, id int64) (*models.Offer, error) {
	return scanOffer(q.QueryRow(ctx,
		"SELECT "+offerColumns+" FROM offers WHERE id = $1 FOR UPDATE", id))
}

// UpdateOfferStatus moves an offer between statuses with a conditional
// update, reporting whether this call performed the transition.
func UpdateOfferStatus(ctx context.Context, q Querier, id int64, from, to string) (bool, error) {
	tag, err := q.Exec(ctx,
		"UPDATE offers SET status = $1, updated_at = now() WHERE id = $2 AND status = $3",
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update offer status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CounterOffer moves an active offer to countered with the seller's
// counter terms.
func CounterOffer(ctx context.Context, q Querier, id int64, counterAmount decimal.Decimal, message *string) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE offers SET status = 'countered', counter_amount = $1, counter_message = $2, updated_at = now()
		 WHERE id = $3 AND status = 'active'`,
		counterAmount, message, id)
	if err != nil {
		return false, fmt.Errorf("failed to counter offer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelSiblingOffers cancels every other open offer on a listing once
// one of them is accepted. Returns the buyers whose offers were
// cancelled so they can be notified.
func CancelSiblingOffers(ctx context.Context, q Querier, listingID, acceptedOfferID int64) ([]int64, error) {
	rows, err := q.Query(ctx,
		`UPDATE offers SET status = 'cancelled', updated_at = now()
		 WHERE listing_id = $1 AND id <> $2 AND status IN ('active', 'countered')
		 RETURNING buyer_id`,
		listingID, acceptedOfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel sibling offers: %w", err)
	}
	defer rows.Close()

	var buyers []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		buyers = append(buyers, id)
	}
	return buyers, rows.Err()
}

// ExpireOffers lazily flips open offers whose deadline has passed.
// Idempotent: an offer matches the conditional update at most once.
func ExpireOffers(ctx context.Context, q Querier, now time.Time) ([]models.Offer, error) {
	rows, err := q.Query(ctx,
		`UPDATE offers SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND deadline < $1
		 RETURNING `+offerColumns,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire offers: %w", err)
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

// GetListingOffers retrieves all offers on a listing, newest first.
func GetListingOffers(ctx context.Context, q Querier, listingID int64) ([]models.Offer, error) {
	rows, err := q.Query(ctx,
		"SELECT "+offerColumns+" FROM offers WHERE listing_id = $1 ORDER BY created_at DESC",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing offers: %w", err)
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}
