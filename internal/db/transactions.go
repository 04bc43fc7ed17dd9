package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/flipbase/marketplace/internal/models"
)

// ErrLiveTransactionExists is returned when a listing already has a
// settlement in flight that has not been cancelled or refunded.
var ErrLiveTransactionExists = errors.New("a live transaction already exists for this listing")

const txColumns = "id, listing_id, buyer_id, seller_id, sale_price, platform_fee, seller_proceeds, currency, status, created_at, updated_at"

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerID, &t.SellerID, &t.SalePrice,
		&t.PlatformFee, &t.SellerProceeds, &t.Currency, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// InsertTransaction creates the settlement record for an accepted bid
// or offer. The partial unique index on live transactions per listing
// turns a racing duplicate into ErrLiveTransactionExists.
func InsertTransaction(ctx context.Context, q Querier, t *models.Transaction) (*models.Transaction, error) {
	created, err := scanTransaction(q.QueryRow(ctx,
		`INSERT INTO transactions (listing_id, buyer_id, seller_id, sale_price, platform_fee, seller_proceeds, currency, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'in_escrow') RETURNING `+txColumns,
		t.ListingID, t.BuyerID, t.SellerID, t.SalePrice, t.PlatformFee, t.SellerProceeds, t.Currency))
	if isUniqueViolation(err, "transactions_one_live_per_listing") {
		return nil, ErrLiveTransactionExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return created, nil
}

// GetTransaction retrieves a transaction by id.
func GetTransaction(ctx context.Context, q Querier, id int64) (*models.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1", id))
}

// GetTransactionForUpdate retrieves a transaction with a row lock. The
// transaction row is the lock boundary for all escrow transitions.
func GetTransactionForUpdate(ctx context.Context, q Querier, id int64) (*models.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1 FOR UPDATE", id))
}

// UpdateTransactionStatus moves a transaction between escrow states
// with a conditional update.
func UpdateTransactionStatus(ctx context.Context, q Querier, id int64, from, to string) (bool, error) {
	tag, err := q.Exec(ctx,
		"UPDATE transactions SET status = $1, updated_at = now() WHERE id = $2 AND status = $3",
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddTransactionPartner records a contributing buyer on a multi-party
// purchase. Adding the same partner twice is a no-op.
func AddTransactionPartner(ctx context.Context, q Querier, txID, userID int64) error {
	_, err := q.Exec(ctx,
		"INSERT INTO transaction_partners (transaction_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		txID, userID)
	if err != nil {
		return fmt.Errorf("failed to add transaction partner: %w", err)
	}
	return nil
}

// CountTransactionPartners returns the number of contributing buyers.
func CountTransactionPartners(ctx context.Context, q Querier, txID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		"SELECT COUNT(*) FROM transaction_partners WHERE transaction_id = $1", txID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transaction partners: %w", err)
	}
	return n, nil
}

// IsTransactionPartner reports whether a user contributes to the
// purchase side of a transaction.
func IsTransactionPartner(ctx context.Context, q Querier, txID, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM transaction_partners WHERE transaction_id = $1 AND user_id = $2)",
		txID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction partner: %w", err)
	}
	return exists, nil
}
