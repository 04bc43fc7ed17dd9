package db

import (
	"context"
	"fmt"

	"github.com/flipbase/marketplace/internal/models"
)

// InsertReferral links a newly registered user to their referrer.
func InsertReferral(ctx context.Context, q Querier, referredUserID, referrerID int64) (*models.Referral, error) {
	r := &models.Referral{}
	err := q.QueryRow(ctx,
		`INSERT INTO referrals (referred_user_id, referrer_id) VALUES ($1, $2)
		 RETURNING id, referred_user_id, referrer_id, first_transaction_paid, created_at`,
		referredUserID, referrerID).Scan(&r.ID, &r.ReferredUserID, &r.ReferrerID, &r.FirstTransactionPaid, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert referral: %w", err)
	}
	return r, nil
}

// InsertReferralEarning appends one immutable commission ledger entry.
// The unique constraint on referral_id backs up the claim primitive:
// a second earning for the same referral cannot be written.
func InsertReferralEarning(ctx context.Context, q Querier, e *models.ReferralEarning) (*models.ReferralEarning, error) {
	created := &models.ReferralEarning{}
	err := q.QueryRow(ctx,
		`INSERT INTO referral_earnings (referral_id, transaction_id, referrer_id, amount, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, referral_id, transaction_id, referrer_id, amount, currency, created_at`,
		e.ReferralID, e.TransactionID, e.ReferrerID, e.Amount, e.Currency).Scan(
		&created.ID, &created.ReferralID, &created.TransactionID, &created.ReferrerID,
		&created.Amount, &created.Currency, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert referral earning: %w", err)
	}
	return created, nil
}

// GetReferralEarnings retrieves a referrer's commission ledger.
func GetReferralEarnings(ctx context.Context, q Querier, referrerID int64) ([]models.ReferralEarning, error) {
	rows, err := q.Query(ctx,
		`SELECT id, referral_id, transaction_id, referrer_id, amount, currency, created_at
		 FROM referral_earnings WHERE referrer_id = $1 ORDER BY created_at DESC`,
		referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.ReferralEarning
	for rows.Next() {
		var e models.ReferralEarning
		if err := rows.Scan(&e.ID, &e.ReferralID, &e.TransactionID, &e.ReferrerID,
			&e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}
