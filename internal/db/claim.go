package db

// The claim primitive: transition a row's "already consumed" flag from
// false to true in one conditional UPDATE scoped by (id, owner,
// flag=false). Exactly one concurrent caller sees claimed=true; the
// rest see the post-claim snapshot and claimed=false. Callers that do
// not own the row get pgx.ErrNoRows from the follow-up probe, which
// the engine maps to NotFound/NotAuthorized without revealing whether
// someone else already claimed the resource.

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/models"
)

const withdrawalColumns = "id, user_id, amount, currency, claimed, claimed_at, created_at"

func scanWithdrawal(row interface{ Scan(...any) error }) (*models.Withdrawal, error) {
	w := &models.Withdrawal{}
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.Claimed, &w.ClaimedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ClaimWithdrawal attempts to consume a withdrawal on behalf of its
// owner. Returns the post-claim snapshot and whether this caller's
// attempt performed the transition.
func ClaimWithdrawal(ctx context.Context, q Querier, withdrawalID, userID int64) (*models.Withdrawal, bool, error) {
	w, err := scanWithdrawal(q.QueryRow(ctx,
		`UPDATE withdrawals SET claimed = true, claimed_at = now()
		 WHERE id = $1 AND user_id = $2 AND NOT claimed
		 RETURNING `+withdrawalColumns,
		withdrawalID, userID))
	if err == nil {
		return w, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim withdrawal: %w", err)
	}

	// Lost the race or nothing to claim: probe within the same owner
	// scope so non-owners cannot distinguish claimed from absent.
	w, err = scanWithdrawal(q.QueryRow(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = $1 AND user_id = $2",
		withdrawalID, userID))
	if err != nil {
		return nil, false, err
	}
	return w, false, nil
}

// ClaimReferralPayout attempts to consume a referred user's one-time
// commission eligibility. Returns (nil, false, nil) when the user has
// no referral record at all.
func ClaimReferralPayout(ctx context.Context, q Querier, referredUserID int64) (*models.Referral, bool, error) {
	r := &models.Referral{}
	err := q.QueryRow(ctx,
		`UPDATE referrals SET first_transaction_paid = true
		 WHERE referred_user_id = $1 AND NOT first_transaction_paid
		 RETURNING id, referred_user_id, referrer_id, first_transaction_paid, created_at`,
		referredUserID).Scan(&r.ID, &r.ReferredUserID, &r.ReferrerID, &r.FirstTransactionPaid, &r.CreatedAt)
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim referral payout: %w", err)
	}

	err = q.QueryRow(ctx,
		`SELECT id, referred_user_id, referrer_id, first_transaction_paid, created_at
		 FROM referrals WHERE referred_user_id = $1`,
		referredUserID).Scan(&r.ID, &r.ReferredUserID, &r.ReferrerID, &r.FirstTransactionPaid, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

// ClaimAgreementNonce consumes a single-use signature nonce keyed by
// transaction + signature prefix. A replayed signature finds the row
// already present and the claim reports false.
func ClaimAgreementNonce(ctx context.Context, q Querier, txID int64, signaturePrefix string) (bool, error) {
	tag, err := q.Exec(ctx,
		"INSERT INTO agreement_nonces (transaction_id, signature_prefix) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		txID, signaturePrefix)
	if err != nil {
		return false, fmt.Errorf("failed to claim agreement nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
