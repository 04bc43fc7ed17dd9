package market

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// accrueReferrals pays the one-time referral commission on a completed
// transaction. Buyer and seller sides are evaluated independently: a
// single completion can pay both referrers, each capped at one payment
// ever per referred user by the claim on first_transaction_paid. Runs
// inside the completion transaction so concurrent completions cannot
// both observe the flag unset.
func (s *Service) accrueReferrals(ctx context.Context, tx pgx.Tx, t *models.Transaction) ([]note, error) {
	var notes []note
	for _, userID := range []int64{t.BuyerID, t.SellerID} {
		referral, claimed, err := db.ClaimReferralPayout(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// No referral record, or the first-transaction commission
			// was already paid.
			continue
		}

		commission := s.Config.Fees.ReferralCommission(t.SalePrice)
		earning, err := db.InsertReferralEarning(ctx, tx, &models.ReferralEarning{
			ReferralID:    referral.ID,
			TransactionID: t.ID,
			ReferrerID:    referral.ReferrerID,
			Amount:        commission,
			Currency:      t.Currency,
		})
		if err != nil {
			return nil, err
		}
		if err := db.AddReferralEarnings(ctx, tx, referral.ReferrerID, commission); err != nil {
			return nil, err
		}
		notes = append(notes, note{referral.ReferrerID, NotifyReferralPayout, map[string]any{
			"referral_id": referral.ID, "earning_id": earning.ID, "amount": commission.String(), "currency": t.Currency,
		}})
	}
	return notes, nil
}

// CreateWithdrawal creates a claimable payout record for a user.
func (s *Service) CreateWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, currency string) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, ErrPreconditionFailed
	}
	return db.InsertWithdrawal(ctx, s.DB.Pool, userID, amount, currency)
}

// ClaimWithdrawal consumes a payout exactly once on behalf of its
// owner. A caller who does not own the withdrawal gets NotFound
// without learning whether it was already claimed.
func (s *Service) ClaimWithdrawal(ctx context.Context, withdrawalID, callerID int64) (*models.Withdrawal, error) {
	w, claimed, err := db.ClaimWithdrawal(ctx, s.DB.Pool, withdrawalID, callerID)
	if err != nil {
		return nil, notFound(err, "withdrawal")
	}
	if !claimed {
		return w, ErrAlreadyClaimed
	}
	return w, nil
}

// Withdrawals lists a user's payouts, newest first.
func (s *Service) Withdrawals(ctx context.Context, userID int64) ([]models.Withdrawal, error) {
	return db.GetUserWithdrawals(ctx, s.DB.Pool, userID)
}

// ReferralEarnings returns a referrer's commission ledger.
func (s *Service) ReferralEarnings(ctx context.Context, referrerID int64) ([]models.ReferralEarning, error) {
	return db.GetReferralEarnings(ctx, s.DB.Pool, referrerID)
}
