package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/models"
)

// InsertWithdrawal creates a claimable payout record for a user.
func InsertWithdrawal(ctx context.Context, q Querier, userID int64, amount decimal.Decimal, currency string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(q.QueryRow(ctx,
		`INSERT INTO withdrawals (user_id, amount, currency) VALUES ($1, $2, $3)
		 RETURNING `+withdrawalColumns,
		userID, amount, currency))
	if err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return w, nil
}

// GetUserWithdrawals retrieves a user's withdrawals, newest first.
func GetUserWithdrawals(ctx context.Context, q Querier, userID int64) ([]models.Withdrawal, error) {
	rows, err := q.Query(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}
