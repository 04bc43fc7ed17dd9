package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/models"
)

const userColumns = "id, username, password_hash, wallet_address, referral_code, referral_earnings_total, is_admin, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.WalletAddress,
		&user.ReferralCode, &user.ReferralEarningsTotal, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a new user
func CreateUser(ctx context.Context, q Querier, username, passwordHash, referralCode string, walletAddress *string) (*models.User, error) {
	user, err := scanUser(q.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, referral_code, wallet_address) VALUES ($1, $2, $3, $4) RETURNING "+userColumns,
		username, passwordHash, referralCode, walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func GetUserByUsername(ctx context.Context, q Querier, username string) (*models.User, error) {
	user, err := scanUser(q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id
func GetUserByID(ctx context.Context, q Querier, id int64) (*models.User, error) {
	user, err := scanUser(q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByReferralCode resolves a referral code to its owner.
func GetUserByReferralCode(ctx context.Context, q Querier, code string) (*models.User, error) {
	user, err := scanUser(q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE referral_code = $1", code))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AddReferralEarnings increments a referrer's durable running total.
// A single conditional-free UPDATE keeps the counter coherent across
// worker instances; no in-process accumulator is involved.
func AddReferralEarnings(ctx context.Context, q Querier, userID int64, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx,
		"UPDATE users SET referral_earnings_total = referral_earnings_total + $1 WHERE id = $2",
		amount, userID)
	if err != nil {
		return fmt.Errorf("failed to add referral earnings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referrer %d not found", userID)
	}
	return nil
}
