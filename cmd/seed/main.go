package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/config"
	"github.com/flipbase/marketplace/internal/db"
)

// Seed the database with test data
func main() {
	ctx := context.Background()
	cfg := config.Load()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// First check if we already have listings
	var listingCount int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings").Scan(&listingCount); err != nil {
		log.Fatalf("Failed to check listings: %v", err)
	}
	if listingCount > 0 {
		fmt.Printf("Database already has %d listings. No need to seed.\n", listingCount)
		os.Exit(0)
	}

	// bcrypt hash of "password"
	const passwordHash = "$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G."

	seedUser := func(username, referralCode string) int64 {
		var id int64
		err := database.Pool.QueryRow(ctx, "SELECT id FROM users WHERE username = $1", username).Scan(&id)
		if err == nil {
			return id
		}
		err = database.Pool.QueryRow(ctx,
			"INSERT INTO users (username, password_hash, referral_code) VALUES ($1, $2, $3) RETURNING id",
			username, passwordHash, referralCode).Scan(&id)
		if err != nil {
			log.Fatalf("Failed to create user %s: %v", username, err)
		}
		return id
	}

	sellerID := seedUser("seller1", "SELLER1REF")
	buyerID := seedUser("buyer1", "BUYER1REF")
	referrerID := seedUser("referrer1", "REFERRER1R")

	// buyer1 was referred by referrer1
	if _, err := database.Pool.Exec(ctx,
		"INSERT INTO referrals (referred_user_id, referrer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		buyerID, referrerID); err != nil {
		log.Fatalf("Failed to create referral: %v", err)
	}

	// An active auction ending in a week, with a buy-now price.
	var listingID int64
	err = database.Pool.QueryRow(ctx,
		`INSERT INTO listings (seller_id, title, description, status, starting_price, buy_now_price, currency, end_time)
		 VALUES ($1, 'Recipe sharing MVP', 'Next.js app with 200 monthly users', 'active', $2, $3, 'USD', $4)
		 RETURNING id`,
		sellerID, decimal.NewFromInt(500), decimal.NewFromInt(2500), time.Now().Add(7*24*time.Hour)).Scan(&listingID)
	if err != nil {
		log.Fatalf("Failed to create listing: %v", err)
	}

	// An opening bid from buyer1.
	if _, err := database.Pool.Exec(ctx,
		"INSERT INTO bids (listing_id, bidder_id, amount, currency, winning) VALUES ($1, $2, $3, 'USD', true)",
		listingID, buyerID, decimal.NewFromInt(500)); err != nil {
		log.Fatalf("Failed to create bid: %v", err)
	}

	// A claimable withdrawal for the seller.
	if _, err := database.Pool.Exec(ctx,
		"INSERT INTO withdrawals (user_id, amount, currency) VALUES ($1, $2, 'USD')",
		sellerID, decimal.NewFromInt(120)); err != nil {
		log.Fatalf("Failed to create withdrawal: %v", err)
	}

	fmt.Println("Seeded users seller1/buyer1/referrer1 (password: password), one listing, one bid, one withdrawal.")
}
