package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/models"
)

// ListingFilter is the closed set of supported search clauses. Each
// field compiles to one parameterized predicate; there is no dynamic
// filter passthrough from callers.
type ListingFilter struct {
	Statuses   []string
	SellerID   *int64
	Currency   string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Text       string
	EndsBefore *time.Time
	Limit      int
}

func (f ListingFilter) compile() (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = arg(s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.SellerID != nil {
		where = append(where, "seller_id = "+arg(*f.SellerID))
	}
	if f.Currency != "" {
		where = append(where, "currency = "+arg(f.Currency))
	}
	if f.MinPrice != nil {
		where = append(where, "starting_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "starting_price <= "+arg(*f.MaxPrice))
	}
	if f.Text != "" {
		p := arg("%" + f.Text + "%")
		where = append(where, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if f.EndsBefore != nil {
		where = append(where, "end_time < "+arg(*f.EndsBefore))
	}

	query := "SELECT " + listingColumns + " FROM listings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += " LIMIT " + arg(limit)
	return query, args
}

// SearchListings runs a compiled listing filter.
func SearchListings(ctx context.Context, q Querier, filter ListingFilter) ([]models.Listing, error) {
	query, args := filter.compile()
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}
