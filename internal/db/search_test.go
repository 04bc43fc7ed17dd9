package db

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestListingFilterCompile(t *testing.T) {
	sellerID := int64(7)
	minPrice := decimal.NewFromInt(10)
	endsBefore := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	f := ListingFilter{
		Statuses:   []string{"active", "reserved"},
		SellerID:   &sellerID,
		Currency:   "USD",
		MinPrice:   &minPrice,
		Text:       "chat",
		EndsBefore: &endsBefore,
		Limit:      10,
	}
	query, args := f.compile()

	for _, clause := range []string{
		"status IN ($1, $2)",
		"seller_id = $3",
		"currency = $4",
		"starting_price >= $5",
		"ILIKE $6",
		"end_time < $7",
		"LIMIT $8",
	} {
		if !strings.Contains(query, clause) {
			t.Errorf("compiled query missing %q:\n%s", clause, query)
		}
	}
	if len(args) != 8 {
		t.Errorf("got %d args, want 8", len(args))
	}
	if args[5] != "%chat%" {
		t.Errorf("text arg = %v, want wrapped in wildcards", args[5])
	}
}

func TestListingFilterCompile_Empty(t *testing.T) {
	query, args := ListingFilter{}.compile()
	if strings.Contains(query, "WHERE") {
		t.Errorf("empty filter compiled a WHERE clause:\n%s", query)
	}
	// The default limit still applies.
	if len(args) != 1 || args[0] != 50 {
		t.Errorf("args = %v, want just the default limit 50", args)
	}
}

func TestListingFilterCompile_LimitClamped(t *testing.T) {
	_, args := ListingFilter{Limit: 5000}.compile()
	if args[len(args)-1] != 50 {
		t.Errorf("oversized limit compiled to %v, want clamped to 50", args[len(args)-1])
	}
}
