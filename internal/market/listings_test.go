package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

func TestCreateListing_Validation(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name     string
		title    string
		starting string
		buyNow   string
		endTime  time.Time
	}{
		{"EmptyTitle", "", "100", "", future},
		{"ZeroStartingPrice", "app", "0", "", future},
		{"BuyNowBelowStarting", "app", "100", "99", future},
		{"EndTimeInPast", "app", "100", "", now.Add(-time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateListing(context.Background(), seller, tt.title, "", dec(tt.starting), optDec(tt.buyNow), "USD", tt.endTime, false)
			if !errors.Is(err, ErrPreconditionFailed) {
				t.Errorf("expected ErrPreconditionFailed, got %v", err)
			}
		})
	}
}

func TestPublishListing_DraftFlow(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	bidder := mustUser(t, "bidder")

	listing, err := svc.CreateListing(context.Background(), seller, "mvp project", "", dec("100"), nil, "USD", now.Add(24*time.Hour), true)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if listing.Status != models.ListingStatusDraft {
		t.Fatalf("status = %s, want draft", listing.Status)
	}

	// Drafts take no bids.
	if _, err := svc.PlaceBid(context.Background(), listing.ID, bidder, dec("100"), ""); !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("expected ErrListingNotActive for draft, got %v", err)
	}

	if err := svc.PublishListing(context.Background(), listing.ID, bidder); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := svc.PublishListing(context.Background(), listing.ID, seller); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}
	if _, err := svc.PlaceBid(context.Background(), listing.ID, bidder, dec("100"), ""); err != nil {
		t.Fatalf("bid on published listing: %v", err)
	}
}

func TestCancelListing_BlockedByBids(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	bidder := mustUser(t, "bidder")
	listingID := mustListing(t, seller, "100", nil, now.Add(24*time.Hour))

	if _, err := svc.PlaceBid(context.Background(), listingID, bidder, dec("120"), ""); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if err := svc.CancelListing(context.Background(), listingID, seller); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState with bids present, got %v", err)
	}

	fresh := mustListing(t, seller, "100", nil, now.Add(24*time.Hour))
	if err := svc.CancelListing(context.Background(), fresh, seller); err != nil {
		t.Fatalf("CancelListing: %v", err)
	}
	if got := listingStatus(t, fresh); got != "cancelled" {
		t.Errorf("listing status = %s, want cancelled", got)
	}
}

func TestEditListingPricing_BlockedByBids(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	bidder := mustUser(t, "bidder")
	listingID := mustListing(t, seller, "100", nil, now.Add(24*time.Hour))

	if err := svc.EditListingPricing(context.Background(), listingID, seller, dec("120"), nil, now.Add(48*time.Hour)); err != nil {
		t.Fatalf("EditListingPricing: %v", err)
	}

	if _, err := svc.PlaceBid(context.Background(), listingID, bidder, dec("120"), ""); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if err := svc.EditListingPricing(context.Background(), listingID, seller, dec("150"), nil, now.Add(48*time.Hour)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after bids, got %v", err)
	}
}

func TestSearchListings_Filter(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	other := mustUser(t, "other")
	ctx := context.Background()

	if _, err := svc.CreateListing(ctx, seller, "chat app mvp", "", dec("100"), nil, "USD", now.Add(24*time.Hour), false); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if _, err := svc.CreateListing(ctx, seller, "analytics dashboard", "", dec("500"), nil, "USD", now.Add(24*time.Hour), false); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if _, err := svc.CreateListing(ctx, other, "chat bot", "", dec("900"), nil, "EUR", now.Add(24*time.Hour), false); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	got, err := svc.SearchListings(ctx, db.ListingFilter{Text: "chat"})
	if err != nil {
		t.Fatalf("SearchListings: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("text filter: got %d listings, want 2", len(got))
	}

	maxPrice := dec("400")
	got, err = svc.SearchListings(ctx, db.ListingFilter{SellerID: &seller, MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("SearchListings: %v", err)
	}
	if len(got) != 1 || got[0].Title != "chat app mvp" {
		t.Errorf("seller+price filter: got %v, want the single cheap listing", got)
	}

	got, err = svc.SearchListings(ctx, db.ListingFilter{Currency: "EUR"})
	if err != nil {
		t.Fatalf("SearchListings: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("currency filter: got %d listings, want 1", len(got))
	}
}
