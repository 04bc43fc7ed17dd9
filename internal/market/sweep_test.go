package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flipbase/marketplace/internal/models"
)

// recordingNotifier captures emitted notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(_ context.Context, _ int64, notifType string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notifType)
}

func (r *recordingNotifier) count(notifType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == notifType {
			n++
		}
	}
	return n
}

func TestSweep_ExpiresBidlessListings(t *testing.T) {
	resetDB(t)
	now := time.Now()
	seller := mustUser(t, "seller")
	ended := mustListing(t, seller, "100", nil, now.Add(-time.Minute))
	running := mustListing(t, seller, "100", nil, now.Add(time.Hour))

	svc := newTestService(now)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if got := listingStatus(t, ended); got != "expired" {
		t.Errorf("ended listing status = %s, want expired", got)
	}
	if got := listingStatus(t, running); got != "active" {
		t.Errorf("running listing status = %s, want active", got)
	}
}

func TestSweep_ExpiresOffers(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	buyer := mustUser(t, "buyer")
	listingID := mustListing(t, seller, "100", nil, now.Add(24*time.Hour))
	offer := mustOffer(t, svc, listingID, buyer, "90", now.Add(time.Minute))

	notifier := &recordingNotifier{}
	late := NewService(testDB, FixedClock{T: now.Add(time.Hour)}, notifier, DefaultConfig())
	if err := late.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	var status string
	if err := testDB.Pool.QueryRow(context.Background(),
		"SELECT status FROM offers WHERE id = $1", offer.ID).Scan(&status); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != models.OfferStatusExpired {
		t.Errorf("offer status = %s, want expired", status)
	}
	if n := notifier.count(NotifyOfferExpired); n != 1 {
		t.Errorf("got %d offer_expired notifications, want 1", n)
	}
}

func TestSweep_SettlesEndedAuctionWithWinner(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	bidder := mustUser(t, "bidder")
	// End far enough out that the bid does not trigger anti-snipe.
	listingID := mustListing(t, seller, "100", nil, now.Add(time.Hour))

	if _, err := svc.PlaceBid(context.Background(), listingID, bidder, dec("150"), ""); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	notifier := &recordingNotifier{}
	late := NewService(testDB, FixedClock{T: now.Add(2 * time.Hour)}, notifier, DefaultConfig())
	if err := late.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if got := listingStatus(t, listingID); got != "reserved" {
		t.Errorf("listing status = %s, want reserved", got)
	}
	var salePrice string
	err := testDB.Pool.QueryRow(context.Background(),
		"SELECT sale_price::text FROM transactions WHERE listing_id = $1 AND status = 'in_escrow'",
		listingID).Scan(&salePrice)
	if err != nil {
		t.Fatalf("settlement not found: %v", err)
	}
	if !dec(salePrice).Equal(dec("150")) {
		t.Errorf("sale price = %s, want winning bid 150", salePrice)
	}
	if n := notifier.count(NotifyAuctionWon); n != 1 {
		t.Errorf("got %d auction_won notifications, want 1", n)
	}

	// A second sweep finds nothing left to settle.
	if err := late.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if n := countRows(t, "SELECT COUNT(*) FROM transactions WHERE listing_id = $1", listingID); n != 1 {
		t.Errorf("got %d transactions after repeated sweeps, want 1", n)
	}
}

func TestSweep_DisputeReminderFiresOnce(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	buyer := mustUser(t, "buyer")
	settlement := mustSettlement(t, svc, seller, buyer)
	if _, err := svc.OpenDispute(context.Background(), settlement.ID, buyer, "no response"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	notifier := &recordingNotifier{}
	late := NewService(testDB, FixedClock{T: now.Add(svc.Config.DisputeResponseTime + time.Hour)}, notifier, DefaultConfig())
	if err := late.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if err := late.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}

	if n := notifier.count(NotifyDisputeReminder); n != 1 {
		t.Errorf("got %d dispute reminders across two sweeps, want 1", n)
	}
}

func TestSweep_ConcurrentSweepsSettleOnce(t *testing.T) {
	resetDB(t)
	now := time.Now()
	svc := newTestService(now)
	seller := mustUser(t, "seller")
	bidder := mustUser(t, "bidder")
	listingID := mustListing(t, seller, "100", nil, now.Add(time.Hour))
	if _, err := svc.PlaceBid(context.Background(), listingID, bidder, dec("150"), ""); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	late := NewService(testDB, FixedClock{T: now.Add(2 * time.Hour)}, NopNotifier{}, DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = late.Sweep(context.Background())
		}()
	}
	wg.Wait()

	if n := countRows(t, "SELECT COUNT(*) FROM transactions WHERE listing_id = $1", listingID); n != 1 {
		t.Errorf("got %d transactions after concurrent sweeps, want exactly 1", n)
	}
}
