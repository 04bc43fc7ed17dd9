package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/db"
)

// Notification types emitted by the engines.
const (
	NotifyOutbid          = "outbid"
	NotifyAuctionExtended = "auction_extended"
	NotifyAuctionWon      = "auction_won"
	NotifyOfferReceived   = "offer_received"
	NotifyOfferCountered  = "offer_countered"
	NotifyOfferAccepted   = "offer_accepted"
	NotifyOfferRejected   = "offer_rejected"
	NotifyOfferCancelled  = "offer_cancelled"
	NotifyOfferExpired    = "offer_expired"
	NotifySaleReserved    = "sale_reserved"
	NotifyPartnerAdded    = "partner_added"
	NotifyEscrowAdvanced  = "escrow_advanced"
	NotifySaleCompleted   = "sale_completed"
	NotifySaleRefunded    = "sale_refunded"
	NotifySaleCancelled   = "sale_cancelled"
	NotifyDisputeOpened   = "dispute_opened"
	NotifyDisputeResolved = "dispute_resolved"
	NotifyDisputeReminder = "dispute_reminder"
	NotifyReferralPayout  = "referral_payout"
)

// Notifier delivers side-channel messages. Delivery is fire-and-forget
// and must never fail a business operation; implementations log their
// own errors.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notifType string, payload map[string]any)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, int64, string, map[string]any) {}

// Config carries the tunables of the engines.
type Config struct {
	// AntiSnipeWindow is how close to the auction end a bid must land
	// to trigger an extension; AntiSnipeExtension is how far past the
	// bid the end moves.
	AntiSnipeWindow     time.Duration
	AntiSnipeExtension  time.Duration
	DisputeResponseTime time.Duration
	// ChecklistLabels seeds the transfer checklist of every new
	// settlement.
	ChecklistLabels []string
	Fees            FeeSchedule
}

// DefaultConfig matches the production marketplace settings.
func DefaultConfig() Config {
	return Config{
		AntiSnipeWindow:     5 * time.Minute,
		AntiSnipeExtension:  10 * time.Minute,
		DisputeResponseTime: 72 * time.Hour,
		ChecklistLabels:     []string{"source_code", "domain_and_hosting", "documentation"},
		Fees:                DefaultFeeSchedule(),
	}
}

// Service is the marketplace core: the bidding engine, the offer
// negotiation engine, the escrow state machine and referral accrual.
// It holds no business state in memory; all cross-request coordination
// goes through the store.
type Service struct {
	DB       *db.DB
	Clock    Clock
	Notifier Notifier
	Config   Config
}

// NewService creates a marketplace service.
func NewService(database *db.DB, clock Clock, notifier Notifier, cfg Config) *Service {
	if clock == nil {
		clock = RealClock()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{DB: database, Clock: clock, Notifier: notifier, Config: cfg}
}

// note is a notification collected during a transaction and emitted
// only after commit, so a rolled-back operation notifies nobody and a
// failed delivery rolls back nothing.
type note struct {
	userID  int64
	typ     string
	payload map[string]any
}

func (s *Service) emit(ctx context.Context, notes []note) {
	for _, n := range notes {
		s.Notifier.Notify(ctx, n.userID, n.typ, n.payload)
	}
}

// run wraps db.RunSerializable, translating store-level failures into
// the engine error taxonomy.
func (s *Service) run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	err := s.DB.RunSerializable(ctx, fn)
	if errors.Is(err, db.ErrSerializationFailure) {
		return fmt.Errorf("%v: %w", err, ErrConcurrencyConflict)
	}
	return err
}

// notFound converts a row lookup miss into the taxonomy.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
