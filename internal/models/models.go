package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing statuses. A listing advances monotonically except for edits
// while ACTIVE with no bids; sold, cancelled and expired are terminal.
const (
	ListingStatusDraft     = "draft"
	ListingStatusActive    = "active"
	ListingStatusReserved  = "reserved"
	ListingStatusSold      = "sold"
	ListingStatusCancelled = "cancelled"
	ListingStatusExpired   = "expired"
)

// Offer statuses.
const (
	OfferStatusActive    = "active"
	OfferStatusCountered = "countered"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCancelled = "cancelled"
	OfferStatusExpired   = "expired"
)

// Transaction statuses. The escrow machine runs
// in_escrow -> transfer_pending -> transfer_in_progress ->
// awaiting_confirmation -> completed, with a detour to disputed from
// any pre-terminal state and cancellation only from in_escrow.
const (
	TxStatusInEscrow           = "in_escrow"
	TxStatusTransferPending    = "transfer_pending"
	TxStatusTransferInProgress = "transfer_in_progress"
	TxStatusAwaitingConfirm    = "awaiting_confirmation"
	TxStatusCompleted          = "completed"
	TxStatusDisputed           = "disputed"
	TxStatusRefunded           = "refunded"
	TxStatusCancelled          = "cancelled"
)

// Dispute statuses and resolutions.
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"

	DisputeResolutionComplete = "complete"
	DisputeResolutionRefund   = "refund"
)

// User represents a registered user
type User struct {
	ID                    int64
	Username              string
	PasswordHash          string
	WalletAddress         *string
	ReferralCode          string
	ReferralEarningsTotal decimal.Decimal
	IsAdmin               bool
	CreatedAt             time.Time
}

// Listing is an item for sale: a software product or app/MVP project.
type Listing struct {
	ID              int64            `json:"id"`
	SellerID        int64            `json:"seller_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Status          string           `json:"status"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	Currency        string           `json:"currency"`
	EndTime         time.Time        `json:"end_time"`
	ReservedBuyerID *int64           `json:"reserved_buyer_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Bid is an amount a bidder is willing to pay for a listing. Bids are
// never deleted; losing the winning flag sets outbid instead.
type Bid struct {
	ID             int64           `json:"id"`
	ListingID      int64           `json:"listing_id"`
	BidderID       int64           `json:"bidder_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Winning        bool            `json:"winning"`
	Outbid         bool            `json:"outbid"`
	IdempotencyKey *string         `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Offer is a negotiated price proposal outside the auction flow.
type Offer struct {
	ID             int64            `json:"id"`
	ListingID      int64            `json:"listing_id"`
	BuyerID        int64            `json:"buyer_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	Deadline       time.Time        `json:"deadline"`
	Status         string           `json:"status"`
	CounterAmount  *decimal.Decimal `json:"counter_amount,omitempty"`
	CounterMessage *string          `json:"counter_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Transaction is the settlement record for exactly one accepted bid or
// offer. At most one live transaction exists per listing; a cancelled
// or refunded settlement frees the listing for a new one.
type Transaction struct {
	ID             int64           `json:"id"`
	ListingID      int64           `json:"listing_id"`
	BuyerID        int64           `json:"buyer_id"`
	SellerID       int64           `json:"seller_id"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	SellerProceeds decimal.Decimal `json:"seller_proceeds"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ChecklistItem is one deliverable inside the transfer sub-protocol.
// The seller confirms delivery first; the buyer side then confirms
// receipt, by partner majority for multi-party purchases.
type ChecklistItem struct {
	ID                int64      `json:"id"`
	TransactionID     int64      `json:"transaction_id"`
	Label             string     `json:"label"`
	SellerConfirmed   bool       `json:"seller_confirmed"`
	SellerConfirmedAt *time.Time `json:"seller_confirmed_at,omitempty"`
	Confirmations     int        `json:"confirmations"`
}

// Dispute is opened against an in-flight transaction by either party.
type Dispute struct {
	ID               int64           `json:"id"`
	TransactionID    int64           `json:"transaction_id"`
	InitiatorID      int64           `json:"initiator_id"`
	RespondentID     int64           `json:"respondent_id"`
	Reason           string          `json:"reason"`
	Status           string          `json:"status"`
	Resolution       *string         `json:"resolution,omitempty"`
	Fee              decimal.Decimal `json:"fee"`
	ResponseDeadline time.Time       `json:"response_deadline"`
	ReminderSent     bool            `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Referral links a referred user to their referrer. The
// first_transaction_paid flag flips false->true exactly once.
type Referral struct {
	ID                   int64
	ReferredUserID       int64
	ReferrerID           int64
	FirstTransactionPaid bool
	CreatedAt            time.Time
}

// ReferralEarning is an immutable ledger entry recording one
// commission payout event.
type ReferralEarning struct {
	ID            int64
	ReferralID    int64
	TransactionID int64
	ReferrerID    int64
	Amount        decimal.Decimal
	Currency      string
	CreatedAt     time.Time
}

// Withdrawal is a claimable payout, claimed exactly once by its owner.
type Withdrawal struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Claimed   bool            `json:"claimed"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notification is a queued side-channel message. Delivery is
// best-effort and never part of a business transaction.
type Notification struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	Type        string     `json:"type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
