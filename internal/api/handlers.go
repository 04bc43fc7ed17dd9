package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/flipbase/marketplace/internal/auth"
	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/market"
	"github.com/flipbase/marketplace/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Market      *market.Service
	AuthService *auth.AuthService
}

// NewHandler creates a new handler
func NewHandler(m *market.Service, authService *auth.AuthService) *Handler {
	return &Handler{Market: m, AuthService: authService}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch market.KindOf(err) {
	case market.KindNotFound:
		status = http.StatusNotFound
	case market.KindNotAuthorized:
		status = http.StatusForbidden
	case market.KindInvalidState, market.KindAlreadyClaimed:
		status = http.StatusConflict
	case market.KindPreconditionFailed:
		status = http.StatusUnprocessableEntity
	case market.KindConcurrencyConflict:
		status = http.StatusServiceUnavailable
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username      string  `json:"username"`
		Password      string  `json:"password"`
		ReferralCode  string  `json:"referral_code"`
		WalletAddress *string `json:"wallet_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password required"})
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.ReferralCode, req.WalletAddress)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to register user"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"referral_code": user.ReferralCode,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authorization header required"})
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const userIDKey contextKey = "user_id"

// UserID extracts the authenticated user from the request context.
func UserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userIDKey).(int64)
	return id, ok
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return id, ok
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// CreateListing puts a new item up for sale.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Title         string  `json:"title"`
		Description   string  `json:"description"`
		StartingPrice string  `json:"starting_price"`
		BuyNowPrice   *string `json:"buy_now_price"`
		Currency      string  `json:"currency"`
		EndTime       string  `json:"end_time"`
		Draft         bool    `json:"draft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	startingPrice, err := decimal.NewFromString(req.StartingPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid starting price"})
		return
	}
	var buyNow *decimal.Decimal
	if req.BuyNowPrice != nil {
		p, err := decimal.NewFromString(*req.BuyNowPrice)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid buy-now price"})
			return
		}
		buyNow = &p
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid end time"})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	listing, err := h.Market.CreateListing(r.Context(), sellerID, req.Title, req.Description, startingPrice, buyNow, req.Currency, endTime, req.Draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// GetListing retrieves one listing with its bid and offer history.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
		return
	}
	listing, err := h.Market.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	bids, err := h.Market.ListingBids(r.Context(), listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listing, "bids": bids})
}

// SearchListings runs the closed listing filter from query params.
func (h *Handler) SearchListings(w http.ResponseWriter, r *http.Request) {
	filter := db.ListingFilter{Text: r.URL.Query().Get("q")}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Statuses = []string{status}
	} else {
		filter.Statuses = []string{models.ListingStatusActive}
	}
	if currency := r.URL.Query().Get("currency"); currency != "" {
		filter.Currency = currency
	}
	if minStr := r.URL.Query().Get("min_price"); minStr != "" {
		if p, err := decimal.NewFromString(minStr); err == nil {
			filter.MinPrice = &p
		}
	}
	if maxStr := r.URL.Query().Get("max_price"); maxStr != "" {
		if p, err := decimal.NewFromString(maxStr); err == nil {
			filter.MaxPrice = &p
		}
	}

	listings, err := h.Market.SearchListings(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// CancelListing withdraws a bidless listing.
func (h *Handler) CancelListing(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
		return
	}
	if err := h.Market.CancelListing(r.Context(), listingID, sellerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Listing cancelled"})
}

// PlaceBid handles bid placement against an auction.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.caller(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
		return
	}

	var req struct {
		Amount         string `json:"amount"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Amount must be positive"})
		return
	}

	bid, err := h.Market.PlaceBid(r.Context(), listingID, bidderID, amount, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// CreateOffer opens a price negotiation on a listing.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
		return
	}

	var req struct {
		Amount   string `json:"amount"`
		Deadline string `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid amount"})
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid deadline"})
		return
	}

	offer, err := h.Market.CreateOffer(r.Context(), listingID, buyerID, amount, deadline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// CounterOffer posts the seller's counter terms on an active offer.
func (h *Handler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	offerID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offer ID"})
		return
	}

	var req struct {
		CounterAmount string `json:"counter_amount"`
		Message       string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.CounterAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid counter amount"})
		return
	}

	offer, err := h.Market.CounterOffer(r.Context(), offerID, sellerID, amount, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// AcceptOffer accepts an offer and opens escrow.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	offerID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offer ID"})
		return
	}

	settlement, err := h.Market.AcceptOffer(r.Context(), offerID, sellerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

// RejectOffer rejects an open offer.
func (h *Handler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	offerID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offer ID"})
		return
	}
	if err := h.Market.RejectOffer(r.Context(), offerID, sellerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Offer rejected"})
}

// WithdrawOffer cancels the caller's own open offer.
func (h *Handler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	offerID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offer ID"})
		return
	}
	if err := h.Market.WithdrawOffer(r.Context(), offerID, buyerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Offer withdrawn"})
}

// RespondToCounter is the buyer's accept/decline on a counter-offer.
func (h *Handler) RespondToCounter(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	offerID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offer ID"})
		return
	}

	var req struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	settlement, err := h.Market.RespondToCounter(r.Context(), offerID, buyerID, req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	if settlement == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Counter declined"})
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

// GetTransaction retrieves a settlement for one of its parties.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	t, err := h.Market.Transaction(r.Context(), txID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// AdvanceTransaction moves the escrow machine one step forward.
func (h *Handler) AdvanceTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	t, err := h.Market.AdvanceTransaction(r.Context(), txID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetChecklist retrieves the transfer checklist.
func (h *Handler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	items, err := h.Market.TransactionChecklist(r.Context(), txID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ConfirmChecklistItem records one side's checklist confirmation.
func (h *Handler) ConfirmChecklistItem(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid item ID"})
		return
	}
	if err := h.Market.ConfirmChecklistItem(r.Context(), txID, callerID, itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Confirmed"})
}

// CompleteTransaction finishes a fully confirmed settlement.
func (h *Handler) CompleteTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	t, err := h.Market.CompleteTransaction(r.Context(), txID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelTransaction abandons an in_escrow settlement.
func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}
	if err := h.Market.CancelTransaction(r.Context(), txID, callerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction cancelled"})
}

// SignAgreement records a replay-protected agreement signature.
func (h *Handler) SignAgreement(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}

	var req struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if err := h.Market.SignAgreement(r.Context(), txID, callerID, req.Signature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Agreement signed"})
}

// OpenDispute opens a dispute on an in-flight transaction.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Reason required"})
		return
	}

	dispute, err := h.Market.OpenDispute(r.Context(), txID, callerID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dispute)
}

// ResolveDispute settles a dispute. Resolution is an operator action:
// only admin users may perform it.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	caller, err := db.GetUserByID(r.Context(), h.Market.DB.Pool, callerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if !caller.IsAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Dispute resolution requires operator privileges"})
		return
	}
	disputeID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dispute ID"})
		return
	}

	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	t, err := h.Market.ResolveDispute(r.Context(), disputeID, req.Resolution)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetDispute retrieves a dispute for one of its parties.
func (h *Handler) GetDispute(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	disputeID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dispute ID"})
		return
	}
	dispute, err := h.Market.Dispute(r.Context(), disputeID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// AddPartner registers a contributing buyer on a settlement.
func (h *Handler) AddPartner(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	txID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction ID"})
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Partner user_id required"})
		return
	}
	if err := h.Market.AddPurchasePartner(r.Context(), txID, callerID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Partner added"})
}

// CreateWithdrawal creates a claimable payout for the caller.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid amount"})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	withdrawal, err := h.Market.CreateWithdrawal(r.Context(), callerID, amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawal)
}

// ClaimWithdrawal consumes a payout exactly once.
func (h *Handler) ClaimWithdrawal(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	withdrawalID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid withdrawal ID"})
		return
	}

	withdrawal, err := h.Market.ClaimWithdrawal(r.Context(), withdrawalID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

// GetWithdrawals lists the caller's payouts.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	withdrawals, err := h.Market.Withdrawals(r.Context(), callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

// GetNotifications retrieves the caller's recent notifications.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	notifications, err := db.GetUserNotifications(r.Context(), h.Market.DB.Pool, callerID, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}
