package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"
)

// advanceSteps are the forward transitions of the escrow machine the
// seller drives explicitly. Completion and dispute detours have their
// own operations.
var advanceSteps = map[string]string{
	models.TxStatusInEscrow:        models.TxStatusTransferPending,
	models.TxStatusTransferPending: models.TxStatusTransferInProgress,
}

// disputableStates are the escrow states from which either party may
// open a dispute.
var disputableStates = map[string]bool{
	models.TxStatusInEscrow:           true,
	models.TxStatusTransferPending:    true,
	models.TxStatusTransferInProgress: true,
	models.TxStatusAwaitingConfirm:    true,
}

// RequiredMajority is the purchase-partner majority rule: more than
// half of n contributing buyers must confirm.
func RequiredMajority(n int) int {
	return n/2 + 1
}

func isParty(t *models.Transaction, userID int64) bool {
	return userID == t.BuyerID || userID == t.SellerID
}

func otherParty(t *models.Transaction, userID int64) int64 {
	if userID == t.BuyerID {
		return t.SellerID
	}
	return t.BuyerID
}

// AdvanceTransaction moves the escrow machine one step forward:
// in_escrow -> transfer_pending -> transfer_in_progress. Only the
// seller drives the transfer.
func (s *Service) AdvanceTransaction(ctx context.Context, txID, callerID int64) (*models.Transaction, error) {
	var (
		advanced *models.Transaction
		notes    []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if t.SellerID != callerID {
			return ErrNotAParty
		}
		next, ok := advanceSteps[t.Status]
		if !ok {
			return fmt.Errorf("cannot advance from %s: %w", t.Status, ErrInvalidState)
		}
		moved, err := db.UpdateTransactionStatus(ctx, tx, txID, t.Status, next)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("cannot advance from %s: %w", t.Status, ErrInvalidState)
		}
		advanced, err = db.GetTransaction(ctx, tx, txID)
		if err != nil {
			return err
		}
		notes = append(notes, note{t.BuyerID, NotifyEscrowAdvanced, map[string]any{
			"transaction_id": txID, "status": next,
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return advanced, nil
}

// ConfirmChecklistItem records one side's confirmation of a transfer
// checklist item. The seller confirms delivery first; buyers and
// purchase partners then confirm receipt, with a majority of partners
// required per item. When every item is satisfied on both sides the
// transaction moves to awaiting_confirmation.
func (s *Service) ConfirmChecklistItem(ctx context.Context, txID, callerID, itemID int64) error {
	var notes []note
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if t.Status != models.TxStatusTransferPending && t.Status != models.TxStatusTransferInProgress {
			return fmt.Errorf("checklist is not open in %s: %w", t.Status, ErrInvalidState)
		}

		item, err := db.GetChecklistItem(ctx, tx, itemID)
		if err != nil {
			return notFound(err, "checklist item")
		}
		if item.TransactionID != txID {
			return fmt.Errorf("checklist item: %w", ErrNotFound)
		}

		if callerID == t.SellerID {
			if err := db.ConfirmChecklistItemSeller(ctx, tx, itemID); err != nil {
				if errors.Is(err, db.ErrAlreadyConfirmed) {
					return ErrAlreadyConfirmed
				}
				return err
			}
		} else {
			partner, err := db.IsTransactionPartner(ctx, tx, txID, callerID)
			if err != nil {
				return err
			}
			if !partner {
				return ErrNotAParty
			}
			// Seller-first ordering: receipt cannot be confirmed
			// before delivery.
			if !item.SellerConfirmed {
				return ErrChecklistItemNotSellerConfirmed
			}
			if err := db.ConfirmChecklistItemBuyer(ctx, tx, itemID, callerID); err != nil {
				if errors.Is(err, db.ErrAlreadyConfirmed) {
					return ErrAlreadyConfirmed
				}
				return err
			}
		}

		done, err := s.checklistSatisfied(ctx, tx, txID)
		if err != nil {
			return err
		}
		if done {
			if _, err := db.UpdateTransactionStatus(ctx, tx, txID, t.Status, models.TxStatusAwaitingConfirm); err != nil {
				return err
			}
			notes = append(notes,
				note{t.BuyerID, NotifyEscrowAdvanced, map[string]any{"transaction_id": txID, "status": models.TxStatusAwaitingConfirm}},
				note{t.SellerID, NotifyEscrowAdvanced, map[string]any{"transaction_id": txID, "status": models.TxStatusAwaitingConfirm}})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notes)
	return nil
}

// checklistSatisfied reports whether every item is seller-confirmed
// and holds a partner majority of receipt confirmations.
func (s *Service) checklistSatisfied(ctx context.Context, tx pgx.Tx, txID int64) (bool, error) {
	items, err := db.GetChecklist(ctx, tx, txID)
	if err != nil {
		return false, err
	}
	partners, err := db.CountTransactionPartners(ctx, tx, txID)
	if err != nil {
		return false, err
	}
	required := RequiredMajority(partners)
	for _, item := range items {
		if !item.SellerConfirmed || item.Confirmations < required {
			return false, nil
		}
	}
	return len(items) > 0, nil
}

// CompleteTransaction finishes a settlement whose checklist is fully
// confirmed. Either party may trigger it from awaiting_confirmation.
// Completion pays referral commissions exactly once inside the same
// transaction.
func (s *Service) CompleteTransaction(ctx context.Context, txID, callerID int64) (*models.Transaction, error) {
	var (
		completed *models.Transaction
		notes     []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if !isParty(t, callerID) {
			return ErrNotAParty
		}
		if t.Status != models.TxStatusAwaitingConfirm {
			return fmt.Errorf("cannot complete from %s: %w", t.Status, ErrInvalidState)
		}

		notes, err = s.completeLocked(ctx, tx, t, t.Status)
		if err != nil {
			return err
		}
		completed, err = db.GetTransaction(ctx, tx, txID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return completed, nil
}

// completeLocked flips a locked transaction to completed, marks the
// listing sold and runs referral accrual. Callers hold the transaction
// row lock and have already authorized the transition.
func (s *Service) completeLocked(ctx context.Context, tx pgx.Tx, t *models.Transaction, from string) ([]note, error) {
	moved, err := db.UpdateTransactionStatus(ctx, tx, t.ID, from, models.TxStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("cannot complete from %s: %w", from, ErrInvalidState)
	}
	if _, err := db.UpdateListingStatus(ctx, tx, t.ListingID, models.ListingStatusReserved, models.ListingStatusSold); err != nil {
		return nil, err
	}

	notes := []note{
		{t.BuyerID, NotifySaleCompleted, map[string]any{"transaction_id": t.ID}},
		{t.SellerID, NotifySaleCompleted, map[string]any{"transaction_id": t.ID}},
	}
	accrualNotes, err := s.accrueReferrals(ctx, tx, t)
	if err != nil {
		return nil, err
	}
	return append(notes, accrualNotes...), nil
}

// OpenDispute opens a dispute against an in-flight transaction. The
// one-dispute-per-transaction invariant is enforced by the store's
// unique constraint, so concurrent openings lose cleanly.
func (s *Service) OpenDispute(ctx context.Context, txID, initiatorID int64, reason string) (*models.Dispute, error) {
	var (
		dispute *models.Dispute
		notes   []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if !isParty(t, initiatorID) {
			return ErrNotAParty
		}
		exists, err := db.TransactionHasDispute(ctx, tx, txID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDisputeAlreadyExists
		}
		if !disputableStates[t.Status] {
			return ErrInvalidStateForDispute
		}

		dispute, err = db.InsertDispute(ctx, tx, &models.Dispute{
			TransactionID:    txID,
			InitiatorID:      initiatorID,
			RespondentID:     otherParty(t, initiatorID),
			Reason:           reason,
			Fee:              s.Config.Fees.DisputeFee(t.SalePrice),
			ResponseDeadline: s.Clock.Now().Add(s.Config.DisputeResponseTime),
		})
		if errors.Is(err, db.ErrDisputeExists) {
			return ErrDisputeAlreadyExists
		}
		if err != nil {
			return err
		}

		moved, err := db.UpdateTransactionStatus(ctx, tx, txID, t.Status, models.TxStatusDisputed)
		if err != nil {
			return err
		}
		if !moved {
			return ErrInvalidStateForDispute
		}
		notes = append(notes, note{dispute.RespondentID, NotifyDisputeOpened, map[string]any{
			"transaction_id": txID, "dispute_id": dispute.ID, "response_deadline": dispute.ResponseDeadline,
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return dispute, nil
}

// ResolveDispute settles a disputed transaction either way: complete
// pays out through the normal completion path, refund returns the
// listing to the market. Resolution is performed by platform staff;
// the admin gate lives in the request layer.
func (s *Service) ResolveDispute(ctx context.Context, disputeID int64, resolution string) (*models.Transaction, error) {
	if resolution != models.DisputeResolutionComplete && resolution != models.DisputeResolutionRefund {
		return nil, fmt.Errorf("unknown resolution %q: %w", resolution, ErrPreconditionFailed)
	}

	var (
		resolved *models.Transaction
		notes    []note
	)
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		dispute, err := db.GetDisputeForUpdate(ctx, tx, disputeID)
		if err != nil {
			return notFound(err, "dispute")
		}
		if dispute.Status != models.DisputeStatusOpen {
			return fmt.Errorf("dispute already resolved: %w", ErrInvalidState)
		}
		t, err := db.GetTransactionForUpdate(ctx, tx, dispute.TransactionID)
		if err != nil {
			return err
		}
		if t.Status != models.TxStatusDisputed {
			return fmt.Errorf("transaction is not disputed: %w", ErrInvalidState)
		}

		ok, err := db.ResolveDispute(ctx, tx, disputeID, resolution)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dispute already resolved: %w", ErrInvalidState)
		}

		if resolution == models.DisputeResolutionComplete {
			notes, err = s.completeLocked(ctx, tx, t, models.TxStatusDisputed)
			if err != nil {
				return err
			}
		} else {
			moved, err := db.UpdateTransactionStatus(ctx, tx, t.ID, models.TxStatusDisputed, models.TxStatusRefunded)
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("transaction is not disputed: %w", ErrInvalidState)
			}
			if _, err := db.ReleaseListing(ctx, tx, t.ListingID); err != nil {
				return err
			}
			notes = append(notes,
				note{t.BuyerID, NotifySaleRefunded, map[string]any{"transaction_id": t.ID}},
				note{t.SellerID, NotifySaleRefunded, map[string]any{"transaction_id": t.ID}})
		}

		for _, party := range []int64{dispute.InitiatorID, dispute.RespondentID} {
			notes = append(notes, note{party, NotifyDisputeResolved, map[string]any{
				"dispute_id": disputeID, "resolution": resolution,
			}})
		}
		resolved, err = db.GetTransaction(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notes)
	return resolved, nil
}

// AddPurchasePartner registers a contributing buyer on a multi-party
// purchase. Only the lead buyer may add partners, and only while the
// settlement is still in escrow, so the majority denominator is fixed
// before the checklist opens.
func (s *Service) AddPurchasePartner(ctx context.Context, txID, callerID, partnerID int64) error {
	var notes []note
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if t.BuyerID != callerID {
			return ErrNotAParty
		}
		if t.Status != models.TxStatusInEscrow {
			return fmt.Errorf("cannot add partners in %s: %w", t.Status, ErrInvalidState)
		}
		if partnerID == t.SellerID {
			return fmt.Errorf("seller cannot join the purchase side: %w", ErrPreconditionFailed)
		}
		if _, err := db.GetUserByID(ctx, tx, partnerID); err != nil {
			return notFound(err, "partner")
		}
		if err := db.AddTransactionPartner(ctx, tx, txID, partnerID); err != nil {
			return err
		}
		notes = append(notes, note{partnerID, NotifyPartnerAdded, map[string]any{
			"transaction_id": txID,
		}})
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notes)
	return nil
}

// CancelTransaction abandons a settlement before any escrow funds are
// confirmed. Only reachable from in_escrow; the listing goes back on
// the market.
func (s *Service) CancelTransaction(ctx context.Context, txID, callerID int64) error {
	var notes []note
	err := s.run(ctx, func(tx pgx.Tx) error {
		notes = notes[:0]

		t, err := db.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if !isParty(t, callerID) {
			return ErrNotAParty
		}
		if t.Status != models.TxStatusInEscrow {
			return fmt.Errorf("cannot cancel from %s: %w", t.Status, ErrInvalidState)
		}

		moved, err := db.UpdateTransactionStatus(ctx, tx, txID, models.TxStatusInEscrow, models.TxStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("cannot cancel from %s: %w", t.Status, ErrInvalidState)
		}
		if _, err := db.ReleaseListing(ctx, tx, t.ListingID); err != nil {
			return err
		}
		notes = append(notes, note{otherParty(t, callerID), NotifySaleCancelled, map[string]any{
			"transaction_id": txID,
		}})
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notes)
	return nil
}

// SignAgreement records a party's signature on the asset purchase
// agreement. The nonce claim keyed by transaction + signature prefix
// makes a replayed signature fail instead of double-recording.
func (s *Service) SignAgreement(ctx context.Context, txID, callerID int64, signature string) error {
	if signature == "" {
		return fmt.Errorf("signature required: %w", ErrPreconditionFailed)
	}
	prefix := signature
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	return s.run(ctx, func(tx pgx.Tx) error {
		t, err := db.GetTransaction(ctx, tx, txID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if !isParty(t, callerID) {
			return ErrNotAParty
		}
		claimed, err := db.ClaimAgreementNonce(ctx, tx, txID, prefix)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrSignatureReplayed
		}
		return nil
	})
}

// Dispute returns a dispute visible only to its parties.
func (s *Service) Dispute(ctx context.Context, disputeID, callerID int64) (*models.Dispute, error) {
	d, err := db.GetDispute(ctx, s.DB.Pool, disputeID)
	if err != nil {
		return nil, notFound(err, "dispute")
	}
	if callerID != d.InitiatorID && callerID != d.RespondentID {
		return nil, ErrNotAParty
	}
	return d, nil
}

// Transaction returns a settlement visible only to its parties.
func (s *Service) Transaction(ctx context.Context, txID, callerID int64) (*models.Transaction, error) {
	t, err := db.GetTransaction(ctx, s.DB.Pool, txID)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	if !isParty(t, callerID) {
		return nil, ErrNotAParty
	}
	return t, nil
}

// TransactionChecklist returns the transfer checklist for a party.
func (s *Service) TransactionChecklist(ctx context.Context, txID, callerID int64) ([]models.ChecklistItem, error) {
	t, err := db.GetTransaction(ctx, s.DB.Pool, txID)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	partner, err := db.IsTransactionPartner(ctx, s.DB.Pool, txID, callerID)
	if err != nil {
		return nil, err
	}
	if !isParty(t, callerID) && !partner {
		return nil, ErrNotAParty
	}
	return db.GetChecklist(ctx, s.DB.Pool, txID)
}
