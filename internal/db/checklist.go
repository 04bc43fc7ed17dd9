package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/flipbase/marketplace/internal/models"
)

// ErrAlreadyConfirmed is returned when the same party confirms the
// same checklist item twice.
var ErrAlreadyConfirmed = errors.New("checklist item already confirmed by this party")

const checklistColumns = `ci.id, ci.transaction_id, ci.label, ci.seller_confirmed, ci.seller_confirmed_at,
	(SELECT COUNT(*) FROM checklist_confirmations cc WHERE cc.item_id = ci.id)`

func scanChecklistItem(row interface{ Scan(...any) error }) (*models.ChecklistItem, error) {
	item := &models.ChecklistItem{}
	err := row.Scan(&item.ID, &item.TransactionID, &item.Label,
		&item.SellerConfirmed, &item.SellerConfirmedAt, &item.Confirmations)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// InsertChecklistItems seeds the transfer checklist for a new
// transaction.
func InsertChecklistItems(ctx context.Context, q Querier, txID int64, labels []string) error {
	for _, label := range labels {
		_, err := q.Exec(ctx,
			"INSERT INTO checklist_items (transaction_id, label) VALUES ($1, $2)",
			txID, label)
		if err != nil {
			return fmt.Errorf("failed to insert checklist item: %w", err)
		}
	}
	return nil
}

// GetChecklistItem retrieves one checklist item with its confirmation
// count.
func GetChecklistItem(ctx context.Context, q Querier, itemID int64) (*models.ChecklistItem, error) {
	return scanChecklistItem(q.QueryRow(ctx,
		"SELECT "+checklistColumns+" FROM checklist_items ci WHERE ci.id = $1", itemID))
}

// GetChecklist retrieves every checklist item on a transaction.
func GetChecklist(ctx context.Context, q Querier, txID int64) ([]models.ChecklistItem, error) {
	rows, err := q.Query(ctx,
		"SELECT "+checklistColumns+" FROM checklist_items ci WHERE ci.transaction_id = $1 ORDER BY ci.id",
		txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	defer rows.Close()

	var items []models.ChecklistItem
	for rows.Next() {
		item, err := scanChecklistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ConfirmChecklistItemSeller marks the seller side of an item
// delivered. A repeated confirmation returns ErrAlreadyConfirmed.
func ConfirmChecklistItemSeller(ctx context.Context, q Querier, itemID int64) error {
	tag, err := q.Exec(ctx,
		`UPDATE checklist_items SET seller_confirmed = true, seller_confirmed_at = now()
		 WHERE id = $1 AND NOT seller_confirmed`,
		itemID)
	if err != nil {
		return fmt.Errorf("failed to confirm checklist item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConfirmed
	}
	return nil
}

// ConfirmChecklistItemBuyer records one buyer-side confirmation. The
// primary key on (item_id, user_id) prevents double-counting.
func ConfirmChecklistItemBuyer(ctx context.Context, q Querier, itemID, userID int64) error {
	_, err := q.Exec(ctx,
		"INSERT INTO checklist_confirmations (item_id, user_id) VALUES ($1, $2)",
		itemID, userID)
	if isUniqueViolation(err, "") {
		return ErrAlreadyConfirmed
	}
	if err != nil {
		return fmt.Errorf("failed to record checklist confirmation: %w", err)
	}
	return nil
}
