package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flipbase/marketplace/internal/models"
)

// ErrDisputeExists is returned when a transaction already has a
// dispute; the one-to-one constraint is the race guard.
var ErrDisputeExists = errors.New("a dispute already exists for this transaction")

const disputeColumns = "id, transaction_id, initiator_id, respondent_id, reason, status, resolution, fee, response_deadline, reminder_sent, created_at"

func scanDispute(row interface{ Scan(...any) error }) (*models.Dispute, error) {
	d := &models.Dispute{}
	err := row.Scan(&d.ID, &d.TransactionID, &d.InitiatorID, &d.RespondentID,
		&d.Reason, &d.Status, &d.Resolution, &d.Fee, &d.ResponseDeadline,
		&d.ReminderSent, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// InsertDispute creates the dispute row. The unique constraint on
// transaction_id makes concurrent openings lose cleanly.
func InsertDispute(ctx context.Context, q Querier, d *models.Dispute) (*models.Dispute, error) {
	created, err := scanDispute(q.QueryRow(ctx,
		`INSERT INTO disputes (transaction_id, initiator_id, respondent_id, reason, fee, response_deadline)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+disputeColumns,
		d.TransactionID, d.InitiatorID, d.RespondentID, d.Reason, d.Fee, d.ResponseDeadline))
	if isUniqueViolation(err, "disputes_transaction_id_key") {
		return nil, ErrDisputeExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert dispute: %w", err)
	}
	return created, nil
}

// TransactionHasDispute reports whether a dispute exists for the
// transaction.
func TransactionHasDispute(ctx context.Context, q Querier, txID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM disputes WHERE transaction_id = $1)", txID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dispute existence: %w", err)
	}
	return exists, nil
}

// GetDispute retrieves a dispute by id.
func GetDispute(ctx context.Context, q Querier, id int64) (*models.Dispute, error) {
	return scanDispute(q.QueryRow(ctx,
		"SELECT "+disputeColumns+" FROM disputes WHERE id = $1", id))
}

// GetDisputeForUpdate retrieves a dispute with a row lock.
func GetDisputeForUpdate(ctx context.Context, q Querier, id int64) (*models.Dispute, error) {
	return scanDispute(q.QueryRow(ctx,
		"SELECT "+disputeColumns+" FROM disputes WHERE id = $1 FOR UPDATE", id))
}

// ResolveDispute records the resolution on an open dispute.
func ResolveDispute(ctx context.Context, q Querier, id int64, resolution string) (bool, error) {
	tag, err := q.Exec(ctx,
		"UPDATE disputes SET status = 'resolved', resolution = $1 WHERE id = $2 AND status = 'open'",
		resolution, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve dispute: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DisputesNeedingReminder flips the reminder flag on open disputes
// past their response deadline and returns them. The conditional
// update keeps concurrent sweeps from double-firing reminders.
func DisputesNeedingReminder(ctx context.Context, q Querier, now time.Time) ([]models.Dispute, error) {
	rows, err := q.Query(ctx,
		`UPDATE disputes SET reminder_sent = true
		 WHERE status = 'open' AND NOT reminder_sent AND response_deadline < $1
		 RETURNING `+disputeColumns,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to collect dispute reminders: %w", err)
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}
