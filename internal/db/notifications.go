package db

import (
	"context"
	"fmt"

	"github.com/flipbase/marketplace/internal/models"
)

// InsertNotification queues a side-channel message for a user.
func InsertNotification(ctx context.Context, q Querier, n *models.Notification) error {
	_, err := q.Exec(ctx,
		"INSERT INTO notifications (id, user_id, type, payload) VALUES ($1, $2, $3, $4)",
		n.ID, n.UserID, n.Type, n.Payload)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetUserNotifications retrieves a user's notifications, newest first.
func GetUserNotifications(ctx context.Context, q Querier, userID int64, limit int) ([]models.Notification, error) {
	rows, err := q.Query(ctx,
		`SELECT id, user_id, type, payload, created_at, delivered_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Payload, &n.CreatedAt, &n.DeliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationDelivered stamps delivery; repeated delivery
// attempts only stamp once.
func MarkNotificationDelivered(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx,
		"UPDATE notifications SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL",
		id)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}
