package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// NotificationRepository records notification delivery attempts.
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// Create inserts a new notification record in PENDING state.
func (r *NotificationRepository) Create(ctx context.Context, event *models.NotificationEvent) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (
			execution_id, transaction_id, recipient_role, recipient_id, decision,
			message, status, attempt, last_error, delivered_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ExecutionID,
		event.TransactionID,
		event.RecipientRole,
		event.RecipientID,
		event.Decision,
		event.Message,
		event.Status,
		event.Attempt,
		event.LastError,
		event.DeliveredAt,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification record",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.ID = id
	return nil
}

// UpdateStatus records the outcome of a delivery attempt chain.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id int64, status string, attempt int, lastError string, deliveredAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, attempt = ?, last_error = ?, delivered_at = ?, updated_at = ?
		WHERE id = ?
	`, status, attempt, lastError, deliveredAt, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update notification status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// ListByTransaction returns all notification records for one submission.
func (r *NotificationRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.NotificationEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, transaction_id, recipient_role, recipient_id,
			decision, message, status, attempt, last_error, delivered_at,
			created_at, updated_at
		FROM notifications
		WHERE transaction_id = ?
		ORDER BY id ASC
	`, transactionID)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var events []*models.NotificationEvent
	for rows.Next() {
		var event models.NotificationEvent
		var lastError sql.NullString
		var deliveredAt sql.NullTime
		if err := rows.Scan(
			&event.ID,
			&event.ExecutionID,
			&event.TransactionID,
			&event.RecipientRole,
			&event.RecipientID,
			&event.Decision,
			&event.Message,
			&event.Status,
			&event.Attempt,
			&lastError,
			&deliveredAt,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		event.LastError = lastError.String
		if deliveredAt.Valid {
			event.DeliveredAt = &deliveredAt.Time
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
