package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// AuditRepository handles audit event persistence. The table is append-only:
// no UPDATE or DELETE statement exists anywhere in this package.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append writes one complete, self-contained audit record.
func (r *AuditRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			execution_id, transaction_id, workflow, stage, event_type,
			severity, message, actor, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ExecutionID,
		event.TransactionID,
		event.Workflow,
		event.Stage,
		event.EventType,
		event.Severity,
		event.Message,
		event.Actor,
		event.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append audit event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.ID = id
	return nil
}

// ListByTransaction returns the full trail for one submission, oldest first.
func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEvent, error) {
	return r.list(ctx, `
		SELECT id, execution_id, transaction_id, workflow, stage, event_type,
			severity, message, actor, timestamp
		FROM audit_events
		WHERE transaction_id = ?
		ORDER BY id ASC
	`, transactionID)
}

// ListRecent returns the most recent events across all submissions.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	return r.list(ctx, `
		SELECT id, execution_id, transaction_id, workflow, stage, event_type,
			severity, message, actor, timestamp
		FROM audit_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit events", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.ExecutionID,
			&event.TransactionID,
			&event.Workflow,
			&event.Stage,
			&event.EventType,
			&event.Severity,
			&event.Message,
			&event.Actor,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
