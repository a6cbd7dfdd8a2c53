package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// Store is the append-only persistence surface for audit events.
type Store interface {
	Append(ctx context.Context, event *models.AuditEvent) error
}

// Recorder writes structured audit events. Every pipeline state transition
// passes through here; the audit trail is the only place intermediate
// reasoning (violations, anomaly signals, threat matches) is guaranteed to
// be visible. Each event is a complete, self-contained record, so concurrent
// writers from independent submissions cannot corrupt one another.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record persists one audit event and mirrors it to the structured log. A
// failed append is logged but never fails the submission: losing one audit
// row must not abort a decision already made.
func (r *Recorder) Record(ctx context.Context, event models.AuditEvent) {
	event.Workflow = models.WorkflowName
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}
	if event.Actor == "" {
		event.Actor = models.ActorSystem
	}

	fields := []zap.Field{
		zap.String("execution_id", event.ExecutionID),
		zap.String("transaction_id", event.TransactionID),
		zap.String("stage", event.Stage),
		zap.String("event_type", event.EventType),
		zap.String("actor", event.Actor),
		zap.String("message", event.Message),
	}
	switch event.Severity {
	case models.SeverityCritical:
		r.logger.Error("Audit event", fields...)
	case models.SeverityWarning:
		r.logger.Warn("Audit event", fields...)
	default:
		r.logger.Info("Audit event", fields...)
	}

	if err := r.store.Append(ctx, &event); err != nil {
		r.logger.Error("Failed to append audit event",
			zap.String("transaction_id", event.TransactionID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}
