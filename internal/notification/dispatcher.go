package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/metrics"
	"github.com/garyjia/expense-gate/internal/models"
)

// Store persists notification delivery state across attempts.
type Store interface {
	Create(ctx context.Context, event *models.NotificationEvent) error
	UpdateStatus(ctx context.Context, id int64, status string, attempt int, lastError string, deliveredAt *time.Time) error
}

// Config bounds dispatcher behavior.
type Config struct {
	Retry           *RetryStrategy
	SendTimeout     time.Duration
	AdminRecipients []string
}

// Dispatcher emits decision-triggered messages through the delivery channel
// with bounded retry. A decision is final and persisted before dispatch is
// even attempted; exhausting the retry budget downgrades to an audit event
// and never fails the pipeline.
type Dispatcher struct {
	channel  Channel
	store    Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	cfg      Config
	logger   *zap.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(channel Channel, store Store, recorder *audit.Recorder, m *metrics.Metrics, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Retry == nil {
		cfg.Retry = NewRetryStrategy()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		channel:  channel,
		store:    store,
		recorder: recorder,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// DispatchDecision fans out notifications for a decision, fire-and-forget.
// Terminal decisions go to the submitting employee; entry into FLAGGED
// alerts the configured administrators. The execution id ties the delivery
// trail back to the run that produced the decision.
func (d *Dispatcher) DispatchDecision(executionID string, sub *models.ExpenseSubmission) {
	events := d.eventsFor(executionID, sub)
	for _, event := range events {
		go d.deliver(context.Background(), event)
	}
}

// DispatchDecisionSync delivers inline; used by tests and batch drains.
func (d *Dispatcher) DispatchDecisionSync(ctx context.Context, executionID string, sub *models.ExpenseSubmission) {
	for _, event := range d.eventsFor(executionID, sub) {
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) eventsFor(executionID string, sub *models.ExpenseSubmission) []*models.NotificationEvent {
	now := time.Now().UTC()
	message := fmt.Sprintf("Expense %s (%s %.2f %s): %s. %s",
		sub.TransactionID, sub.Category, sub.Amount, sub.Currency, sub.Status, sub.DecisionReason)

	var events []*models.NotificationEvent
	switch sub.Status {
	case models.StatusApproved, models.StatusDenied:
		events = append(events, &models.NotificationEvent{
			ExecutionID:   executionID,
			TransactionID: sub.TransactionID,
			RecipientRole: models.RoleEmployee,
			RecipientID:   sub.EmployeeID,
			Decision:      sub.Status,
			Message:       message,
			Status:        models.NotificationStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	case models.StatusFlagged:
		for _, admin := range d.cfg.AdminRecipients {
			events = append(events, &models.NotificationEvent{
				ExecutionID:   executionID,
				TransactionID: sub.TransactionID,
				RecipientRole: models.RoleAdmin,
				RecipientID:   admin,
				Decision:      sub.Status,
				Message:       "Review required: " + message,
				Status:        models.NotificationStatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}
	return events
}

// deliver attempts one notification with exponential backoff on transient
// failure. Permanent failures and an exhausted budget both end as a FAILED
// row plus a NotificationDeliveryFailed audit event; the decision stands.
func (d *Dispatcher) deliver(ctx context.Context, event *models.NotificationEvent) {
	d.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   event.ExecutionID,
		TransactionID: event.TransactionID,
		Stage:         models.StageNotifier,
		EventType:     models.EventStageEntered,
		Message: fmt.Sprintf("dispatching %s notification to %s %s",
			event.Decision, event.RecipientRole, event.RecipientID),
	})

	if err := d.store.Create(ctx, event); err != nil {
		d.logger.Error("Failed to record notification, delivering anyway",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Retry.MaxAttempts; attempt++ {
		event.Attempt = attempt

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		lastErr = d.channel.Send(sendCtx, event)
		cancel()

		if lastErr == nil {
			deliveredAt := time.Now().UTC()
			event.Status = models.NotificationStatusSent
			event.DeliveredAt = &deliveredAt
			d.metrics.NotificationSends.Inc()
			d.updateStore(ctx, event, "")
			d.recorder.Record(ctx, models.AuditEvent{
				ExecutionID:   event.ExecutionID,
				TransactionID: event.TransactionID,
				Stage:         models.StageNotifier,
				EventType:     models.EventNotificationSent,
				Message: fmt.Sprintf("delivered %s notification to %s %s via %s (attempt %d)",
					event.Decision, event.RecipientRole, event.RecipientID, d.channel.Name(), attempt),
			})
			return
		}

		if !d.cfg.Retry.IsTemporary(lastErr) {
			break
		}

		d.logger.Warn("Transient notification failure, will retry",
			zap.String("transaction_id", event.TransactionID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < d.cfg.Retry.MaxAttempts {
			select {
			case <-time.After(d.cfg.Retry.CalculateBackoff(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = d.cfg.Retry.MaxAttempts
			}
		}
	}

	event.Status = models.NotificationStatusFailed
	d.metrics.NotificationFailures.Inc()
	d.updateStore(ctx, event, lastErr.Error())
	d.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   event.ExecutionID,
		TransactionID: event.TransactionID,
		Stage:         models.StageNotifier,
		EventType:     models.EventNotificationFailed,
		Severity:      models.SeverityWarning,
		Message: fmt.Sprintf("delivery to %s %s failed after %d attempt(s): %v",
			event.RecipientRole, event.RecipientID, event.Attempt, lastErr),
	})
}

func (d *Dispatcher) updateStore(ctx context.Context, event *models.NotificationEvent, lastError string) {
	if event.ID == 0 {
		return
	}
	if err := d.store.UpdateStatus(ctx, event.ID, event.Status, event.Attempt, lastError, event.DeliveredAt); err != nil {
		d.logger.Error("Failed to update notification status",
			zap.Int64("notification_id", event.ID),
			zap.Error(err))
	}
}
