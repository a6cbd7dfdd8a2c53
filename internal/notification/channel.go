package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// Channel is the external delivery surface. Implementations may fail
// transiently; the dispatcher owns the retry policy.
type Channel interface {
	// Send delivers one notification. The returned error is inspected with
	// RetryStrategy.IsTemporary to decide on retry.
	Send(ctx context.Context, event *models.NotificationEvent) error

	// Name identifies the channel in logs and audit events.
	Name() string
}

// LogChannel writes notifications to the structured log. It is the default
// channel for development deployments without Lark credentials.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log-only delivery channel
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(_ context.Context, event *models.NotificationEvent) error {
	c.logger.Info("Notification delivered (log channel)",
		zap.String("transaction_id", event.TransactionID),
		zap.String("recipient_role", event.RecipientRole),
		zap.String("recipient_id", event.RecipientID),
		zap.String("decision", event.Decision),
		zap.String("message", event.Message))
	return nil
}

func (c *LogChannel) Name() string {
	return "log"
}
