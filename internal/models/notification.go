package models

import "time"

// Notification delivery status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Recipient roles
const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// NotificationEvent is one decision-triggered message. A row exists for
// every dispatch attempt chain; the decision it reports is already durable
// before the first attempt.
type NotificationEvent struct {
	ID            int64      `json:"id"`
	ExecutionID   string     `json:"execution_id"`
	TransactionID string     `json:"transaction_id"`
	RecipientRole string     `json:"recipient_role"`
	RecipientID   string     `json:"recipient_id"`
	Decision      string     `json:"decision"`
	Message       string     `json:"message"`
	Status        string     `json:"status"`
	Attempt       int        `json:"attempt"`
	LastError     string     `json:"last_error,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
