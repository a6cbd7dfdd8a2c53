package models

import "time"

// WorkflowName identifies this pipeline in audit events consumed by the
// external log viewer.
const WorkflowName = "expense-review"

// Pipeline stage names, used as the audit event node
const (
	StageNormalizer = "row_normalizer"
	StageSecurity   = "security_filter"
	StageResolver   = "policy_resolver"
	StageValidator  = "policy_validator"
	StageScorer     = "anomaly_scorer"
	StageRouter     = "decision_router"
	StageHITL       = "hitl_gate"
	StageNotifier   = "notification_dispatcher"
	StagePolicy     = "policy_admin"
)

// Audit event types
const (
	EventStageEntered       = "stage_entered"
	EventStageCompleted     = "stage_completed"
	EventSchemaRejected     = "schema_rejected"
	EventThreatDetected     = "threat_detected"
	EventPolicyResolved     = "policy_resolved"
	EventPolicyMissing      = "no_applicable_policy"
	EventPolicyViolation    = "policy_violation"
	EventAnomalyScored      = "anomaly_scored"
	EventDecisionMade       = "decision_made"
	EventHITLResolved       = "hitl_resolved"
	EventDuplicateRejected  = "duplicate_rejected"
	EventNotificationSent   = "notification_sent"
	EventNotificationFailed = "NotificationDeliveryFailed"
	EventPolicyChanged      = "policy_changed"
)

// Audit severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AuditEvent is one immutable record of a pipeline state transition. The
// JSON tags match the shape the external log viewer consumes.
type AuditEvent struct {
	ID            int64     `json:"-"`
	ExecutionID   string    `json:"executionId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Workflow      string    `json:"workflow"`
	Stage         string    `json:"node"`
	EventType     string    `json:"eventType"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	Actor         string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
}
