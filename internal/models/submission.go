package models

import "time"

// Status values for an expense submission lifecycle
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusDenied   = "DENIED"
	StatusFlagged  = "FLAGGED"
)

// Actor constants for decision attribution
const (
	ActorSystem = "system"
)

// ExpenseSubmission represents one candidate expense flowing through the
// review pipeline. Fields other than Status, DecisionReason, DecidedBy and
// DecidedAt are immutable after normalization.
type ExpenseSubmission struct {
	TransactionID     string     `json:"transaction_id"`
	EmployeeID        string     `json:"employee_id"`
	DateIncurred      string     `json:"date_incurred"`  // ISO-8601 (2006-01-02)
	DateSubmitted     string     `json:"date_submitted"` // ISO-8601 (2006-01-02)
	Description       string     `json:"description"`
	Vendor            string     `json:"vendor,omitempty"`
	PaymentMethod     string     `json:"payment_method"`
	Currency          string     `json:"currency"`
	Amount            float64    `json:"amount"`
	AmountUSD         float64    `json:"amount_usd,omitempty"`
	Category          string     `json:"category"`
	ReceiptAttached   bool       `json:"receipt_attached"`
	ReimbursementType string     `json:"reimbursement_type"`
	Status            string     `json:"status"`
	DecisionReason    string     `json:"decision_reason,omitempty"`
	DecidedBy         string     `json:"decided_by,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the submission has reached an absorbing state.
func (s *ExpenseSubmission) IsTerminal() bool {
	return s.Status == StatusApproved || s.Status == StatusDenied
}

// Violation is a single hard-constraint failure found by the policy validator.
type Violation struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Violation kinds
const (
	ViolationAmountExceedsLimit = "amount_exceeds_limit"
	ViolationReceiptRequired    = "receipt_required"
	ViolationCategoryUnmatched  = "category_unmatched"
)

// ValidationResult is the collected output of the policy validator. OK is
// true exactly when Violations is empty.
type ValidationResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
}

// Reasons returns the human-readable reason of every violation, in
// evaluation order.
func (v ValidationResult) Reasons() []string {
	reasons := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		reasons = append(reasons, violation.Reason)
	}
	return reasons
}

// AnomalySignal is the anomaly scorer output: an additive 0-100 risk score
// plus one reason per contributing signal, ordered highest weight first.
// FutureDated marks an expense incurred on a date that has not happened yet;
// such a submission always needs human review, whatever its total score.
type AnomalySignal struct {
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons,omitempty"`
	FutureDated bool     `json:"future_dated,omitempty"`
}

// ThreatMatch describes content flagged by the security filter.
type ThreatMatch struct {
	Category string `json:"category"` // prompt_injection or blacklisted_term
	Field    string `json:"field"`    // description or vendor
	Pattern  string `json:"pattern"`
	Reason   string `json:"reason"`
}

// Threat categories
const (
	ThreatPromptInjection = "prompt_injection"
	ThreatBlacklistedTerm = "blacklisted_term"
)

// Decision is the router output for a submission: either a terminal state or
// FLAGGED pending human resolution.
type Decision struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	Actor         string    `json:"actor"`
	DecidedAt     time.Time `json:"decided_at"`
}
