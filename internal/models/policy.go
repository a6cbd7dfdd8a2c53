package models

import "time"

// CategoryGlobal is the sentinel category applied when no category-specific
// policy is active.
const CategoryGlobal = "Global"

// Policy status values. Policies are never deleted, only toggled, so the
// audit history always has a policy row to point at.
const (
	PolicyStatusActive   = "active"
	PolicyStatusInactive = "inactive"
)

// Policy is an administrator-defined rule set bounding allowed expenses for
// one category (or Global). At most one active policy exists per category;
// the pipeline treats policies as read-only snapshots.
type Policy struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	MaxAmount         float64   `json:"max_amount"`
	Currency          string    `json:"currency"`
	RequiresReceipt   bool      `json:"requires_receipt"`
	RequiresApproval  bool      `json:"requires_approval"`
	ApprovalThreshold float64   `json:"approval_threshold"`
	Status            string    `json:"status"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsActive reports whether the policy participates in resolution.
func (p *Policy) IsActive() bool {
	return p.Status == PolicyStatusActive
}

// PolicySnapshot is the point-in-time set of active policies fetched once per
// submission, so a mid-flight policy edit cannot split validation.
type PolicySnapshot struct {
	ByCategory map[string]*Policy
	TakenAt    time.Time
}

// Resolve returns the policy governing a category: exact match first, then
// the Global fallback, nil when neither is present.
func (s *PolicySnapshot) Resolve(category string) *Policy {
	if p, ok := s.ByCategory[category]; ok {
		return p
	}
	if p, ok := s.ByCategory[CategoryGlobal]; ok {
		return p
	}
	return nil
}
