package pipeline

import (
	"strings"

	"github.com/garyjia/expense-gate/internal/domain/lifecycle"
	"github.com/garyjia/expense-gate/internal/models"
)

// DefaultFlagThreshold is the anomaly score at which a submission requires
// human resolution.
const DefaultFlagThreshold = 50

// AutoApproveReason is the decision reason recorded for clean submissions.
const AutoApproveReason = "within policy, no anomalies"

// Router is the pure decision function combining validator and scorer
// outputs. Precedence is load-bearing and evaluated strictly in order:
//
//  1. any policy violation    → DENY  (violations are never merely flagged)
//  2. score >= threshold,
//     or future-dated expense → FLAG  (needs HITL)
//  3. explicit approval rule  → FLAG  (even for a clean, low-score submission)
//  4. otherwise               → AUTO_APPROVE
//
// A future dateIncurred flags even below the score threshold: an expense
// for a date that has not happened cannot be auto-approved.
type Router struct {
	flagThreshold int
}

// NewRouter creates a decision router with the given flag threshold.
func NewRouter(flagThreshold int) *Router {
	if flagThreshold <= 0 {
		flagThreshold = DefaultFlagThreshold
	}
	return &Router{flagThreshold: flagThreshold}
}

// Route returns the lifecycle trigger and decision reason for a submission.
func (r *Router) Route(
	sub *models.ExpenseSubmission,
	policy *models.Policy,
	validation models.ValidationResult,
	anomaly models.AnomalySignal,
) (lifecycle.Trigger, string) {
	if !validation.OK {
		return lifecycle.TriggerDeny, strings.Join(validation.Reasons(), "; ")
	}

	if anomaly.Score >= r.flagThreshold || anomaly.FutureDated {
		return lifecycle.TriggerFlag, strings.Join(anomaly.Reasons, "; ")
	}

	if policy.RequiresApproval && sub.Amount > policy.ApprovalThreshold {
		return lifecycle.TriggerFlag, explicitApprovalReason(sub, policy)
	}

	return lifecycle.TriggerAutoApprove, AutoApproveReason
}

func explicitApprovalReason(sub *models.ExpenseSubmission, policy *models.Policy) string {
	return "explicit approval required: amount exceeds approval threshold of policy " + policy.Name
}
