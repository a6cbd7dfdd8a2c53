package pipeline

import (
	"fmt"

	"github.com/garyjia/expense-gate/internal/models"
)

// Validator checks a submission against its resolved policy's hard
// constraints. Every check runs; all violations are collected so the caller
// sees the full list, never just the first failure.
type Validator struct {
	recognized map[string]bool
}

// NewValidator creates a validator with the organization's recognized
// category set.
func NewValidator(recognizedCategories []string) *Validator {
	recognized := make(map[string]bool, len(recognizedCategories))
	for _, c := range recognizedCategories {
		recognized[c] = true
	}
	return &Validator{recognized: recognized}
}

// Validate runs every policy check in a fixed order and collects the
// violations. ok is true exactly when no violation was found.
func (v *Validator) Validate(sub *models.ExpenseSubmission, policy *models.Policy) models.ValidationResult {
	var violations []models.Violation

	if sub.Amount > policy.MaxAmount {
		violations = append(violations, models.Violation{
			Kind: models.ViolationAmountExceedsLimit,
			Reason: fmt.Sprintf("amount %.2f %s exceeds policy limit %.2f",
				sub.Amount, sub.Currency, policy.MaxAmount),
		})
	}

	if policy.RequiresReceipt && !sub.ReceiptAttached {
		violations = append(violations, models.Violation{
			Kind:   models.ViolationReceiptRequired,
			Reason: fmt.Sprintf("policy %q requires a receipt and none is attached", policy.Name),
		})
	}

	if !v.recognized[sub.Category] {
		violations = append(violations, models.Violation{
			Kind:   models.ViolationCategoryUnmatched,
			Reason: fmt.Sprintf("category %q is not recognized by the organization", sub.Category),
		})
	}

	return models.ValidationResult{
		OK:         len(violations) == 0,
		Violations: violations,
	}
}
