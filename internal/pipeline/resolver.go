package pipeline

import (
	"github.com/garyjia/expense-gate/internal/models"
)

// ResolvePolicy finds the single policy governing a category within a
// point-in-time snapshot: exact category match among active policies, else
// the active Global policy, else NoPolicyError. A category-specific policy
// always wins over Global, even when Global is stricter.
func ResolvePolicy(snapshot *models.PolicySnapshot, category string) (*models.Policy, error) {
	if policy := snapshot.Resolve(category); policy != nil {
		return policy, nil
	}
	return nil, &NoPolicyError{Category: category}
}
