package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/models"
)

// ErrPolicyNotFound is returned when no policy exists for the id.
var ErrPolicyNotFound = errors.New("policy not found")

// PolicyStore is the persistence surface for policy administration.
type PolicyStore interface {
	Create(ctx context.Context, policy *models.Policy) error
	Update(ctx context.Context, policy *models.Policy) error
	SetStatus(ctx context.Context, id int64, status string) error
	GetByID(ctx context.Context, id int64) (*models.Policy, error)
	List(ctx context.Context) ([]*models.Policy, error)
}

// PolicyService manages the policy catalog. Every mutation lands in the
// audit trail; in-flight submissions keep the snapshot they started with.
type PolicyService struct {
	store    PolicyStore
	recorder *audit.Recorder
	logger   *zap.Logger
}

// NewPolicyService creates a new policy service
func NewPolicyService(store PolicyStore, recorder *audit.Recorder, logger *zap.Logger) *PolicyService {
	return &PolicyService{store: store, recorder: recorder, logger: logger}
}

// Create validates and stores a new policy. Activating it deactivates any
// previously active policy for the same category.
func (s *PolicyService) Create(ctx context.Context, actorID string, policy *models.Policy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	if policy.Status == "" {
		policy.Status = models.PolicyStatusActive
	}
	if err := s.store.Create(ctx, policy); err != nil {
		return err
	}
	s.recordChange(ctx, actorID, fmt.Sprintf("policy %q created for category %s (%s)", policy.Name, policy.Category, policy.Status))
	return nil
}

// Update replaces the stored fields of an existing policy.
func (s *PolicyService) Update(ctx context.Context, actorID string, policy *models.Policy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	existing, err := s.store.GetByID(ctx, policy.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrPolicyNotFound
	}
	policy.Status = existing.Status
	if err := s.store.Update(ctx, policy); err != nil {
		return err
	}
	s.recordChange(ctx, actorID, fmt.Sprintf("policy %q (id %d) updated", policy.Name, policy.ID))
	return nil
}

// SetStatus toggles a policy between active and inactive.
func (s *PolicyService) SetStatus(ctx context.Context, actorID string, id int64, status string) (*models.Policy, error) {
	if status != models.PolicyStatusActive && status != models.PolicyStatusInactive {
		return nil, fmt.Errorf("invalid policy status %q", status)
	}
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPolicyNotFound
	}
	if existing.Status != status {
		if err := s.store.SetStatus(ctx, id, status); err != nil {
			return nil, err
		}
		s.recordChange(ctx, actorID, fmt.Sprintf("policy %q (id %d) set %s", existing.Name, id, status))
	}
	return s.store.GetByID(ctx, id)
}

// Get returns one policy by id.
func (s *PolicyService) Get(ctx context.Context, id int64) (*models.Policy, error) {
	policy, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	return policy, nil
}

// List returns the full policy catalog, active and inactive.
func (s *PolicyService) List(ctx context.Context) ([]*models.Policy, error) {
	return s.store.List(ctx)
}

func (s *PolicyService) recordChange(ctx context.Context, actorID, message string) {
	s.recorder.Record(ctx, models.AuditEvent{
		ExecutionID: uuid.New().String(),
		Stage:       models.StagePolicy,
		EventType:   models.EventPolicyChanged,
		Actor:       actorID,
		Message:     message,
	})
}

func validatePolicy(policy *models.Policy) error {
	if policy.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if policy.Category == "" {
		return fmt.Errorf("policy category is required")
	}
	if policy.MaxAmount <= 0 {
		return fmt.Errorf("policy max_amount must be positive")
	}
	if policy.ApprovalThreshold < 0 {
		return fmt.Errorf("policy approval_threshold must not be negative")
	}
	if policy.RequiresApproval && policy.ApprovalThreshold > policy.MaxAmount {
		return fmt.Errorf("policy approval_threshold must not exceed max_amount")
	}
	return nil
}
