package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/pkg/database"
)

// PolicyRepository handles policy database operations. Policies are never
// deleted, only toggled between active and inactive, so decisions always
// have a policy row to reference.
type PolicyRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *database.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{db: db, logger: logger}
}

const policyColumns = `
	id, name, category, max_amount, currency, requires_receipt,
	requires_approval, approval_threshold, status, description,
	created_at, updated_at
`

// Create inserts a new policy. When the policy is created active, any
// previously active policy for the same category is deactivated in the same
// transaction, preserving the one-active-per-category invariant.
func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if policy.Status == models.PolicyStatusActive {
			if err := deactivateCategory(ctx, tx, policy.Category); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO policies (
				name, category, max_amount, currency, requires_receipt,
				requires_approval, approval_threshold, status, description,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			policy.Name,
			policy.Category,
			policy.MaxAmount,
			policy.Currency,
			policy.RequiresReceipt,
			policy.RequiresApproval,
			policy.ApprovalThreshold,
			policy.Status,
			policy.Description,
			policy.CreatedAt,
			policy.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create policy",
				zap.String("name", policy.Name),
				zap.Error(err))
			return fmt.Errorf("failed to create policy: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		policy.ID = id
		return nil
	})
}

// Update replaces the mutable fields of a policy.
func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE policies
		SET name = ?, category = ?, max_amount = ?, currency = ?,
			requires_receipt = ?, requires_approval = ?, approval_threshold = ?,
			description = ?, updated_at = ?
		WHERE id = ?
	`,
		policy.Name,
		policy.Category,
		policy.MaxAmount,
		policy.Currency,
		policy.RequiresReceipt,
		policy.RequiresApproval,
		policy.ApprovalThreshold,
		policy.Description,
		time.Now().UTC(),
		policy.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update policy", zap.Int64("id", policy.ID), zap.Error(err))
		return fmt.Errorf("failed to update policy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("policy not found: %d", policy.ID)
	}
	return nil
}

// SetStatus toggles a policy between active and inactive. Activation
// deactivates any other active policy for the same category inside one
// transaction.
func (r *PolicyRepository) SetStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var category string
		if err := tx.QueryRowContext(ctx, `SELECT category FROM policies WHERE id = ?`, id).Scan(&category); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("policy not found: %d", id)
			}
			return fmt.Errorf("failed to load policy: %w", err)
		}

		if status == models.PolicyStatusActive {
			if err := deactivateCategory(ctx, tx, category); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE policies SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC(), id,
		); err != nil {
			return fmt.Errorf("failed to set policy status: %w", err)
		}
		return nil
	})
}

// GetByID retrieves one policy, or nil when absent.
func (r *PolicyRepository) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	policy, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get policy", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return policy, nil
}

// List returns every policy, active and inactive.
func (r *PolicyRepository) List(ctx context.Context) ([]*models.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY category, id`)
	if err != nil {
		r.logger.Error("Failed to list policies", zap.Error(err))
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// ActiveSnapshot returns the point-in-time set of active policies keyed by
// category.
func (r *PolicyRepository) ActiveSnapshot(ctx context.Context) (*models.PolicySnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE status = ?`, models.PolicyStatusActive)
	if err != nil {
		r.logger.Error("Failed to load policy snapshot", zap.Error(err))
		return nil, fmt.Errorf("failed to load policy snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := &models.PolicySnapshot{
		ByCategory: make(map[string]*models.Policy),
		TakenAt:    time.Now().UTC(),
	}
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		snapshot.ByCategory[policy.Category] = policy
	}
	return snapshot, rows.Err()
}

func deactivateCategory(ctx context.Context, tx *sql.Tx, category string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE policies SET status = ?, updated_at = ? WHERE category = ? AND status = ?`,
		models.PolicyStatusInactive, time.Now().UTC(), category, models.PolicyStatusActive,
	); err != nil {
		return fmt.Errorf("failed to deactivate previous policy for %s: %w", category, err)
	}
	return nil
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var policy models.Policy
	var description sql.NullString
	err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Category,
		&policy.MaxAmount,
		&policy.Currency,
		&policy.RequiresReceipt,
		&policy.RequiresApproval,
		&policy.ApprovalThreshold,
		&policy.Status,
		&description,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	policy.Description = description.String
	return &policy, nil
}
