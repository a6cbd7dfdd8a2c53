package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/internal/pipeline"
)

// SubmissionRepository handles expense submission database operations. The
// table is a keyed, idempotent surface on transaction_id: duplicate inserts
// are rejected by the unique constraint, never overwritten.
type SubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sql.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, logger: logger}
}

const submissionColumns = `
	transaction_id, employee_id, date_incurred, date_submitted, description,
	vendor, payment_method, currency, amount, amount_usd, category,
	receipt_attached, reimbursement_type, status, decision_reason,
	decided_by, decided_at, created_at, updated_at
`

// Create inserts a new submission. An existing transaction id yields
// pipeline.ErrDuplicateTransaction and leaves the original row untouched.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.ExpenseSubmission) error {
	query := `
		INSERT INTO expense_submissions (` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.TransactionID,
		sub.EmployeeID,
		sub.DateIncurred,
		sub.DateSubmitted,
		sub.Description,
		sub.Vendor,
		sub.PaymentMethod,
		sub.Currency,
		sub.Amount,
		sub.AmountUSD,
		sub.Category,
		sub.ReceiptAttached,
		sub.ReimbursementType,
		sub.Status,
		sub.DecisionReason,
		sub.DecidedBy,
		sub.DecidedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("%w: %s", pipeline.ErrDuplicateTransaction, sub.TransactionID)
		}
		r.logger.Error("Failed to create submission",
			zap.String("transaction_id", sub.TransactionID),
			zap.Error(err))
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetByTransactionID retrieves one submission, or nil when absent.
func (r *SubmissionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.ExpenseSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM expense_submissions WHERE transaction_id = ?`
	sub, err := r.scanOne(r.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get submission",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// ListByEmployee returns all submissions for an employee, most recent first.
func (r *SubmissionRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*models.ExpenseSubmission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM expense_submissions
		WHERE employee_id = ?
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, employeeID)
}

// RecentByEmployeeCategory returns the bounded lookback window for anomaly
// scoring: decided or pending rows for the same employee and category, most
// recent first. The submission being scored is already persisted when this
// runs, so it is excluded by id to keep the window priors-only.
func (r *SubmissionRepository) RecentByEmployeeCategory(ctx context.Context, employeeID, category, excludeTransactionID string, limit int) ([]*models.ExpenseSubmission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM expense_submissions
		WHERE employee_id = ? AND category = ? AND transaction_id != ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return r.list(ctx, query, employeeID, category, excludeTransactionID, limit)
}

// UpdateDecision records a routing outcome on a submission. Entry into
// FLAGGED is not a decision: decidedBy/decidedAt stay NULL until a terminal
// state, so the caller passes "" and nil for non-terminal transitions.
func (r *SubmissionRepository) UpdateDecision(ctx context.Context, transactionID, status, reason, decidedBy string, decidedAt *time.Time) error {
	var by sql.NullString
	if decidedBy != "" {
		by = sql.NullString{String: decidedBy, Valid: true}
	}
	var at sql.NullTime
	if decidedAt != nil {
		at = sql.NullTime{Time: *decidedAt, Valid: true}
	}

	query := `
		UPDATE expense_submissions
		SET status = ?, decision_reason = ?, decided_by = ?, decided_at = ?, updated_at = ?
		WHERE transaction_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, status, reason, by, at, time.Now().UTC(), transactionID)
	if err != nil {
		r.logger.Error("Failed to update decision",
			zap.String("transaction_id", transactionID),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("submission not found: %s", transactionID)
	}
	return nil
}

// ResolveFlagged conditionally moves a FLAGGED submission to a terminal
// state. The guard in the WHERE clause makes the transition race-free:
// exactly one concurrent resolver observes affected == 1.
func (r *SubmissionRepository) ResolveFlagged(ctx context.Context, transactionID, status, reason, actor string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE expense_submissions
		SET status = ?, decision_reason = ?, decided_by = ?, decided_at = ?, updated_at = ?
		WHERE transaction_id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, status, reason, actor, decidedAt, time.Now().UTC(), transactionID, models.StatusFlagged)
	if err != nil {
		r.logger.Error("Failed to resolve flagged submission",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return false, fmt.Errorf("failed to resolve submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *SubmissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ExpenseSubmission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list submissions", zap.Error(err))
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.ExpenseSubmission
	for rows.Next() {
		sub, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SubmissionRepository) scanOne(row rowScanner) (*models.ExpenseSubmission, error) {
	var sub models.ExpenseSubmission
	var decidedAt sql.NullTime
	var reason, decidedBy sql.NullString

	err := row.Scan(
		&sub.TransactionID,
		&sub.EmployeeID,
		&sub.DateIncurred,
		&sub.DateSubmitted,
		&sub.Description,
		&sub.Vendor,
		&sub.PaymentMethod,
		&sub.Currency,
		&sub.Amount,
		&sub.AmountUSD,
		&sub.Category,
		&sub.ReceiptAttached,
		&sub.ReimbursementType,
		&sub.Status,
		&reason,
		&decidedBy,
		&decidedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.DecisionReason = reason.String
	sub.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		sub.DecidedAt = &decidedAt.Time
	}
	return &sub, nil
}
