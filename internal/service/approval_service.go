package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/domain/lifecycle"
	"github.com/garyjia/expense-gate/internal/metrics"
	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/internal/pipeline"
	"github.com/garyjia/expense-gate/internal/syncutil"
)

var (
	// ErrSubmissionNotFound is returned when no submission exists for the
	// transaction id.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrAlreadyResolved is returned when a decision targets a submission
	// that is no longer flagged. The existing decision is untouched.
	ErrAlreadyResolved = errors.New("submission already resolved")

	// ErrNotFlagged is returned when a decision targets a submission still
	// in automated review.
	ErrNotFlagged = errors.New("submission is not awaiting review")
)

// ResolutionStore is the persistence surface for manual review decisions.
type ResolutionStore interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.ExpenseSubmission, error)
	// ResolveFlagged applies the decision only if the row is still flagged
	// and reports whether it won.
	ResolveFlagged(ctx context.Context, transactionID, status, reason, actor string, decidedAt time.Time) (bool, error)
}

// ApprovalService is the manual review gate for flagged submissions. Exactly
// one admin decision per submission takes effect; concurrent decisions on
// the same id are serialized and the loser gets ErrAlreadyResolved.
type ApprovalService struct {
	store    ResolutionStore
	recorder *audit.Recorder
	notifier pipeline.Notifier
	metrics  *metrics.Metrics
	locks    *syncutil.KeyedMutex
	logger   *zap.Logger
}

// NewApprovalService creates a new approval service
func NewApprovalService(store ResolutionStore, recorder *audit.Recorder, notifier pipeline.Notifier, m *metrics.Metrics, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		store:    store,
		recorder: recorder,
		notifier: notifier,
		metrics:  m,
		locks:    syncutil.NewKeyedMutex(),
		logger:   logger,
	}
}

// Resolve applies an admin decision ("approve" or "deny") to a flagged
// submission and returns the updated record.
func (s *ApprovalService) Resolve(ctx context.Context, transactionID, adminID, decision, reason string) (*models.ExpenseSubmission, error) {
	trigger, err := lifecycle.ResolveTrigger(decision)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("submission:%s", transactionID))
	defer unlock()

	sub, err := s.store.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}

	executionID := uuid.New().String()
	s.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: transactionID,
		Stage:         models.StageHITL,
		EventType:     models.EventStageEntered,
		Actor:         adminID,
	})

	machine, err := lifecycle.NewMachine(lifecycle.State(sub.Status))
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(trigger); err != nil {
		if sub.IsTerminal() {
			return nil, fmt.Errorf("%w: already %s by %s", ErrAlreadyResolved, sub.Status, sub.DecidedBy)
		}
		return nil, fmt.Errorf("%w: status is %s", ErrNotFlagged, sub.Status)
	}

	status := string(machine.State())
	if reason == "" {
		reason = defaultResolutionReason(status)
	}
	decidedAt := time.Now().UTC()

	// Conditional update: the row must still be flagged. Losing the race
	// after the in-process lock means another instance got there first.
	won, err := s.store.ResolveFlagged(ctx, transactionID, status, reason, adminID, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}
	if !won {
		current, err := s.store.GetByTransactionID(ctx, transactionID)
		if err == nil && current != nil {
			return nil, fmt.Errorf("%w: already %s by %s", ErrAlreadyResolved, current.Status, current.DecidedBy)
		}
		return nil, ErrAlreadyResolved
	}

	sub.Status = status
	sub.DecisionReason = reason
	sub.DecidedBy = adminID
	sub.DecidedAt = &decidedAt

	outcome := "approved"
	if status == models.StatusDenied {
		outcome = "denied"
	}
	s.metrics.HITLResolutions.WithLabelValues(outcome).Inc()
	s.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: transactionID,
		Stage:         models.StageHITL,
		EventType:     models.EventHITLResolved,
		Actor:         adminID,
		Message:       fmt.Sprintf("flagged submission %s by %s: %s", outcome, adminID, reason),
	})

	s.logger.Info("Flagged submission resolved",
		zap.String("transaction_id", transactionID),
		zap.String("status", status),
		zap.String("admin_id", adminID))

	s.notifier.DispatchDecision(executionID, sub)
	return sub, nil
}

func defaultResolutionReason(status string) string {
	if status == models.StatusApproved {
		return "approved by administrator"
	}
	return "denied by administrator"
}
