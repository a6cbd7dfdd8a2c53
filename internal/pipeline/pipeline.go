package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/config"
	"github.com/garyjia/expense-gate/internal/domain/lifecycle"
	"github.com/garyjia/expense-gate/internal/metrics"
	"github.com/garyjia/expense-gate/internal/models"
)

// Submission sources
const (
	SourceManual = "manual"
	SourceBatch  = "batch"
)

// SubmissionStore is the keyed, idempotent persistence surface for
// submissions, keyed by transaction id.
type SubmissionStore interface {
	// Create inserts a new submission; an existing transaction id yields
	// ErrDuplicateTransaction and leaves the original untouched.
	Create(ctx context.Context, sub *models.ExpenseSubmission) error

	// UpdateDecision records a routing outcome. decidedBy and decidedAt are
	// empty/nil for non-terminal transitions and stay unset until a terminal
	// decision lands.
	UpdateDecision(ctx context.Context, transactionID, status, reason, decidedBy string, decidedAt *time.Time) error

	// RecentByEmployeeCategory returns the bounded lookback window for
	// anomaly scoring, most recent first. The submission identified by
	// excludeTransactionID is left out so the window holds priors only.
	RecentByEmployeeCategory(ctx context.Context, employeeID, category, excludeTransactionID string, limit int) ([]*models.ExpenseSubmission, error)
}

// PolicySource provides the point-in-time active policy snapshot, fetched
// once per submission so a mid-flight policy edit cannot split validation.
type PolicySource interface {
	ActiveSnapshot(ctx context.Context) (*models.PolicySnapshot, error)
}

// Notifier receives decision-triggered notification requests. Dispatch is
// fire-and-forget relative to the decision's durability.
type Notifier interface {
	DispatchDecision(executionID string, sub *models.ExpenseSubmission)
}

// Outcome is the result of processing one submission.
type Outcome struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Err           error  `json:"-"`
	ErrorMessage  string `json:"error,omitempty"`
}

// Processor drives a submission through the full pipeline: normalize,
// security scan, policy resolution, validation, anomaly scoring, routing,
// decision persistence, and the audit/notification side effects. Distinct
// transaction ids may be processed fully in parallel; the store serializes
// writes to the same id.
type Processor struct {
	normalizer *Normalizer
	security   *SecurityFilter
	validator  *Validator
	scorer     *Scorer
	router     *Router

	submissions SubmissionStore
	policies    PolicySource
	recorder    *audit.Recorder
	notifier    Notifier
	metrics     *metrics.Metrics

	historyWindow int
	logger        *zap.Logger
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(
	cfg config.Config,
	submissions SubmissionStore,
	policies PolicySource,
	recorder *audit.Recorder,
	notifier Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		normalizer:    NewNormalizer(logger),
		security:      NewSecurityFilter(cfg.Security.BlacklistedTerms, logger),
		validator:     NewValidator(cfg.Pipeline.RecognizedCategories),
		scorer:        NewScorer(cfg.Pipeline, logger),
		router:        NewRouter(cfg.Pipeline.FlagThreshold),
		submissions:   submissions,
		policies:      policies,
		recorder:      recorder,
		notifier:      notifier,
		metrics:       m,
		historyWindow: cfg.Pipeline.HistoryWindow,
		logger:        logger,
	}
}

// Process runs one submission through every stage and returns its outcome.
// Logical failures (schema, security, policy, no-policy) terminate locally
// as recorded decisions; only duplicate ids and storage failures surface as
// errors.
func (p *Processor) Process(ctx context.Context, executionID, source string, fields map[string]string) Outcome {
	p.stageEntered(ctx, executionID, fields[ColTransactionID], models.StageNormalizer)
	sub, err := p.normalizer.Normalize(fields)
	if err != nil {
		// Abandonment: no further stage runs, no partial side effects.
		p.metrics.SchemaRejections.Inc()
		p.recorder.Record(ctx, models.AuditEvent{
			ExecutionID:   executionID,
			TransactionID: fields[ColTransactionID],
			Stage:         models.StageNormalizer,
			EventType:     models.EventSchemaRejected,
			Severity:      models.SeverityWarning,
			Message:       err.Error(),
		})
		return Outcome{Err: err, ErrorMessage: err.Error()}
	}

	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageNormalizer,
		EventType:     models.EventStageCompleted,
		Message:       fmt.Sprintf("normalized %s submission for employee %s", source, sub.EmployeeID),
	})

	// Security screening happens before any persistence or policy logic
	// touches the free-text fields.
	p.stageEntered(ctx, executionID, sub.TransactionID, models.StageSecurity)
	threats := p.security.Scan(sub)

	if err := p.submissions.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			p.recorder.Record(ctx, models.AuditEvent{
				ExecutionID:   executionID,
				TransactionID: sub.TransactionID,
				Stage:         models.StageNormalizer,
				EventType:     models.EventDuplicateRejected,
				Severity:      models.SeverityWarning,
				Message:       fmt.Sprintf("transaction id %s already exists; resubmission rejected", sub.TransactionID),
			})
			return Outcome{TransactionID: sub.TransactionID, Err: err, ErrorMessage: err.Error()}
		}
		storeErr := &StoreError{Op: "create submission", Err: err}
		return Outcome{TransactionID: sub.TransactionID, Err: storeErr, ErrorMessage: storeErr.Error()}
	}
	p.metrics.SubmissionsIngested.WithLabelValues(source).Inc()

	if len(threats) > 0 {
		return p.denyForThreat(ctx, executionID, sub, threats)
	}
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageSecurity,
		EventType:     models.EventStageCompleted,
		Message:       "no security threats detected",
	})

	p.stageEntered(ctx, executionID, sub.TransactionID, models.StageResolver)
	snapshot, err := p.policies.ActiveSnapshot(ctx)
	if err != nil {
		storeErr := &StoreError{Op: "load policy snapshot", Err: err}
		return Outcome{TransactionID: sub.TransactionID, Err: storeErr, ErrorMessage: storeErr.Error()}
	}

	policy, err := ResolvePolicy(snapshot, sub.Category)
	if err != nil {
		p.recorder.Record(ctx, models.AuditEvent{
			ExecutionID:   executionID,
			TransactionID: sub.TransactionID,
			Stage:         models.StageResolver,
			EventType:     models.EventPolicyMissing,
			Severity:      models.SeverityWarning,
			Message:       err.Error(),
		})
		return p.applyDecision(ctx, executionID, sub, lifecycle.TriggerDeny, "no applicable policy")
	}
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageResolver,
		EventType:     models.EventPolicyResolved,
		Message:       fmt.Sprintf("resolved policy %q (category %s)", policy.Name, policy.Category),
	})

	p.stageEntered(ctx, executionID, sub.TransactionID, models.StageValidator)
	validation := p.validator.Validate(sub, policy)
	if !validation.OK {
		p.recorder.Record(ctx, models.AuditEvent{
			ExecutionID:   executionID,
			TransactionID: sub.TransactionID,
			Stage:         models.StageValidator,
			EventType:     models.EventPolicyViolation,
			Severity:      models.SeverityWarning,
			Message:       fmt.Sprintf("%d violation(s): %v", len(validation.Violations), validation.Reasons()),
		})
	} else {
		p.recorder.Record(ctx, models.AuditEvent{
			ExecutionID:   executionID,
			TransactionID: sub.TransactionID,
			Stage:         models.StageValidator,
			EventType:     models.EventStageCompleted,
			Message:       "all policy constraints satisfied",
		})
	}

	p.stageEntered(ctx, executionID, sub.TransactionID, models.StageScorer)
	history, err := p.submissions.RecentByEmployeeCategory(ctx, sub.EmployeeID, sub.Category, sub.TransactionID, p.historyWindow)
	if err != nil {
		// Scoring degrades to structural signals only; the decision still
		// lands and the degradation is visible in the trail.
		p.logger.Warn("History lookup failed, scoring without window",
			zap.String("transaction_id", sub.TransactionID),
			zap.Error(err))
		history = nil
	}

	anomaly := p.scorer.Score(sub, history)
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageScorer,
		EventType:     models.EventAnomalyScored,
		Message:       fmt.Sprintf("anomaly score %d, reasons %v", anomaly.Score, anomaly.Reasons),
	})

	trigger, reason := p.router.Route(sub, policy, validation, anomaly)
	return p.applyDecision(ctx, executionID, sub, trigger, reason)
}

// denyForThreat records the deny decision for a screened-out submission. A
// threat never reaches validation or auto-approval.
func (p *Processor) denyForThreat(ctx context.Context, executionID string, sub *models.ExpenseSubmission, threats []models.ThreatMatch) Outcome {
	p.metrics.SecurityThreats.Inc()
	first := threats[0]
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageSecurity,
		EventType:     models.EventThreatDetected,
		Severity:      models.SeverityCritical,
		Message:       fmt.Sprintf("security threat (%s): %s", first.Category, first.Reason),
	})
	reason := fmt.Sprintf("security threat detected (%s): %s", first.Category, first.Reason)
	return p.applyDecision(ctx, executionID, sub, lifecycle.TriggerDeny, reason)
}

// applyDecision fires the trigger through the lifecycle machine, persists
// the resulting state, and fans out the side effects. The decision is
// durable before notification is attempted. Entry into FLAGGED is not a
// decision: decidedBy/decidedAt stay unset until an admin resolves it.
func (p *Processor) applyDecision(ctx context.Context, executionID string, sub *models.ExpenseSubmission, trigger lifecycle.Trigger, reason string) Outcome {
	p.stageEntered(ctx, executionID, sub.TransactionID, models.StageRouter)

	machine, err := lifecycle.NewMachine(lifecycle.State(sub.Status))
	if err == nil {
		err = machine.Fire(trigger)
	}
	if err != nil {
		storeErr := &StoreError{Op: "apply decision", Err: err}
		return Outcome{TransactionID: sub.TransactionID, Err: storeErr, ErrorMessage: storeErr.Error()}
	}

	sub.Status = string(machine.State())
	sub.DecisionReason = reason
	if sub.IsTerminal() {
		decidedAt := time.Now().UTC()
		sub.DecidedBy = models.ActorSystem
		sub.DecidedAt = &decidedAt
	}

	if err := p.submissions.UpdateDecision(ctx, sub.TransactionID, sub.Status, reason, sub.DecidedBy, sub.DecidedAt); err != nil {
		storeErr := &StoreError{Op: "persist decision", Err: err}
		return Outcome{TransactionID: sub.TransactionID, Err: storeErr, ErrorMessage: storeErr.Error()}
	}

	p.metrics.Decisions.WithLabelValues(sub.Status).Inc()
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: sub.TransactionID,
		Stage:         models.StageRouter,
		EventType:     models.EventDecisionMade,
		Message:       fmt.Sprintf("submission %s: %s", sub.Status, reason),
	})

	p.notifier.DispatchDecision(executionID, sub)

	return Outcome{TransactionID: sub.TransactionID, Status: sub.Status, Reason: reason}
}

// stageEntered records the entry half of a stage's audit pair.
func (p *Processor) stageEntered(ctx context.Context, executionID, transactionID, stage string) {
	p.recorder.Record(ctx, models.AuditEvent{
		ExecutionID:   executionID,
		TransactionID: transactionID,
		Stage:         stage,
		EventType:     models.EventStageEntered,
	})
}
