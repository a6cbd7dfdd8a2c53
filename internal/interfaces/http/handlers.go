package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/internal/pipeline"
	"github.com/garyjia/expense-gate/internal/service"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	submissions *service.SubmissionService
	approvals   *service.ApprovalService
	policies    *service.PolicyService
	auditLog    AuditReader
	logger      *zap.Logger
}

// AuditReader is the query surface for the audit trail.
type AuditReader interface {
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEvent, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error)
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	submissions *service.SubmissionService,
	approvals *service.ApprovalService,
	policies *service.PolicyService,
	auditLog AuditReader,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		submissions: submissions,
		approvals:   approvals,
		policies:    policies,
		auditLog:    auditLog,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// SubmitExpenseRequest carries one manually entered expense submission.
type SubmitExpenseRequest struct {
	TransactionID     string `json:"transaction_id"`
	EmployeeID        string `json:"employee_id"`
	DateIncurred      string `json:"date_incurred"`
	DateSubmitted     string `json:"date_submitted"`
	Description       string `json:"description"`
	Vendor            string `json:"vendor"`
	PaymentMethod     string `json:"payment_method"`
	Currency          string `json:"currency"`
	Amount            string `json:"amount"`
	AmountUSD         string `json:"amount_usd"`
	Category          string `json:"category"`
	ReceiptAttached   string `json:"receipt_attached"`
	ReimbursementType string `json:"reimbursement_type"`
}

func (r SubmitExpenseRequest) fields() map[string]string {
	return map[string]string{
		pipeline.ColTransactionID:     r.TransactionID,
		pipeline.ColEmployeeID:        r.EmployeeID,
		pipeline.ColDateIncurred:      r.DateIncurred,
		pipeline.ColDateSubmitted:     r.DateSubmitted,
		pipeline.ColDescription:       r.Description,
		pipeline.ColVendor:            r.Vendor,
		pipeline.ColPaymentMethod:     r.PaymentMethod,
		pipeline.ColCurrency:          r.Currency,
		pipeline.ColAmount:            r.Amount,
		pipeline.ColAmountUSD:         r.AmountUSD,
		pipeline.ColCategory:          r.Category,
		pipeline.ColReceiptAttached:   r.ReceiptAttached,
		pipeline.ColReimbursementType: r.ReimbursementType,
	}
}

// DecisionRequest carries an admin resolution for a flagged submission.
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	outcome := h.submissions.Submit(c.Request.Context(), req.fields())
	if outcome.Err != nil {
		h.writeOutcomeError(c, outcome)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: outcome})
}

// SubmitBatch handles POST /api/v1/expenses/batch
func (h *Handlers) SubmitBatch(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "multipart field 'file' is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to open uploaded file"})
		return
	}
	defer f.Close()

	result, err := h.submissions.SubmitBatch(c.Request.Context(), f, fileHeader.Filename)
	if err != nil {
		var schemaErr *pipeline.SchemaError
		if errors.As(err, &schemaErr) {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: schemaErr.Error()})
			return
		}
		h.logger.Error("Batch ingestion failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetExpense handles GET /api/v1/expenses/:transactionId
func (h *Handlers) GetExpense(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		h.logger.Error("Failed to load submission", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "submission not found"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// ListExpenses handles GET /api/v1/expenses?employee_id=
func (h *Handlers) ListExpenses(c *gin.Context) {
	employeeID := c.Query("employee_id")
	if employeeID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "employee_id query parameter is required"})
		return
	}

	subs, err := h.submissions.ListByEmployee(c.Request.Context(), employeeID)
	if err != nil {
		h.logger.Error("Failed to list submissions", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: subs})
}

// ResolveExpense handles POST /api/v1/expenses/:transactionId/decision
func (h *Handlers) ResolveExpense(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "decision is required"})
		return
	}

	identity := identityFrom(c)
	sub, err := h.approvals.Resolve(c.Request.Context(), c.Param("transactionId"), identity.ActorID, req.Decision, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
		case errors.Is(err, service.ErrAlreadyResolved), errors.Is(err, service.ErrNotFlagged):
			c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
		default:
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// CreatePolicy handles POST /api/v1/policies
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	identity := identityFrom(c)
	if err := h.policies.Create(c.Request.Context(), identity.ActorID, &policy); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: policy})
}

// UpdatePolicy handles PUT /api/v1/policies/:id
func (h *Handlers) UpdatePolicy(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid policy id"})
		return
	}

	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	policy.ID = id

	identity := identityFrom(c)
	if err := h.policies.Update(c.Request.Context(), identity.ActorID, &policy); err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: policy})
}

// SetPolicyStatus handles PATCH /api/v1/policies/:id/status
func (h *Handlers) SetPolicyStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid policy id"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "status is required"})
		return
	}

	identity := identityFrom(c)
	policy, err := h.policies.SetStatus(c.Request.Context(), identity.ActorID, id, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: policy})
}

// GetPolicy handles GET /api/v1/policies/:id
func (h *Handlers) GetPolicy(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid policy id"})
		return
	}

	policy, err := h.policies.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: policy})
}

// ListPolicies handles GET /api/v1/policies
func (h *Handlers) ListPolicies(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list policies", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: policies})
}

// ListAuditEvents handles GET /api/v1/audit
func (h *Handlers) ListAuditEvents(c *gin.Context) {
	ctx := c.Request.Context()

	if transactionID := c.Query("transaction_id"); transactionID != "" {
		events, err := h.auditLog.ListByTransaction(ctx, transactionID)
		if err != nil {
			h.logger.Error("Failed to list audit events", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: events})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	events, err := h.auditLog.ListRecent(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to list audit events", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

// writeOutcomeError maps a pipeline failure to its HTTP status.
func (h *Handlers) writeOutcomeError(c *gin.Context, outcome pipeline.Outcome) {
	var schemaErr *pipeline.SchemaError
	var storeErr *pipeline.StoreError

	switch {
	case errors.Is(outcome.Err, pipeline.ErrDuplicateTransaction):
		c.JSON(http.StatusConflict, Response{Success: false, Error: outcome.ErrorMessage})
	case errors.As(outcome.Err, &schemaErr):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: outcome.ErrorMessage})
	case errors.As(outcome.Err, &storeErr):
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: outcome.ErrorMessage})
	default:
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: outcome.ErrorMessage})
	}
}
