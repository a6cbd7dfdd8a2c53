package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// Canonical column names of the batch schema. Single-form submissions are
// mapped onto the same keys before normalization.
const (
	ColTransactionID     = "TransactionID"
	ColEmployeeID        = "EmployeeID"
	ColDateIncurred      = "DateIncurred"
	ColDateSubmitted     = "DateSubmitted"
	ColDescription       = "Description"
	ColVendor            = "Vendor"
	ColPaymentMethod     = "PaymentMethod"
	ColCurrency          = "Currency"
	ColAmount            = "Amount"
	ColAmountUSD         = "AmountUSD"
	ColCategory          = "Category"
	ColReceiptAttached   = "ReceiptAttached"
	ColReimbursementType = "ReimbursementType"
)

// BatchColumns is the exact 13-column header set a batch file must carry,
// order-independent, case-sensitive.
var BatchColumns = []string{
	ColTransactionID, ColEmployeeID, ColDateIncurred, ColDateSubmitted,
	ColDescription, ColVendor, ColPaymentMethod, ColCurrency, ColAmount,
	ColAmountUSD, ColCategory, ColReceiptAttached, ColReimbursementType,
}

var requiredColumns = []string{
	ColTransactionID, ColEmployeeID, ColDateIncurred, ColPaymentMethod,
	ColCurrency, ColAmount, ColCategory, ColReimbursementType,
}

// excelEpoch is day zero of the spreadsheet serial date form.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Normalizer turns a manual submission or one batch row into a canonical
// ExpenseSubmission, or fails with a SchemaError listing every offending
// field.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewNormalizer creates a new row normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{
		logger: logger,
		now:    time.Now,
	}
}

// Normalize validates and canonicalizes one submission given as a field map
// keyed by the canonical column names.
func (n *Normalizer) Normalize(fields map[string]string) (*models.ExpenseSubmission, error) {
	var issues []FieldIssue

	get := func(col string) string {
		return strings.TrimSpace(fields[col])
	}

	for _, col := range requiredColumns {
		// A missing transaction id is generated, not rejected
		if col == ColTransactionID {
			continue
		}
		if get(col) == "" {
			issues = append(issues, FieldIssue{Field: col, Reason: "required field is missing"})
		}
	}

	txnID := get(ColTransactionID)
	if txnID == "" {
		txnID = "TXN-" + uuid.NewString()
	}

	amount, err := parseAmount(get(ColAmount))
	if err != nil && get(ColAmount) != "" {
		issues = append(issues, FieldIssue{Field: ColAmount, Reason: err.Error()})
	}

	var amountUSD float64
	if raw := get(ColAmountUSD); raw != "" {
		amountUSD, err = parseAmount(raw)
		if err != nil {
			issues = append(issues, FieldIssue{Field: ColAmountUSD, Reason: err.Error()})
		}
	}

	var dateIncurred string
	if raw := get(ColDateIncurred); raw != "" {
		dateIncurred, err = parseDate(raw)
		if err != nil {
			issues = append(issues, FieldIssue{Field: ColDateIncurred, Reason: err.Error()})
		}
	}

	// Missing DateSubmitted defaults to today
	dateSubmitted := n.now().UTC().Format("2006-01-02")
	if raw := get(ColDateSubmitted); raw != "" {
		dateSubmitted, err = parseDate(raw)
		if err != nil {
			issues = append(issues, FieldIssue{Field: ColDateSubmitted, Reason: err.Error()})
		}
	}

	receipt, err := parseBool(get(ColReceiptAttached))
	if err != nil {
		issues = append(issues, FieldIssue{Field: ColReceiptAttached, Reason: err.Error()})
	}

	if len(issues) > 0 {
		n.logger.Debug("Submission failed normalization",
			zap.String("transaction_id", txnID),
			zap.Int("issues", len(issues)))
		return nil, &SchemaError{Issues: issues}
	}

	now := n.now().UTC()
	return &models.ExpenseSubmission{
		TransactionID:     txnID,
		EmployeeID:        get(ColEmployeeID),
		DateIncurred:      dateIncurred,
		DateSubmitted:     dateSubmitted,
		Description:       get(ColDescription),
		Vendor:            get(ColVendor),
		PaymentMethod:     get(ColPaymentMethod),
		Currency:          strings.ToUpper(get(ColCurrency)),
		Amount:            amount,
		AmountUSD:         amountUSD,
		Category:          get(ColCategory),
		ReceiptAttached:   receipt,
		ReimbursementType: get(ColReimbursementType),
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// parseAmount parses a strictly positive decimal amount.
func parseAmount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be strictly positive, got %v", v)
	}
	return v, nil
}

// parseDate accepts ISO-8601 dates (2006-01-02 or RFC 3339) and the
// spreadsheet serial numeric form (days since 1899-12-30, fraction ignored),
// normalizing to 2006-01-02.
func parseDate(raw string) (string, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format("2006-01-02"), nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 1 || serial > 200000 {
			return "", fmt.Errorf("spreadsheet serial date out of range: %v", serial)
		}
		t := excelEpoch.AddDate(0, 0, int(serial))
		return t.Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("unrecognized date %q: want ISO-8601 or spreadsheet serial", raw)
}

// parseBool accepts true/false, yes/no and 1/0 case-insensitive; empty means
// false.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "false", "no", "0", "n":
		return false, nil
	case "true", "yes", "1", "y":
		return true, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", raw)
	}
}
