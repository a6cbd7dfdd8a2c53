package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

func validFields() map[string]string {
	return map[string]string{
		ColTransactionID:     "TXN-1001",
		ColEmployeeID:        "EMP-42",
		ColDateIncurred:      "2026-08-10",
		ColDateSubmitted:     "2026-08-12",
		ColDescription:       "Team lunch with client",
		ColVendor:            "Bistro Nova",
		ColPaymentMethod:     "corporate card",
		ColCurrency:          "usd",
		ColAmount:            "84.50",
		ColAmountUSD:         "84.50",
		ColCategory:          "Meals",
		ColReceiptAttached:   "yes",
		ColReimbursementType: "standard",
	}
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n := NewNormalizer(zap.NewNop())
	n.now = func() time.Time {
		return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	}
	return n
}

func TestNormalizeValidSubmission(t *testing.T) {
	n := newTestNormalizer(t)

	sub, err := n.Normalize(validFields())
	require.NoError(t, err)

	assert.Equal(t, "TXN-1001", sub.TransactionID)
	assert.Equal(t, "EMP-42", sub.EmployeeID)
	assert.Equal(t, "2026-08-10", sub.DateIncurred)
	assert.Equal(t, "2026-08-12", sub.DateSubmitted)
	assert.Equal(t, "USD", sub.Currency, "currency should be uppercased")
	assert.Equal(t, 84.50, sub.Amount)
	assert.True(t, sub.ReceiptAttached)
	assert.Equal(t, models.StatusPending, sub.Status)
}

func TestNormalizeGeneratesTransactionID(t *testing.T) {
	n := newTestNormalizer(t)

	fields := validFields()
	fields[ColTransactionID] = ""

	sub, err := n.Normalize(fields)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sub.TransactionID, "TXN-"))
	assert.Greater(t, len(sub.TransactionID), len("TXN-"))
}

func TestNormalizeDefaultsDateSubmitted(t *testing.T) {
	n := newTestNormalizer(t)

	fields := validFields()
	fields[ColDateSubmitted] = ""

	sub, err := n.Normalize(fields)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-15", sub.DateSubmitted)
}

func TestNormalizeCollectsAllIssues(t *testing.T) {
	n := newTestNormalizer(t)

	fields := validFields()
	fields[ColEmployeeID] = ""
	fields[ColAmount] = "-5"
	fields[ColDateIncurred] = "not-a-date"

	_, err := n.Normalize(fields)
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Issues, 3, "every malformed field should be reported")

	fieldsSeen := make(map[string]bool)
	for _, issue := range schemaErr.Issues {
		fieldsSeen[issue.Field] = true
	}
	assert.True(t, fieldsSeen[ColEmployeeID])
	assert.True(t, fieldsSeen[ColAmount])
	assert.True(t, fieldsSeen[ColDateIncurred])
}

func TestNormalizeRejectsNonPositiveAmounts(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{"zero", "0"},
		{"negative", "-10.50"},
		{"not a number", "ten dollars"},
		{"nan", "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(t)
			fields := validFields()
			fields[ColAmount] = tt.amount

			_, err := n.Normalize(fields)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestNormalizeAcceptsCommaSeparatedAmount(t *testing.T) {
	n := newTestNormalizer(t)

	fields := validFields()
	fields[ColAmount] = "1,250.00"

	sub, err := n.Normalize(fields)
	require.NoError(t, err)
	assert.Equal(t, 1250.00, sub.Amount)
}

func TestNormalizeDateForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"iso date", "2026-08-10", "2026-08-10"},
		{"rfc3339", "2026-08-10T15:04:05Z", "2026-08-10"},
		{"spreadsheet serial", "46244", "2026-08-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(t)
			fields := validFields()
			fields[ColDateIncurred] = tt.raw

			sub, err := n.Normalize(fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub.DateIncurred)
		})
	}
}

func TestNormalizeRejectsSerialDateOutOfRange(t *testing.T) {
	n := newTestNormalizer(t)

	fields := validFields()
	fields[ColDateIncurred] = "2000000"

	_, err := n.Normalize(fields)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestNormalizeBoolForms(t *testing.T) {
	truthy := []string{"true", "TRUE", "yes", "1", "y"}
	falsy := []string{"", "false", "no", "0", "n"}

	for _, raw := range truthy {
		n := newTestNormalizer(t)
		fields := validFields()
		fields[ColReceiptAttached] = raw
		sub, err := n.Normalize(fields)
		require.NoError(t, err, "input %q", raw)
		assert.True(t, sub.ReceiptAttached, "input %q", raw)
	}

	for _, raw := range falsy {
		n := newTestNormalizer(t)
		fields := validFields()
		fields[ColReceiptAttached] = raw
		sub, err := n.Normalize(fields)
		require.NoError(t, err, "input %q", raw)
		assert.False(t, sub.ReceiptAttached, "input %q", raw)
	}
}
