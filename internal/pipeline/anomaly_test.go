package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/config"
	"github.com/garyjia/expense-gate/internal/models"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		FlagThreshold:    50,
		HistoryWindow:    20,
		MaxExpenseAge:    365 * 24 * time.Hour,
		MaxSubmissionLag: 30 * 24 * time.Hour,
		Anomaly: config.AnomalyConfig{
			AmountSpikeWeight:      40,
			DateOutOfRangeWeight:   35,
			PersonalUseWeight:      25,
			SubmissionLagWeight:    15,
			CurrencyMismatchWeight: 10,
			PersonalUseTerms:       []string{"personal", "gift", "birthday", "family", "vacation", "alcohol"},
		},
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s := NewScorer(testPipelineConfig(), zap.NewNop())
	s.now = func() time.Time {
		return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func cleanSubmission() *models.ExpenseSubmission {
	return &models.ExpenseSubmission{
		TransactionID: "TXN-1",
		EmployeeID:    "EMP-1",
		Category:      "Meals",
		Description:   "Team lunch",
		Currency:      "USD",
		Amount:        50,
		AmountUSD:     50,
		DateIncurred:  "2026-08-10",
		DateSubmitted: "2026-08-12",
	}
}

func historyOf(amounts ...float64) []*models.ExpenseSubmission {
	history := make([]*models.ExpenseSubmission, 0, len(amounts))
	for _, a := range amounts {
		history = append(history, &models.ExpenseSubmission{
			EmployeeID: "EMP-1",
			Category:   "Meals",
			Currency:   "USD",
			Amount:     a,
		})
	}
	return history
}

func TestScoreCleanSubmissionIsZero(t *testing.T) {
	s := newTestScorer(t)
	signal := s.Score(cleanSubmission(), historyOf(40, 50, 60))
	assert.Equal(t, 0, signal.Score)
	assert.Empty(t, signal.Reasons)
}

func TestScoreAmountSpike(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Amount = 200 // trailing mean is 50, 200 > 3*50

	signal := s.Score(sub, historyOf(40, 50, 60))
	assert.Equal(t, 40, signal.Score)
	require.Len(t, signal.Reasons, 1)
	assert.Contains(t, signal.Reasons[0], "3x the trailing mean")
}

func TestScoreAmountSpikeNeedsMinimumHistory(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Amount = 10000

	signal := s.Score(sub, historyOf(40, 50))
	assert.Equal(t, 0, signal.Score, "fewer than 3 prior records must not fire the spike signal")
}

func TestScoreAtExactlyThreeTimesMeanDoesNotFire(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Amount = 150 // exactly 3x the mean of 50

	signal := s.Score(sub, historyOf(50, 50, 50))
	assert.Equal(t, 0, signal.Score)
}

func TestScoreFutureDate(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.DateIncurred = "2026-09-01"
	sub.DateSubmitted = "2026-09-01"

	signal := s.Score(sub, nil)
	assert.Equal(t, 35, signal.Score)
	require.Len(t, signal.Reasons, 1)
	assert.Contains(t, signal.Reasons[0], "in the future")
	assert.True(t, signal.FutureDated, "a future date must be marked for escalation")
}

func TestScoreStaleDate(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.DateIncurred = "2024-01-01"
	sub.DateSubmitted = "2024-01-05"

	signal := s.Score(sub, nil)
	assert.Equal(t, 35, signal.Score)
	assert.Contains(t, signal.Reasons[0], "older than the maximum age")
	assert.False(t, signal.FutureDated, "a stale date scores but does not escalate")
}

func TestScorePersonalUseTerm(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Description = "Birthday gift for the team lead"

	signal := s.Score(sub, nil)
	assert.Equal(t, 25, signal.Score)
	require.Len(t, signal.Reasons, 1)
	assert.Contains(t, signal.Reasons[0], "personal-use term")
}

func TestScoreSubmissionLag(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.DateIncurred = "2026-06-01"
	sub.DateSubmitted = "2026-08-12"

	signal := s.Score(sub, nil)
	assert.Equal(t, 15, signal.Score)
	assert.Contains(t, signal.Reasons[0], "submission lag")
}

func TestScoreCurrencyMismatch(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Currency = "EUR"
	sub.AmountUSD = 0

	signal := s.Score(sub, historyOf(40, 50, 60))
	assert.Equal(t, 10, signal.Score)
	assert.Contains(t, signal.Reasons[0], "differs from usual")
}

func TestScoreCurrencyMismatchSuppressedByConversion(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Currency = "EUR"
	sub.AmountUSD = 55 // conversion supplied

	signal := s.Score(sub, historyOf(40, 50, 60))
	assert.Equal(t, 0, signal.Score)
}

func TestScoreReasonsOrderedByWeight(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Amount = 500                                 // spike (40)
	sub.Description = "vacation snacks"              // personal use (25)
	sub.DateIncurred, sub.DateSubmitted = "2026-06-01", "2026-08-12" // lag (15)

	signal := s.Score(sub, historyOf(40, 50, 60))
	assert.Equal(t, 80, signal.Score)
	require.Len(t, signal.Reasons, 3)
	assert.Contains(t, signal.Reasons[0], "trailing mean")
	assert.Contains(t, signal.Reasons[1], "personal-use term")
	assert.Contains(t, signal.Reasons[2], "submission lag")
}

func TestScoreCapsAtHundred(t *testing.T) {
	s := newTestScorer(t)
	sub := cleanSubmission()
	sub.Amount = 5000
	sub.DateIncurred = "2026-09-01" // future (35)
	sub.DateSubmitted = "2026-08-12"
	sub.Description = "personal birthday gift"
	sub.Currency = "EUR"
	sub.AmountUSD = 0

	signal := s.Score(sub, historyOf(40, 50, 60))
	assert.Equal(t, 100, signal.Score, "score must cap at 100")
}
