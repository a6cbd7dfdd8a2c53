package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/config"
	"github.com/garyjia/expense-gate/internal/models"
)

// minHistoryForMean is how many prior records the trailing-mean signal needs
// before it fires, so a single noisy record cannot triple the baseline.
const minHistoryForMean = 3

// Scorer computes a 0-100 anomaly risk score from statistical and structural
// signals. Weights are additive, capped at 100, and every contributing
// signal produces one reason, ordered highest weight first for reproducible
// assertions.
type Scorer struct {
	weights          config.AnomalyConfig
	maxExpenseAge    time.Duration
	maxSubmissionLag time.Duration
	personalTerms    []string
	logger           *zap.Logger
	now              func() time.Time
}

// NewScorer creates an anomaly scorer from pipeline configuration.
func NewScorer(cfg config.PipelineConfig, logger *zap.Logger) *Scorer {
	terms := make([]string, 0, len(cfg.Anomaly.PersonalUseTerms))
	for _, term := range cfg.Anomaly.PersonalUseTerms {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Scorer{
		weights:          cfg.Anomaly,
		maxExpenseAge:    cfg.MaxExpenseAge,
		maxSubmissionLag: cfg.MaxSubmissionLag,
		personalTerms:    terms,
		logger:           logger,
		now:              time.Now,
	}
}

type signal struct {
	weight int
	reason string
}

// Score evaluates every signal against the submission and its bounded
// history window (same employee and category, most recent first). The score
// is monotonic: adding a triggering condition never lowers it.
func (s *Scorer) Score(sub *models.ExpenseSubmission, history []*models.ExpenseSubmission) models.AnomalySignal {
	var fired []signal
	var futureDated bool

	if reason, ok := s.amountSpike(sub, history); ok {
		fired = append(fired, signal{s.weights.AmountSpikeWeight, reason})
	}
	if reason, future, ok := s.dateOutOfRange(sub); ok {
		fired = append(fired, signal{s.weights.DateOutOfRangeWeight, reason})
		futureDated = future
	}
	if reason, ok := s.personalUse(sub); ok {
		fired = append(fired, signal{s.weights.PersonalUseWeight, reason})
	}
	if reason, ok := s.submissionLag(sub); ok {
		fired = append(fired, signal{s.weights.SubmissionLagWeight, reason})
	}
	if reason, ok := s.currencyMismatch(sub, history); ok {
		fired = append(fired, signal{s.weights.CurrencyMismatchWeight, reason})
	}

	// Highest weight first; SliceStable keeps the fixed evaluation order for
	// equal weights.
	sort.SliceStable(fired, func(i, j int) bool {
		return fired[i].weight > fired[j].weight
	})

	score := 0
	reasons := make([]string, 0, len(fired))
	for _, sig := range fired {
		score += sig.weight
		reasons = append(reasons, sig.reason)
	}
	if score > 100 {
		score = 100
	}

	if score > 0 {
		s.logger.Debug("Anomaly signals fired",
			zap.String("transaction_id", sub.TransactionID),
			zap.Int("score", score),
			zap.Strings("reasons", reasons))
	}

	return models.AnomalySignal{Score: score, Reasons: reasons, FutureDated: futureDated}
}

// amountSpike fires when the amount is more than 3x the trailing mean for
// the employee+category window.
func (s *Scorer) amountSpike(sub *models.ExpenseSubmission, history []*models.ExpenseSubmission) (string, bool) {
	if len(history) < minHistoryForMean {
		return "", false
	}
	var total float64
	for _, h := range history {
		total += h.Amount
	}
	mean := total / float64(len(history))
	if mean <= 0 || sub.Amount <= 3*mean {
		return "", false
	}
	return fmt.Sprintf("amount %.2f is more than 3x the trailing mean %.2f for %s/%s",
		sub.Amount, mean, sub.EmployeeID, sub.Category), true
}

// dateOutOfRange fires for a future dateIncurred or one older than the
// configured maximum age. The second return distinguishes the future case,
// which escalates the submission to review regardless of total score.
func (s *Scorer) dateOutOfRange(sub *models.ExpenseSubmission) (string, bool, bool) {
	incurred, err := time.Parse("2006-01-02", sub.DateIncurred)
	if err != nil {
		return "", false, false
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if incurred.After(today) {
		return fmt.Sprintf("dateIncurred %s is in the future", sub.DateIncurred), true, true
	}
	if today.Sub(incurred) > s.maxExpenseAge {
		return fmt.Sprintf("dateIncurred %s is older than the maximum age of %d days",
			sub.DateIncurred, int(s.maxExpenseAge.Hours()/24)), false, true
	}
	return "", false, false
}

// personalUse fires when the description suggests personal or non-business
// spending.
func (s *Scorer) personalUse(sub *models.ExpenseSubmission) (string, bool) {
	lowered := strings.ToLower(sub.Description)
	for _, term := range s.personalTerms {
		if strings.Contains(lowered, term) {
			return fmt.Sprintf("description contains personal-use term %q", term), true
		}
	}
	return "", false
}

// submissionLag fires when the gap between incurring and submitting exceeds
// the configured threshold.
func (s *Scorer) submissionLag(sub *models.ExpenseSubmission) (string, bool) {
	incurred, err := time.Parse("2006-01-02", sub.DateIncurred)
	if err != nil {
		return "", false
	}
	submitted, err := time.Parse("2006-01-02", sub.DateSubmitted)
	if err != nil {
		return "", false
	}
	lag := submitted.Sub(incurred)
	if lag <= s.maxSubmissionLag {
		return "", false
	}
	return fmt.Sprintf("submission lag of %d days exceeds the threshold of %d days",
		int(lag.Hours()/24), int(s.maxSubmissionLag.Hours()/24)), true
}

// currencyMismatch fires when the currency differs from the employee's usual
// one (modal currency of the window) and no AmountUSD conversion was given.
func (s *Scorer) currencyMismatch(sub *models.ExpenseSubmission, history []*models.ExpenseSubmission) (string, bool) {
	if len(history) == 0 || sub.AmountUSD > 0 {
		return "", false
	}
	counts := make(map[string]int)
	usual, best := "", 0
	for _, h := range history {
		counts[h.Currency]++
		if counts[h.Currency] > best {
			usual, best = h.Currency, counts[h.Currency]
		}
	}
	if usual == "" || usual == sub.Currency {
		return "", false
	}
	return fmt.Sprintf("currency %s differs from usual %s and no USD conversion was supplied",
		sub.Currency, usual), true
}
