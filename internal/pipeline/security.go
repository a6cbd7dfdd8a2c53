package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
)

// injectionPatterns are ordered detection rules for embedded directives
// aimed at downstream automated processing. Order is fixed so the same input
// always classifies identically.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+(rules?|instructions?|prompts?)`),
	regexp.MustCompile(`(?i)disregard\s+(the\s+)?(previous|prior|above|all)`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
	regexp.MustCompile(`(?i)(auto[- ]?)?approve\s+(this|it|everything)\b`),
	regexp.MustCompile(`(?i)return\s+only\b`),
}

// scannedFields are the free-text fields subject to screening, in scan order.
var scannedFields = []string{"description", "vendor"}

// SecurityFilter scans free-text fields for injection-style directives and
// blacklisted terms before anything else touches them. Detection only, the
// content is never modified.
type SecurityFilter struct {
	blacklist []string
	logger    *zap.Logger
}

// NewSecurityFilter creates a security filter with the configured term
// blacklist. Terms match case-insensitive as substrings.
func NewSecurityFilter(blacklist []string, logger *zap.Logger) *SecurityFilter {
	lowered := make([]string, 0, len(blacklist))
	for _, term := range blacklist {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &SecurityFilter{blacklist: lowered, logger: logger}
}

// Scan returns every threat found in the submission's free-text fields, in
// deterministic order: injection patterns first, then blacklisted terms,
// description before vendor. An empty result means the submission is clean.
func (f *SecurityFilter) Scan(sub *models.ExpenseSubmission) []models.ThreatMatch {
	var matches []models.ThreatMatch

	for _, field := range scannedFields {
		text := f.fieldText(sub, field)
		if text == "" {
			continue
		}

		for _, pattern := range injectionPatterns {
			if loc := pattern.FindString(text); loc != "" {
				matches = append(matches, models.ThreatMatch{
					Category: models.ThreatPromptInjection,
					Field:    field,
					Pattern:  pattern.String(),
					Reason:   fmt.Sprintf("%s contains embedded directive %q", field, loc),
				})
			}
		}

		lowered := strings.ToLower(text)
		for _, term := range f.blacklist {
			if strings.Contains(lowered, term) {
				matches = append(matches, models.ThreatMatch{
					Category: models.ThreatBlacklistedTerm,
					Field:    field,
					Pattern:  term,
					Reason:   fmt.Sprintf("%s contains blacklisted term %q", field, term),
				})
			}
		}
	}

	if len(matches) > 0 {
		f.logger.Warn("Security threat detected",
			zap.String("transaction_id", sub.TransactionID),
			zap.Int("matches", len(matches)),
			zap.String("category", matches[0].Category))
	}

	return matches
}

func (f *SecurityFilter) fieldText(sub *models.ExpenseSubmission, field string) string {
	switch field {
	case "description":
		return sub.Description
	case "vendor":
		return sub.Vendor
	}
	return ""
}
