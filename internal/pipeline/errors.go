package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTransaction is returned when a transaction id already
	// exists in the store. The original submission is unaffected.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// FieldIssue describes one missing or malformed field in a submission.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaError reports malformed input rejected by the row normalizer before
// any persistence. Callers get the full field-level list, not just the first
// failure.
type SchemaError struct {
	Issues []FieldIssue
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Reason))
	}
	return "schema error: " + strings.Join(parts, "; ")
}

// NoPolicyError reports that neither a category-specific nor a Global policy
// is active for a submission.
type NoPolicyError struct {
	Category string
}

func (e *NoPolicyError) Error() string {
	return fmt.Sprintf("no applicable policy for category %q", e.Category)
}

// StoreError wraps a durable-storage failure. It is the only error class
// fatal to a submission; callers are expected to resubmit.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v (retry the submission)", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
