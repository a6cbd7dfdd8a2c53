package notification

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryStrategy defines exponential backoff retry logic for transient
// delivery failures. Logical failures are never retried.
type RetryStrategy struct {
	MaxAttempts int           // Default: 3
	BaseBackoff time.Duration // Default: 1 second
	MaxBackoff  time.Duration // Default: 8 seconds
	Jitter      bool          // Enable jitter (default: true)
}

// NewRetryStrategy creates a RetryStrategy with defaults
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the wait before the given attempt number.
// Implements exponential backoff: 1s, 2s, 4s, 8s...
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	exponent := float64(attemptNumber - 1)
	multiplier := math.Pow(2, exponent)
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		jitterRange := backoff / 10
		if jitterRange > 0 {
			jitter := time.Duration(rand.Intn(int(jitterRange*2))) - jitterRange
			backoff = backoff + jitter
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// IsTemporary determines whether a delivery error is worth retrying.
func (s *RetryStrategy) IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "Timeout") {
		return true
	}

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "reset by peer") ||
		strings.Contains(errStr, "unavailable") {
		return true
	}

	return false
}
