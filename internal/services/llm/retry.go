package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryConfig governs rate-limit retries against the Gemini API, whose
// quota window resets on roughly a 60 second cadence.
type retryConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

func defaultRetryConfig() *retryConfig {
	return &retryConfig{
		maxRetries:     5,
		initialBackoff: 45 * time.Second,
		maxBackoff:     90 * time.Second,
		multiplier:     1.5,
	}
}

// isRateLimitError matches 429 status codes and RESOURCE_EXHAUSTED errors
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from a Gemini
// error message. Returns 0 when none is present.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// backoff computes the wait before the given retry attempt. The API
// suggested delay, when present, replaces the initial backoff as the
// base. The result is capped at maxBackoff.
func (c *retryConfig) backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.initialBackoff
	if apiDelay > 0 {
		base = apiDelay + 5*time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.multiplier
	}

	wait := time.Duration(float64(base) * multiplier)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}
