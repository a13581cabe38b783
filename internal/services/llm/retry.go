package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RateLimitWait is how long to sit out when the provider reports quota
// exhaustion. Matches the observed quota window of ~60 seconds.
const RateLimitWait = 60 * time.Second

// IsRateLimitError checks whether an error is a provider rate limit.
// Matches 429 status codes, quota messages, and RESOURCE_EXHAUSTED.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "Too Many Requests")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from an error
// message. Returns 0 if no delay is present.
//
// Example:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
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

// ResearchBackoff returns the wait before research retry `attempt` (1-based).
// Linear ramp for ordinary failures; the full quota window for rate limits.
func ResearchBackoff(attempt int, err error) time.Duration {
	if IsRateLimitError(err) {
		if apiDelay := ExtractRetryDelay(err); apiDelay > 0 {
			return apiDelay + 5*time.Second
		}
		return RateLimitWait
	}
	return time.Duration(attempt) * 2 * time.Second
}

// GenerationBackoff returns the wait before generation retry `attempt`
// (1-based). Exponential for ordinary failures; the full quota window for
// rate limits.
func GenerationBackoff(attempt int, err error) time.Duration {
	if IsRateLimitError(err) {
		if apiDelay := ExtractRetryDelay(err); apiDelay > 0 {
			return apiDelay + 5*time.Second
		}
		return RateLimitWait
	}
	return time.Duration(1<<attempt) * time.Second
}
