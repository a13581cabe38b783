package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", errors.New("Error 429: slow down"), true},
		{"resource exhausted", errors.New("Status: RESOURCE_EXHAUSTED"), true},
		{"quota message", errors.New("quota exceeded for model"), true},
		{"too many requests", errors.New("Too Many Requests"), true},
		{"unrelated", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := fmt.Errorf("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))

	err = errors.New("rate limited, retryDelay: 12s")
	assert.Equal(t, 12*time.Second, ExtractRetryDelay(err))
}

func TestResearchBackoff(t *testing.T) {
	plain := errors.New("transient failure")
	assert.Equal(t, 2*time.Second, ResearchBackoff(1, plain))
	assert.Equal(t, 4*time.Second, ResearchBackoff(2, plain))
	assert.Equal(t, 6*time.Second, ResearchBackoff(3, plain))

	limited := errors.New("429 quota exceeded")
	assert.Equal(t, RateLimitWait, ResearchBackoff(1, limited))

	// API-suggested delay wins over the default window
	suggested := errors.New("429, Please retry in 10s.")
	assert.Equal(t, 15*time.Second, ResearchBackoff(1, suggested))
}

func TestGenerationBackoff(t *testing.T) {
	plain := errors.New("transient failure")
	assert.Equal(t, 2*time.Second, GenerationBackoff(1, plain))
	assert.Equal(t, 4*time.Second, GenerationBackoff(2, plain))
	assert.Equal(t, 8*time.Second, GenerationBackoff(3, plain))

	limited := errors.New("Too Many Requests")
	assert.Equal(t, RateLimitWait, GenerationBackoff(2, limited))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindBlocked, KindOf(NewProviderError(ErrKindBlocked, "blocked", nil)))
	assert.Equal(t, ErrKindRateLimited, KindOf(errors.New("429 from upstream")))
	assert.Equal(t, ErrKindTransient, KindOf(errors.New("connection reset")))

	// Wrapped provider errors keep their classification
	wrapped := fmt.Errorf("call failed: %w", NewProviderError(ErrKindFatal, "bad key", nil))
	assert.Equal(t, ErrKindFatal, KindOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, IsRetryable(errors.New("timeout")))
}
