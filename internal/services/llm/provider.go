package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for retry decisions
type ErrorKind string

const (
	// ErrKindBlocked means the prompt or response was refused by safety
	// filtering. Retrying the same prompt will not help.
	ErrKindBlocked ErrorKind = "PROMPT_BLOCKED"

	// ErrKindEmpty means the call succeeded but returned no usable text
	ErrKindEmpty ErrorKind = "EMPTY_RESPONSE"

	// ErrKindRateLimited means the provider rejected the call for quota
	// reasons; wait out the quota window before retrying.
	ErrKindRateLimited ErrorKind = "RATE_LIMITED"

	// ErrKindTransient covers network and 5xx failures worth retrying
	ErrKindTransient ErrorKind = "TRANSIENT"

	// ErrKindFatal covers auth and configuration failures that no retry
	// will fix
	ErrKindFatal ErrorKind = "FATAL"
)

// ProviderError wraps a model-call failure with its retry classification
type ProviderError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error
func NewProviderError(kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classification of err, or ErrKindTransient when err is
// not a ProviderError. Rate-limit markers in plain errors are still detected.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if IsRateLimitError(err) {
		return ErrKindRateLimited
	}
	return ErrKindTransient
}

// IsRetryable reports whether a retry of the same call could succeed
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrKindFatal:
		return false
	default:
		return true
	}
}
