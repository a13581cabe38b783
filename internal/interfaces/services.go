package interfaces

import (
	"context"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// GenerateOptions carries the sampling parameters for one model call.
type GenerateOptions struct {
	Temperature    float32
	TopP           float32
	TopK           int32
	MaxTokens      int32
	GroundedSearch bool // Enable the search tool (required for Research)
}

// LLMProvider is the gateway to a generative model. Both calls return the raw
// response text; parsing and repair happen upstream.
type LLMProvider interface {
	// Research performs a search-grounded call (Phase A).
	Research(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Generate performs a plain generation call (Phase B).
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	ModelName() string
	Close() error
}

// ImageProvider fetches stock images for scenario keywords. Failures are
// non-fatal: implementations return an empty slice, never an error.
type ImageProvider interface {
	FetchImages(ctx context.Context, keywords []string, personaName string, k int) []models.ImageRef
}

// CreditLedger credits an account. AddCredits is idempotent per
// (entityID, sourceKind); a repeated call with the same pair is a no-op.
type CreditLedger interface {
	AddCredits(ctx context.Context, userID string, amount int, sourceKind, entityID, reason string) error
}

// JobQueue is the reliable FIFO work queue consumed by the scheduler.
type JobQueue interface {
	// Enqueue rejects a second message carrying an already-queued JobID.
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Close() error
}
