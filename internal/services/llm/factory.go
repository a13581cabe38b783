package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
)

// NewProvider creates the configured LLM provider
func NewProvider(ctx context.Context, config *common.LLMConfig, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	switch strings.ToLower(config.Provider) {
	case "", "gemini":
		return NewGeminiProvider(ctx, &config.Gemini, logger)
	case "claude":
		return NewClaudeProvider(&config.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", config.Provider)
	}
}
