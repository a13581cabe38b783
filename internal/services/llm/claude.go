package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
)

// ClaudeProvider implements LLMProvider against the Anthropic API. Claude
// has no search grounding tool, so Research runs as a plain generation call
// and leans on the model's own knowledge.
type ClaudeProvider struct {
	config  *common.ClaudeConfig
	client  anthropic.Client
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeProvider creates a Claude-backed provider
func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or llm.claude.api_key)")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	timeout := 5 * time.Minute
	if config.Timeout != "" {
		if d, err := time.ParseDuration(config.Timeout); err == nil {
			timeout = d
		}
	}

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Claude provider initialized")

	return &ClaudeProvider{
		config:  config,
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

var _ interfaces.LLMProvider = (*ClaudeProvider)(nil)

func (p *ClaudeProvider) Research(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	return p.call(ctx, prompt, opts)
}

func (p *ClaudeProvider) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	return p.call(ctx, prompt, opts)
}

func (p *ClaudeProvider) ModelName() string {
	return p.config.Model
}

func (p *ClaudeProvider) Close() error {
	p.client = anthropic.Client{}
	return nil
}

func (p *ClaudeProvider) call(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(p.config.MaxTokens)
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	temp := opts.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	start := time.Now()
	resp, err := p.client.Messages.New(callCtx, params)
	duration := time.Since(start)

	if err != nil {
		if IsRateLimitError(err) {
			return "", NewProviderError(ErrKindRateLimited, "Claude call rate limited", err)
		}
		errStr := err.Error()
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") || strings.Contains(errStr, "authentication") {
			return "", NewProviderError(ErrKindFatal, "Claude call rejected", err)
		}
		return "", NewProviderError(ErrKindTransient, "Claude call failed", err)
	}

	if resp.StopReason == "refusal" {
		return "", NewProviderError(ErrKindBlocked, "Claude refused the prompt", nil)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", NewProviderError(ErrKindEmpty, "Claude returned empty text", nil)
	}

	p.logger.Debug().
		Str("model", p.config.Model).
		Int("response_length", text.Len()).
		Dur("duration", duration).
		Msg("Claude call completed")

	return text.String(), nil
}
