package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
)

// GeminiProvider implements LLMProvider against the Gemini API. Research
// calls attach the GoogleSearch grounding tool; generation calls are plain.
type GeminiProvider struct {
	config  *common.GeminiConfig
	client  *genai.Client
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiProvider creates a Gemini-backed provider
func NewGeminiProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or llm.gemini.api_key)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	timeout := 5 * time.Minute
	if config.Timeout != "" {
		if d, err := time.ParseDuration(config.Timeout); err == nil {
			timeout = d
		}
	}

	logger.Info().
		Str("research_model", config.ResearchModel).
		Str("content_model", config.ContentModel).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized")

	return &GeminiProvider{
		config:  config,
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

var _ interfaces.LLMProvider = (*GeminiProvider)(nil)

func (p *GeminiProvider) Research(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	opts.GroundedSearch = true
	return p.call(ctx, p.config.ResearchModel, prompt, opts)
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	opts.GroundedSearch = false
	return p.call(ctx, p.config.ContentModel, prompt, opts)
}

func (p *GeminiProvider) ModelName() string {
	return p.config.ContentModel
}

func (p *GeminiProvider) Close() error {
	p.client = nil
	return nil
}

func (p *GeminiProvider) call(ctx context.Context, model, prompt string, opts interfaces.GenerateOptions) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}

	temp := opts.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		config.Temperature = genai.Ptr(temp)
	}
	topP := opts.TopP
	if topP <= 0 {
		topP = p.config.TopP
	}
	if topP > 0 {
		config.TopP = genai.Ptr(topP)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = p.config.TopK
	}
	if topK > 0 {
		config.TopK = genai.Ptr(float32(topK))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}

	if opts.GroundedSearch {
		searchTool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}
		config.Tools = []*genai.Tool{searchTool}
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(callCtx, model, contents, config)
	duration := time.Since(start)

	if err != nil {
		if IsRateLimitError(err) {
			return "", NewProviderError(ErrKindRateLimited, "Gemini call rate limited", err)
		}
		errStr := err.Error()
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") || strings.Contains(errStr, "API key") {
			return "", NewProviderError(ErrKindFatal, "Gemini call rejected", err)
		}
		return "", NewProviderError(ErrKindTransient, "Gemini call failed", err)
	}

	if resp == nil {
		return "", NewProviderError(ErrKindEmpty, "Gemini returned nil response", nil)
	}

	// Safety blocks surface as prompt feedback or a safety finish reason
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", NewProviderError(ErrKindBlocked,
			fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason), nil)
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			return "", NewProviderError(ErrKindBlocked,
				fmt.Sprintf("response blocked: %s", resp.Candidates[0].FinishReason), nil)
		}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewProviderError(ErrKindEmpty, "Gemini returned empty text", nil)
	}

	p.logger.Debug().
		Str("model", model).
		Bool("grounded", opts.GroundedSearch).
		Int("response_length", len(text)).
		Dur("duration", duration).
		Msg("Gemini call completed")

	return text, nil
}
