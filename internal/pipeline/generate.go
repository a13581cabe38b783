package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	"github.com/jerilmartin/infini8seo-sub000/internal/queue"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/llm"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// ErrCancelled is returned when a cancellation request stops Phase B between
// items. In-flight items finish; nothing new starts.
var ErrCancelled = errors.New("job cancelled")

// GenerationResult aggregates the outcome of one Phase B pass
type GenerationResult struct {
	Successes int
	Failures  int
}

// Generator runs Phase B: one model call per planned article, fanned out
// under a semaphore and throttled by the shared request limiter. Item
// failures never crash the job; they land as FAILED content rows.
type Generator struct {
	provider interfaces.LLMProvider
	jobs     interfaces.JobStorage
	content  interfaces.ContentStorage
	limiter  *queue.RequestLimiter
	config   *common.PipelineConfig
	logger   arbor.ILogger
}

// NewGenerator creates a Phase B executor
func NewGenerator(provider interfaces.LLMProvider, jobs interfaces.JobStorage,
	content interfaces.ContentStorage, limiter *queue.RequestLimiter,
	config *common.PipelineConfig, logger arbor.ILogger) *Generator {
	return &Generator{
		provider: provider,
		jobs:     jobs,
		content:  content,
		limiter:  limiter,
		config:   config,
		logger:   logger,
	}
}

// Run generates every planned article. Returns ErrCancelled if a cancel
// request stopped the plan early; the partial result is still valid.
func (g *Generator) Run(ctx context.Context, job *models.Job, scenarios []models.Scenario) (*GenerationResult, error) {
	plan := BuildPlan(scenarios, job.Allocations, job.TotalBlogs)
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty generation plan for job %s", job.ID)
	}

	concurrency := g.config.MaxConcurrentGeneration
	if concurrency <= 0 {
		concurrency = 10
	}

	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	// Single-owner accumulator for completion counting
	var mu sync.Mutex
	result := &GenerationResult{}
	completed := 0

	cancelled := false
	for _, item := range plan {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}

		// Cooperative cancellation: checked with the permit in hand, right
		// before the item starts, never mid-call. A missing job row means
		// the delete endpoint removed the job; same stop.
		isCancelled, err := g.jobs.IsCancelRequested(ctx, job.ID)
		if isCancelled || errors.Is(err, badgerstore.ErrJobNotFound) {
			<-semaphore
			cancelled = true
			break
		}

		wg.Add(1)
		go func(item WorkItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			ok := g.generateItem(ctx, job, item)

			mu.Lock()
			if ok {
				result.Successes++
			} else {
				result.Failures++
			}
			completed++
			progress := GenerationProgress(completed, job.TotalBlogs)
			successes, failures := result.Successes, result.Failures
			mu.Unlock()

			if err := g.jobs.UpdateProgress(ctx, job.ID, progress, successes, failures); err != nil &&
				!errors.Is(err, badgerstore.ErrJobNotFound) {
				g.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Progress update failed")
			}
		}(item)
	}

	wg.Wait()

	if cancelled {
		return result, ErrCancelled
	}
	return result, nil
}

// generateItem produces one content row, retrying the model call within the
// attempt budget. Returns true when the row is OK.
func (g *Generator) generateItem(ctx context.Context, job *models.Job, item WorkItem) bool {
	attempts := g.config.PhaseBAttempts
	if attempts <= 0 {
		attempts = 3
	}
	floor := g.config.WordCountFloor
	if floor <= 0 {
		floor = 1000
	}

	prompt := BuildGenerationPrompt(job, item)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		raw, err := g.provider.Generate(ctx, prompt, interfaces.GenerateOptions{})
		if err != nil {
			lastErr = err
			if llm.KindOf(err) == llm.ErrKindFatal {
				break
			}
			if attempt < attempts {
				g.waitBackoff(ctx, attempt, err)
			}
			continue
		}

		words := CountWords(raw)
		if words < floor && attempt < attempts {
			g.logger.Warn().
				Str("job_id", job.ID).
				Int("position", item.Position).
				Int("words", words).
				Int("floor", floor).
				Int("attempt", attempt).
				Msg("Article below word floor, retrying")
			lastErr = fmt.Errorf("article has %d words, below floor %d", words, floor)
			g.waitBackoff(ctx, attempt, nil)
			continue
		}
		if words < floor {
			g.logger.Warn().
				Str("job_id", job.ID).
				Int("position", item.Position).
				Int("words", words).
				Msg("Accepting short article on final attempt")
		}

		g.persistSuccess(ctx, job, item, raw, time.Since(start))
		return true
	}

	g.persistFailure(ctx, job, item, lastErr, time.Since(start))
	return false
}

func (g *Generator) waitBackoff(ctx context.Context, attempt int, err error) {
	backoff := llm.GenerationBackoff(attempt, err)
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

// jobVanished reports whether the job row was deleted while the run was in
// flight. Content rows written after that point would be orphans.
func (g *Generator) jobVanished(ctx context.Context, jobID string) bool {
	_, err := g.jobs.IsCancelRequested(ctx, jobID)
	return errors.Is(err, badgerstore.ErrJobNotFound)
}

func (g *Generator) persistSuccess(ctx context.Context, job *models.Job, item WorkItem, raw string, elapsed time.Duration) {
	if g.jobVanished(ctx, job.ID) {
		g.logger.Warn().
			Str("job_id", job.ID).
			Int("position", item.Position).
			Msg("Job deleted mid-generation, discarding article")
		return
	}

	body := EnsureFAQSection(raw, item.Scenario, job.Niche, job.ValuePropositions)
	body = InlineImages(body, item.Scenario.ImageURLs)

	title := extractTitle(body)
	if title == "" {
		title = item.Scenario.BlogTopicHeadline
	}

	row := &models.Content{
		ID:               common.NewContentID(),
		JobID:            job.ID,
		ScenarioID:       item.Position,
		SourceScenarioID: item.SourceScenarioID,
		BlogTitle:        title,
		PersonaArchetype: item.Scenario.PersonaArchetype,
		Keywords:         item.Scenario.TargetKeywords,
		BlogContent:      body,
		WordCount:        CountWords(body),
		Slug:             Slugify(title),
		MetaDescription:  MetaDescription(body),
		BlogType:         item.BlogType,
		ImageURLs:        item.Scenario.ImageURLs,
		GenerationTimeMs: elapsed.Milliseconds(),
		ModelUsed:        g.provider.ModelName(),
		Status:           models.ContentStatusOK,
	}

	if err := g.content.SaveContent(ctx, row); err != nil {
		// Degrade gracefully: the item counts as done either way
		g.logger.Error().Err(err).
			Str("job_id", job.ID).
			Int("position", item.Position).
			Msg("Failed to persist content row")
	}
}

func (g *Generator) persistFailure(ctx context.Context, job *models.Job, item WorkItem, lastErr error, elapsed time.Duration) {
	message := "generation exhausted retries"
	if lastErr != nil {
		message = lastErr.Error()
	}

	g.logger.Error().
		Str("job_id", job.ID).
		Int("position", item.Position).
		Str("error", message).
		Msg("Article generation failed")

	if g.jobVanished(ctx, job.ID) {
		return
	}

	row := &models.Content{
		ID:               common.NewContentID(),
		JobID:            job.ID,
		ScenarioID:       item.Position,
		SourceScenarioID: item.SourceScenarioID,
		BlogTitle:        item.Scenario.BlogTopicHeadline,
		PersonaArchetype: item.Scenario.PersonaArchetype,
		Keywords:         item.Scenario.TargetKeywords,
		BlogType:         item.BlogType,
		GenerationTimeMs: elapsed.Milliseconds(),
		ModelUsed:        g.provider.ModelName(),
		Status:           models.ContentStatusFailed,
		ErrorMessage:     message,
	}

	if err := g.content.SaveContent(ctx, row); err != nil {
		g.logger.Error().Err(err).
			Str("job_id", job.ID).
			Int("position", item.Position).
			Msg("Failed to persist failed content row")
	}
}

// extractTitle pulls the first "# " heading from the article body
func extractTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
