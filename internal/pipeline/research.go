package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/jsonextract"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/llm"
)

// Minimum field lengths a scenario must carry to survive validation
const (
	minPainPointChars = 20
	minGoalChars      = 10
	minHeadlineChars  = 10
)

const maxResearchBatch = 50

// Researcher runs Phase A: one grounded model call that yields a validated
// batch of scenarios. A terminal failure here fails the whole job.
type Researcher struct {
	provider  interfaces.LLMProvider
	images    interfaces.ImageProvider
	config    *common.PipelineConfig
	imagesCfg *common.ImagesConfig
	logger    arbor.ILogger
}

// NewResearcher creates a Phase A executor
func NewResearcher(provider interfaces.LLMProvider, images interfaces.ImageProvider,
	config *common.PipelineConfig, imagesCfg *common.ImagesConfig, logger arbor.ILogger) *Researcher {
	return &Researcher{
		provider:  provider,
		images:    images,
		config:    config,
		imagesCfg: imagesCfg,
		logger:    logger,
	}
}

// batchSize returns the scenario count to request: the configured batch,
// raised to N when the caller wants more, capped at the hard ceiling.
func (r *Researcher) batchSize(totalBlogs int) int {
	batch := r.config.ResearchBatchSize
	if batch <= 0 {
		batch = 30
	}
	if batch < totalBlogs {
		batch = totalBlogs
	}
	if batch > maxResearchBatch {
		batch = maxResearchBatch
	}
	return batch
}

// Run executes the research call with retries and returns the validated
// scenarios. In-flight calls are not interrupted on cancellation; the caller
// discards the result instead.
func (r *Researcher) Run(ctx context.Context, job *models.Job) ([]models.Scenario, error) {
	attempts := r.config.PhaseAAttempts
	if attempts <= 0 {
		attempts = 3
	}
	batch := r.batchSize(job.TotalBlogs)
	prompt := BuildResearchPrompt(job, batch)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		scenarios, err := r.attempt(ctx, job, prompt, batch)
		if err == nil {
			return scenarios, nil
		}
		lastErr = err

		if llm.KindOf(err) == llm.ErrKindFatal {
			break
		}

		r.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("Research attempt failed")

		if attempt < attempts {
			backoff := llm.ResearchBackoff(attempt, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, &ResearchError{
		Kind:    classifyResearchError(lastErr),
		Message: fmt.Sprintf("all %d research attempts failed", attempts),
		Err:     lastErr,
	}
}

func (r *Researcher) attempt(ctx context.Context, job *models.Job, prompt string, batch int) ([]models.Scenario, error) {
	raw, err := r.provider.Research(ctx, prompt, interfaces.GenerateOptions{GroundedSearch: true})
	if err != nil {
		return nil, err
	}

	obj, err := jsonextract.Extract(raw, "scenarios", r.config.DebugArtifactDir)
	if err != nil {
		return nil, err
	}

	rawScenarios, ok := obj["scenarios"].([]interface{})
	if !ok || len(rawScenarios) == 0 {
		return nil, &ResearchError{
			Kind:    ResearchErrUnderfilled,
			Message: "response carries no scenarios array",
		}
	}

	survivors := make([]models.Scenario, 0, len(rawScenarios))
	for _, entry := range rawScenarios {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		scenario := projectScenario(fields)
		if !meetsScenarioMinimums(scenario) {
			continue
		}
		survivors = append(survivors, scenario)
	}

	minScenarios := r.config.ResearchMinScenarios
	if minScenarios <= 0 {
		minScenarios = 15
	}
	if len(survivors) < minScenarios {
		return nil, &ResearchError{
			Kind:    ResearchErrUnderfilled,
			Message: fmt.Sprintf("only %d of %d scenarios survived validation (minimum %d)", len(survivors), len(rawScenarios), minScenarios),
		}
	}
	if len(survivors) < job.TotalBlogs {
		r.logger.Warn().
			Str("job_id", job.ID).
			Int("survivors", len(survivors)).
			Int("total_blogs", job.TotalBlogs).
			Msg("Fewer scenarios than planned articles; scenarios will cycle")
	}

	if len(survivors) > batch {
		survivors = survivors[:batch]
	}

	r.applyDefaults(survivors, job.Niche)
	r.attachImages(ctx, survivors)

	r.logger.Info().
		Str("job_id", job.ID).
		Int("scenarios", len(survivors)).
		Msg("Research completed")

	return survivors, nil
}

// meetsScenarioMinimums applies the per-field length floors. Lengths count
// runes, not bytes, so non-ASCII text is measured in characters.
func meetsScenarioMinimums(s models.Scenario) bool {
	return utf8.RuneCountInString(s.PainPointDetail) >= minPainPointChars &&
		utf8.RuneCountInString(s.GoalFocus) >= minGoalChars &&
		utf8.RuneCountInString(s.BlogTopicHeadline) >= minHeadlineChars
}

// applyDefaults fills missing optional fields in place
func (r *Researcher) applyDefaults(scenarios []models.Scenario, niche string) {
	for i := range scenarios {
		scenarios[i].ScenarioID = i + 1
		if strings.TrimSpace(scenarios[i].PersonaName) == "" {
			scenarios[i].PersonaName = fmt.Sprintf("Persona %d", i+1)
		}
		if strings.TrimSpace(scenarios[i].PersonaArchetype) == "" {
			scenarios[i].PersonaArchetype = "Professional User"
		}
		if scenarios[i].RequiredWordCount <= 0 {
			scenarios[i].RequiredWordCount = 1000
		}
		if len(scenarios[i].TargetKeywords) == 0 {
			scenarios[i].TargetKeywords = []string{niche, "solution", "guide"}
		}
	}
}

// attachImages fetches images for the first configured number of scenarios.
// Best-effort; the rest keep empty image lists.
func (r *Researcher) attachImages(ctx context.Context, scenarios []models.Scenario) {
	if r.images == nil {
		return
	}
	withImages := r.imagesCfg.PerJob
	if withImages <= 0 {
		return
	}
	perCall := r.imagesCfg.PerCall
	if perCall <= 0 {
		perCall = 2
	}

	for i := 0; i < len(scenarios) && i < withImages; i++ {
		scenarios[i].ImageURLs = r.images.FetchImages(ctx,
			scenarios[i].TargetKeywords, scenarios[i].PersonaName, perCall)
	}
}

// projectScenario maps the duck-typed extractor output onto the typed record
func projectScenario(fields map[string]interface{}) models.Scenario {
	return models.Scenario{
		ScenarioID:        intField(fields, "scenario_id"),
		PersonaName:       stringField(fields, "persona_name"),
		PersonaArchetype:  stringField(fields, "persona_archetype"),
		PainPointDetail:   stringField(fields, "pain_point_detail"),
		GoalFocus:         stringField(fields, "goal_focus"),
		BlogTopicHeadline: stringField(fields, "blog_topic_headline"),
		TargetKeywords:    stringSliceField(fields, "target_keywords"),
		RequiredWordCount: intField(fields, "required_word_count"),
		ResearchInsight:   stringField(fields, "research_insight"),
	}
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intField(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceField(fields map[string]interface{}, key string) []string {
	raw, ok := fields[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
