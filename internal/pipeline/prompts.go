package pipeline

import (
	"strings"
	"text/template"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// Prompt text is a collaborator, not logic: the executors only require that
// research output carries a "scenarios" array and that generation output is
// Markdown. Everything else here is phrasing.

var researchTemplate = template.Must(template.New("research").Parse(
	`You are a market research analyst. Research the "{{.Niche}}" niche using current web sources.

Business context:
- Value propositions: {{.ValueProps}}
- Content tone: {{.Tone}}
- Article categories to cover: functional, transactional, commercial, informational

Produce exactly {{.BatchSize}} distinct customer scenarios. Each scenario describes one
realistic persona in this niche: who they are, the specific pain they feel, what outcome
they want, and a blog headline that would draw them in.

Respond with ONLY a JSON object, no markdown fences, no commentary:
{
  "scenarios": [
    {
      "scenario_id": 1,
      "persona_name": "string",
      "persona_archetype": "string",
      "pain_point_detail": "at least 20 characters of specific detail",
      "goal_focus": "at least 10 characters",
      "blog_topic_headline": "at least 10 characters",
      "target_keywords": ["3-5 keywords"],
      "required_word_count": {{.WordCount}},
      "research_insight": "one fact from your research"
    }
  ]
}`))

var generationTemplate = template.Must(template.New("generation").Parse(
	`Write a complete {{.BlogType}} blog article in Markdown for the "{{.Niche}}" niche.

Reader persona: {{.PersonaName}} ({{.PersonaArchetype}})
Their pain point: {{.PainPoint}}
Their goal: {{.Goal}}
Headline: {{.Headline}}
Target keywords: {{.Keywords}}
Tone: {{.Tone}}
Business value propositions: {{.ValueProps}}
{{if .Insight}}Research insight to work in: {{.Insight}}
{{end}}
Requirements:
- Start with a single "# " title based on the headline.
- Aim for {{.WordLow}}-{{.WordHigh}} words of substantive content.
- Use "## " section headers throughout.
- Weave the target keywords in naturally.
- End with a "## FAQ" section of 4-5 question/answer pairs.
- Output Markdown only, no fences, no preamble.`))

type researchPromptData struct {
	Niche      string
	ValueProps string
	Tone       string
	BatchSize  int
	WordCount  int
}

// BuildResearchPrompt renders the Phase A prompt for a job
func BuildResearchPrompt(job *models.Job, batchSize int) string {
	wordCount := job.TargetWordCount
	if wordCount <= 0 {
		wordCount = 1000
	}

	var b strings.Builder
	researchTemplate.Execute(&b, researchPromptData{
		Niche:      job.Niche,
		ValueProps: strings.Join(job.ValuePropositions, "; "),
		Tone:       job.Tone,
		BatchSize:  batchSize,
		WordCount:  wordCount,
	})
	return b.String()
}

type generationPromptData struct {
	Niche            string
	ValueProps       string
	Tone             string
	BlogType         string
	PersonaName      string
	PersonaArchetype string
	PainPoint        string
	Goal             string
	Headline         string
	Keywords         string
	Insight          string
	WordLow          int
	WordHigh         int
}

// BuildGenerationPrompt renders the Phase B prompt for one work item. The
// prompt asks for a word range above the acceptance floor as a soft target;
// the floor itself is enforced by the executor.
func BuildGenerationPrompt(job *models.Job, item WorkItem) string {
	target := job.TargetWordCount
	if target <= 0 {
		target = 1000
	}

	var b strings.Builder
	generationTemplate.Execute(&b, generationPromptData{
		Niche:            job.Niche,
		ValueProps:       strings.Join(job.ValuePropositions, "; "),
		Tone:             job.Tone,
		BlogType:         string(item.BlogType),
		PersonaName:      item.Scenario.PersonaName,
		PersonaArchetype: item.Scenario.PersonaArchetype,
		PainPoint:        item.Scenario.PainPointDetail,
		Goal:             item.Scenario.GoalFocus,
		Headline:         item.Scenario.BlogTopicHeadline,
		Keywords:         strings.Join(item.Scenario.TargetKeywords, ", "),
		Insight:          item.Scenario.ResearchInsight,
		WordLow:          target + 200,
		WordHigh:         target + 400,
	})
	return b.String()
}
