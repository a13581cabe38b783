package pipeline

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

func TestHasFAQSection(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     bool
	}{
		{"faq header", "# T\n\n## FAQ\n\nQ&A", true},
		{"full header", "# T\n\n## Frequently Asked Questions\n\nQ&A", true},
		{"lowercase", "# T\n\n## faq\n\nQ&A", true},
		{"mixed case", "# T\n\n## Frequently asked questions\n\nQ&A", true},
		{"faq with suffix", "# T\n\n## FAQ Section\n\nQ&A", true},
		{"missing", "# T\n\n## Conclusion\n\nDone.", false},
		{"wrong level", "# T\n\n### FAQ\n\nQ&A", false},
		{"faq word in prose", "# T\n\nSee the FAQ below for details.", false},
		{"inside code block", "# T\n\n```\n## FAQ\n```\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasFAQSection(tt.markdown))
		})
	}
}

func TestEnsureFAQSectionAppends(t *testing.T) {
	scenario := models.Scenario{
		PersonaArchetype: "Urban Gardener",
		PainPointDetail:  "Their rooftop hives keep overheating in summer.",
		GoalFocus:        "keeping hives healthy year round",
	}

	body := "# Beekeeping\n\nArticle text."
	result := EnsureFAQSection(body, scenario, "urban beekeeping", []string{"hive kits with training"})

	assert.True(t, HasFAQSection(result))
	assert.True(t, strings.HasPrefix(result, body))

	// The fallback carries 4-5 question/answer pairs
	questions := regexp.MustCompile(`(?m)^### `).FindAllString(result, -1)
	assert.GreaterOrEqual(t, len(questions), 4)
	assert.LessOrEqual(t, len(questions), 5)

	// Derived from the scenario and value proposition
	assert.Contains(t, result, "Urban Gardener")
	assert.Contains(t, result, "hive kits with training")
	assert.Contains(t, result, "rooftop hives keep overheating")
}

func TestEnsureFAQSectionIdempotent(t *testing.T) {
	body := "# T\n\nText.\n\n## FAQ\n\n### Q?\n\nA."
	assert.Equal(t, body, EnsureFAQSection(body, models.Scenario{}, "niche", nil))
}

func TestBuildFallbackFAQDeterministic(t *testing.T) {
	scenario := models.Scenario{PersonaArchetype: "Analyst", GoalFocus: "faster reporting"}
	a := BuildFallbackFAQ(scenario, "data tooling", []string{"managed dashboards"})
	b := BuildFallbackFAQ(scenario, "data tooling", []string{"managed dashboards"})
	assert.Equal(t, a, b)
}
