package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

func TestScenarioMinimumsCountRunes(t *testing.T) {
	// 12 runes but 36 bytes: still below the 20-character floor
	short := models.Scenario{
		PainPointDetail:   strings.Repeat("蜂", 12),
		GoalFocus:         "sustainable hives",
		BlogTopicHeadline: "Headline for testing",
	}
	assert.False(t, meetsScenarioMinimums(short))

	ok := models.Scenario{
		PainPointDetail:   strings.Repeat("蜂", 20),
		GoalFocus:         strings.Repeat("蜜", 10),
		BlogTopicHeadline: strings.Repeat("巣", 10),
	}
	assert.True(t, meetsScenarioMinimums(ok))

	boundary := models.Scenario{
		PainPointDetail:   strings.Repeat("a", 19),
		GoalFocus:         strings.Repeat("b", 10),
		BlogTopicHeadline: strings.Repeat("c", 10),
	}
	assert.False(t, meetsScenarioMinimums(boundary))
}
