package pipeline

import (
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// WorkItem is one planned article: a blog type plus the scenario that seeds
// it. Position is the 1-based index in the plan and becomes the content row's
// scenario_id.
type WorkItem struct {
	Position         int
	BlogType         models.BlogType
	Scenario         models.Scenario
	SourceScenarioID int
}

// NormalizeAllocations returns a per-category allocation that sums to total.
//   - All zero: split total evenly, remainder to the first categories.
//   - Sum over total: trim from the largest categories first.
//   - Sum under total: add the shortfall round-robin in category order.
func NormalizeAllocations(allocations map[models.BlogType]int, total int) map[models.BlogType]int {
	normalized := make(map[models.BlogType]int, len(models.BlogTypes))
	sum := 0
	for _, bt := range models.BlogTypes {
		n := allocations[bt]
		if n < 0 {
			n = 0
		}
		normalized[bt] = n
		sum += n
	}

	if sum == 0 {
		base := total / len(models.BlogTypes)
		remainder := total % len(models.BlogTypes)
		for i, bt := range models.BlogTypes {
			normalized[bt] = base
			if i < remainder {
				normalized[bt]++
			}
		}
		return normalized
	}

	for sum > total {
		largest := models.BlogTypes[0]
		for _, bt := range models.BlogTypes {
			if normalized[bt] > normalized[largest] {
				largest = bt
			}
		}
		normalized[largest]--
		sum--
	}

	for i := 0; sum < total; i++ {
		bt := models.BlogTypes[i%len(models.BlogTypes)]
		normalized[bt]++
		sum++
	}

	return normalized
}

// BuildPlan enumerates the N work items. Blog types are laid out in category
// order per the normalized allocation; scenarios cycle so a short scenario
// list still fills the plan.
func BuildPlan(scenarios []models.Scenario, allocations map[models.BlogType]int, total int) []WorkItem {
	if len(scenarios) == 0 || total <= 0 {
		return nil
	}

	normalized := NormalizeAllocations(allocations, total)

	types := make([]models.BlogType, 0, total)
	for _, bt := range models.BlogTypes {
		for i := 0; i < normalized[bt]; i++ {
			types = append(types, bt)
		}
	}

	plan := make([]WorkItem, total)
	for i := 0; i < total; i++ {
		scenario := scenarios[i%len(scenarios)]
		plan[i] = WorkItem{
			Position:         i + 1,
			BlogType:         types[i],
			Scenario:         scenario,
			SourceScenarioID: scenario.ScenarioID,
		}
	}
	return plan
}
