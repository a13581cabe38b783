package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

func TestContentOrderingAndStats(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.ContentStorage()

	// Insert out of completion order; retrieval must sort by scenario_id
	rows := []*models.Content{
		{ID: "c-3", JobID: "job-a", ScenarioID: 3, WordCount: 1200, GenerationTimeMs: 3000, Status: models.ContentStatusOK},
		{ID: "c-1", JobID: "job-a", ScenarioID: 1, WordCount: 1000, GenerationTimeMs: 2000, Status: models.ContentStatusOK},
		{ID: "c-2", JobID: "job-a", ScenarioID: 2, Status: models.ContentStatusFailed, ErrorMessage: "model refused"},
		{ID: "c-other", JobID: "job-b", ScenarioID: 1, WordCount: 900, Status: models.ContentStatusOK},
	}
	for _, row := range rows {
		require.NoError(t, store.SaveContent(ctx, row))
	}

	found, err := store.FindByJobID(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{found[0].ScenarioID, found[1].ScenarioID, found[2].ScenarioID})

	stats, err := store.StatsByJobID(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPosts)
	assert.Equal(t, 2200, stats.TotalWords)
	assert.Equal(t, 1100, stats.AvgWordCount)
	assert.Equal(t, int64(2500), stats.AvgGenerationTimeMs)

	okCount, err := store.CountByStatus(ctx, "job-a", models.ContentStatusOK)
	require.NoError(t, err)
	assert.Equal(t, 2, okCount)

	failedCount, err := store.CountByStatus(ctx, "job-a", models.ContentStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failedCount)
}

func TestContentInsertOnly(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.ContentStorage()

	row := &models.Content{ID: "c-dup", JobID: "job-c", ScenarioID: 1, Status: models.ContentStatusOK}
	require.NoError(t, store.SaveContent(ctx, row))

	// Rows are written exactly once; a second insert with the same ID fails
	assert.Error(t, store.SaveContent(ctx, row))
}
