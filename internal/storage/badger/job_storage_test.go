package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func testJob(id string) *models.Job {
	return &models.Job{
		ID:                id,
		UserID:            "user-1",
		Niche:             "urban beekeeping",
		ValuePropositions: []string{"hive kits with training"},
		Tone:              "friendly",
		TotalBlogs:        4,
		Allocations: map[models.BlogType]int{
			models.BlogTypeFunctional:    1,
			models.BlogTypeTransactional: 1,
			models.BlogTypeCommercial:    1,
			models.BlogTypeInformational: 1,
		},
		TargetWordCount: 1000,
		Status:          models.JobStatusEnqueued,
		CreditsCost:     40,
		CreatedAt:       time.Now(),
	}
}

func TestJobCreateAndGet(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	job := testJob("job-1")
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))

	got, err := manager.JobStorage().GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "urban beekeeping", got.Niche)
	assert.Equal(t, models.JobStatusEnqueued, got.Status)
	assert.Equal(t, 4, got.AllocationSum())

	// Duplicate create is rejected
	assert.Error(t, manager.JobStorage().CreateJob(ctx, testJob("job-1")))
}

func TestJobCreateValidation(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	missing := testJob("job-2")
	missing.Niche = ""
	assert.Error(t, manager.JobStorage().CreateJob(ctx, missing))

	noUser := testJob("job-3")
	noUser.UserID = ""
	assert.Error(t, manager.JobStorage().CreateJob(ctx, noUser))
}

func TestProgressIsMonotone(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.JobStorage()

	require.NoError(t, store.CreateJob(ctx, testJob("job-4")))

	require.NoError(t, store.UpdateProgress(ctx, "job-4", 25, 0, 0))
	require.NoError(t, store.UpdateProgress(ctx, "job-4", 60, 2, 0))

	// A stale coalesced write must not move progress backwards
	require.NoError(t, store.UpdateProgress(ctx, "job-4", 40, 1, 0))

	job, err := store.GetJob(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, 60, job.Progress)
	assert.Equal(t, 2, job.TotalContentGenerated)
}

func TestUpdateStatusTimestamps(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.JobStorage()

	require.NoError(t, store.CreateJob(ctx, testJob("job-5")))

	require.NoError(t, store.UpdateStatus(ctx, "job-5", models.JobStatusResearching, ""))
	job, err := store.GetJob(ctx, "job-5")
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, store.UpdateStatus(ctx, "job-5", models.JobStatusFailed, "research exhausted retries"))
	job, err = store.GetJob(ctx, "job-5")
	require.NoError(t, err)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, "research exhausted retries", job.ErrorMessage)
	assert.True(t, job.IsTerminal())
}

func TestCancelFlag(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.JobStorage()

	require.NoError(t, store.CreateJob(ctx, testJob("job-6")))

	cancelled, err := store.IsCancelRequested(ctx, "job-6")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, store.RequestCancel(ctx, "job-6"))
	cancelled, err = store.IsCancelRequested(ctx, "job-6")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestDeleteJobCascades(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.JobStorage().CreateJob(ctx, testJob("job-7")))
	require.NoError(t, manager.ContentStorage().SaveContent(ctx, &models.Content{
		ID:         "content-1",
		JobID:      "job-7",
		ScenarioID: 1,
		Status:     models.ContentStatusOK,
	}))

	require.NoError(t, manager.JobStorage().DeleteJob(ctx, "job-7"))

	_, err := manager.JobStorage().GetJob(ctx, "job-7")
	assert.Error(t, err)

	rows, err := manager.ContentStorage().FindByJobID(ctx, "job-7")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Deleting an already-deleted job is a no-op
	assert.NoError(t, manager.JobStorage().DeleteJob(ctx, "job-7"))
}

func TestResetRunningJobs(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.JobStorage()

	running := testJob("job-8")
	running.Status = models.JobStatusGenerating
	running.Progress = 55
	require.NoError(t, store.CreateJob(ctx, running))

	done := testJob("job-9")
	done.Status = models.JobStatusComplete
	require.NoError(t, store.CreateJob(ctx, done))

	count, err := store.ResetRunningJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	job, err := store.GetJob(ctx, "job-8")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusEnqueued, job.Status)

	job, err = store.GetJob(ctx, "job-9")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, job.Status)
}

func TestGetStaleJobs(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.JobStorage()

	stale := testJob("job-10")
	stale.Status = models.JobStatusGenerating
	old := time.Now().Add(-10 * time.Minute)
	stale.LastHeartbeat = &old
	require.NoError(t, store.CreateJob(ctx, stale))

	fresh := testJob("job-11")
	fresh.Status = models.JobStatusGenerating
	now := time.Now()
	fresh.LastHeartbeat = &now
	require.NoError(t, store.CreateJob(ctx, fresh))

	jobs, err := store.GetStaleJobs(ctx, 30)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-10", jobs[0].ID)
}
