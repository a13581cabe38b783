package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// recordingQueue captures enqueued messages instead of delivering them
type recordingQueue struct {
	messages []models.QueueMessage
	failNext bool
}

func (q *recordingQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if q.failNext {
		q.failNext = false
		return fmt.Errorf("queue unavailable")
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *recordingQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, fmt.Errorf("not implemented")
}

func (q *recordingQueue) Close() error { return nil }

func newTestHandler(t *testing.T) (*JobHandler, *badgerstore.Manager, *recordingQueue) {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	rq := &recordingQueue{}
	handler := NewJobHandler(manager.JobStorage(), manager.ContentStorage(), rq,
		&common.CreditsConfig{CostPerArticle: 10}, logger)
	return handler, manager, rq
}

func submitBody(overrides map[string]interface{}) []byte {
	body := map[string]interface{}{
		"user_id":            "user-1",
		"niche":              "urban beekeeping",
		"value_propositions": []string{"hive kits with training"},
		"tone":               "friendly",
		"total_blogs":        4,
		"blog_type_allocations": map[string]int{
			"functional": 1, "transactional": 1, "commercial": 1, "informational": 1,
		},
		"target_word_count": 1000,
	}
	for k, v := range overrides {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return data
}

func postSubmit(t *testing.T, h *JobHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)
	return rec
}

func TestSubmitJob(t *testing.T) {
	h, manager, rq := newTestHandler(t)

	rec := postSubmit(t, h, submitBody(nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, float64(40), resp["credits_cost"])

	job, err := manager.JobStorage().GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusEnqueued, job.Status)
	assert.Equal(t, 4, job.TotalBlogs)
	assert.Equal(t, 40, job.CreditsCost)

	require.Len(t, rq.messages, 1)
	assert.Equal(t, jobID, rq.messages[0].JobID)
	assert.Equal(t, models.TaskTypeGenerateContent, rq.messages[0].Type)
}

func TestSubmitJobValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
	}{
		{"missing niche", map[string]interface{}{"niche": ""}},
		{"missing user", map[string]interface{}{"user_id": ""}},
		{"bad tone", map[string]interface{}{"tone": "sarcastic"}},
		{"zero blogs", map[string]interface{}{"total_blogs": 0, "blog_type_allocations": map[string]int{}}},
		{"too many blogs", map[string]interface{}{"total_blogs": 51, "blog_type_allocations": map[string]int{}}},
		{"word count below floor", map[string]interface{}{"target_word_count": 499}},
		{"word count above ceiling", map[string]interface{}{"target_word_count": 2501}},
		{"no value propositions", map[string]interface{}{"value_propositions": []string{}}},
		{"unknown blog type", map[string]interface{}{"blog_type_allocations": map[string]int{"editorial": 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, manager, rq := newTestHandler(t)

			rec := postSubmit(t, h, submitBody(tt.overrides))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rq.messages)

			jobs, err := manager.JobStorage().ListJobs(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestSubmitJobAllocationSumMismatch(t *testing.T) {
	h, manager, rq := newTestHandler(t)

	rec := postSubmit(t, h, submitBody(map[string]interface{}{
		"total_blogs": 5,
		"blog_type_allocations": map[string]int{
			"functional": 2, "transactional": 2, "commercial": 2, "informational": 0,
		},
	}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sum")
	assert.Empty(t, rq.messages)

	jobs, err := manager.JobStorage().ListJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitJobWordCountBoundaries(t *testing.T) {
	h, _, _ := newTestHandler(t)

	for _, wc := range []int{500, 2500} {
		rec := postSubmit(t, h, submitBody(map[string]interface{}{"target_word_count": wc}))
		assert.Equal(t, http.StatusAccepted, rec.Code, "word count %d", wc)
	}
}

func TestSubmitJobEnqueueFailureRollsBack(t *testing.T) {
	h, manager, rq := newTestHandler(t)
	rq.failNext = true

	rec := postSubmit(t, h, submitBody(nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	jobs, err := manager.JobStorage().ListJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestGetStatus(t *testing.T) {
	h, manager, _ := newTestHandler(t)
	ctx := context.Background()

	job := &models.Job{
		ID:              "job-status",
		UserID:          "user-1",
		Niche:           "urban beekeeping",
		Tone:            "friendly",
		TotalBlogs:      4,
		TargetWordCount: 1000,
		Status:          models.JobStatusEnqueued,
	}
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	require.NoError(t, manager.JobStorage().UpdateStatus(ctx, job.ID, models.JobStatusGenerating, ""))
	require.NoError(t, manager.JobStorage().UpdateProgress(ctx, job.ID, 46, 3, 0))

	for i := 1; i <= 3; i++ {
		require.NoError(t, manager.ContentStorage().SaveContent(ctx, &models.Content{
			ID:         fmt.Sprintf("content-%d", i),
			JobID:      job.ID,
			ScenarioID: i,
			BlogTitle:  fmt.Sprintf("Article %d", i),
			Status:     models.ContentStatusOK,
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-status/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "generating", resp["status"])
	assert.Equal(t, float64(46), resp["progress"])
	assert.Equal(t, float64(4), resp["total_blogs"])
	assert.Equal(t, float64(3), resp["total_content_generated"])
	// 1 article remaining at 10s each
	assert.Equal(t, float64(10), resp["estimated_seconds_remaining"])

	titles, _ := resp["generated_titles"].([]interface{})
	assert.Len(t, titles, 3)
}

func TestGetStatusNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-job/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetContentGatedByStatus(t *testing.T) {
	h, manager, _ := newTestHandler(t)
	ctx := context.Background()

	job := &models.Job{
		ID:         "job-content",
		UserID:     "user-1",
		Niche:      "urban beekeeping",
		Tone:       "friendly",
		TotalBlogs: 2,
		Status:     models.JobStatusEnqueued,
	}
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	require.NoError(t, manager.JobStorage().UpdateStatus(ctx, job.ID, models.JobStatusGenerating, ""))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-content/content", nil)
	rec := httptest.NewRecorder()
	h.GetContentHandler(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Once terminal, the rows and stats come back
	require.NoError(t, manager.ContentStorage().SaveContent(ctx, &models.Content{
		ID:               "content-1",
		JobID:            job.ID,
		ScenarioID:       1,
		BlogTitle:        "First",
		WordCount:        1200,
		GenerationTimeMs: 3000,
		Status:           models.ContentStatusOK,
	}))
	require.NoError(t, manager.ContentStorage().SaveContent(ctx, &models.Content{
		ID:         "content-2",
		JobID:      job.ID,
		ScenarioID: 2,
		Status:     models.ContentStatusFailed,
	}))
	require.NoError(t, manager.JobStorage().UpdateStatus(ctx, job.ID, models.JobStatusPartialComplete, ""))

	rec = httptest.NewRecorder()
	h.GetContentHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Content []models.Content    `json:"content"`
		Stats   models.ContentStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Content, 2)
	assert.Equal(t, 1, resp.Stats.TotalPosts)
	assert.Equal(t, 1200, resp.Stats.TotalWords)
}

func TestDeleteJobCancelsAndCascades(t *testing.T) {
	h, manager, _ := newTestHandler(t)
	ctx := context.Background()

	job := &models.Job{
		ID:         "job-delete",
		UserID:     "user-1",
		Niche:      "urban beekeeping",
		Tone:       "friendly",
		TotalBlogs: 2,
		Status:     models.JobStatusEnqueued,
	}
	require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
	require.NoError(t, manager.JobStorage().UpdateStatus(ctx, job.ID, models.JobStatusGenerating, ""))
	require.NoError(t, manager.ContentStorage().SaveContent(ctx, &models.Content{
		ID:     "content-1",
		JobID:  job.ID,
		Status: models.ContentStatusOK,
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-delete", nil)
	rec := httptest.NewRecorder()
	h.DeleteJobHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := manager.JobStorage().GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, badgerstore.ErrJobNotFound)

	rows, err := manager.ContentStorage().FindByJobID(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Deleting again is a no-op
	rec = httptest.NewRecorder()
	h.DeleteJobHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	h, manager, _ := newTestHandler(t)
	ctx := context.Background()

	for i, status := range []models.JobStatus{models.JobStatusEnqueued, models.JobStatusComplete} {
		job := &models.Job{
			ID:         fmt.Sprintf("job-%d", i),
			UserID:     "user-1",
			Niche:      "urban beekeeping",
			Tone:       "friendly",
			TotalBlogs: 1,
			Status:     models.JobStatusEnqueued,
		}
		require.NoError(t, manager.JobStorage().CreateJob(ctx, job))
		if status != models.JobStatusEnqueued {
			require.NoError(t, manager.JobStorage().UpdateStatus(ctx, job.ID, status, ""))
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=complete", nil)
	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, models.JobStatusComplete, resp.Jobs[0].Status)
}
