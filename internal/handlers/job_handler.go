package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// JobHandler handles content job API requests
type JobHandler struct {
	jobs     interfaces.JobStorage
	content  interfaces.ContentStorage
	jobQueue interfaces.JobQueue
	credits  *common.CreditsConfig
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs interfaces.JobStorage, content interfaces.ContentStorage,
	jobQueue interfaces.JobQueue, credits *common.CreditsConfig, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		content:  content,
		jobQueue: jobQueue,
		credits:  credits,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitJobRequest is the admission payload for a bulk generation job
type SubmitJobRequest struct {
	UserID            string         `json:"user_id" validate:"required"`
	Niche             string         `json:"niche" validate:"required"`
	ValuePropositions []string       `json:"value_propositions" validate:"required,min=1,max=10,dive,required"`
	Tone              string         `json:"tone" validate:"required,oneof=professional conversational authoritative friendly technical casual"`
	TotalBlogs        int            `json:"total_blogs" validate:"required,min=1,max=50"`
	Allocations       map[string]int `json:"blog_type_allocations"`
	TargetWordCount   int            `json:"target_word_count" validate:"required,min=500,max=2500"`
}

// SubmitJobHandler admits a new job and enqueues the pipeline task
// POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	allocations, err := parseAllocations(req.Allocations, req.TotalBlogs)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &models.Job{
		ID:                common.NewJobID(),
		UserID:            req.UserID,
		Niche:             strings.TrimSpace(req.Niche),
		ValuePropositions: req.ValuePropositions,
		Tone:              req.Tone,
		TotalBlogs:        req.TotalBlogs,
		Allocations:       allocations,
		TargetWordCount:   req.TargetWordCount,
		Status:            models.JobStatusEnqueued,
		CreditsCost:       req.TotalBlogs * h.credits.CostPerArticle,
	}

	if err := h.jobs.CreateJob(ctx, job); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	msg := models.QueueMessage{
		ID:    common.NewJobID(),
		Type:  models.TaskTypeGenerateContent,
		JobID: job.ID,
	}
	if err := h.jobQueue.Enqueue(ctx, msg); err != nil {
		// The job row is useless without a pipeline task; roll it back
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue job")
		if delErr := h.jobs.DeleteJob(ctx, job.ID); delErr != nil {
			h.logger.Warn().Err(delErr).Str("job_id", job.ID).Msg("Failed to roll back unqueued job")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("niche", job.Niche).
		Int("total_blogs", job.TotalBlogs).
		Int("credits_cost", job.CreditsCost).
		Msg("Job admitted")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":       job.ID,
		"status":       job.Status,
		"total_blogs":  job.TotalBlogs,
		"credits_cost": job.CreditsCost,
	})
}

// GetStatusHandler returns the polling view of a job
// GET /api/jobs/{id}/status
func (h *JobHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := pathJobID(r.URL.Path, "/status")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	titles := h.generatedTitles(r, jobID)

	response := map[string]interface{}{
		"job_id":                      job.ID,
		"status":                      job.Status,
		"progress":                    job.Progress,
		"total_blogs":                 job.TotalBlogs,
		"total_content_generated":     job.TotalContentGenerated,
		"failed_content_count":        job.FailedContentCount,
		"generated_titles":            titles,
		"credits_refunded":            job.CreditsRefunded,
		"estimated_seconds_remaining": job.EstimatedSecondsRemaining(),
	}
	if job.ErrorMessage != "" {
		response["error_message"] = job.ErrorMessage
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetContentHandler returns all rendered articles plus aggregate stats
// GET /api/jobs/{id}/content
func (h *JobHandler) GetContentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := pathJobID(r.URL.Path, "/content")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if job.Status != models.JobStatusComplete && job.Status != models.JobStatusPartialComplete {
		WriteError(w, http.StatusConflict,
			fmt.Sprintf("Content not available while job is %s", job.Status))
		return
	}

	rows, err := h.content.FindByJobID(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load content")
		WriteError(w, http.StatusInternalServerError, "Failed to load content")
		return
	}

	stats, err := h.content.StatsByJobID(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to compute content stats")
		stats = &models.ContentStats{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"content": rows,
		"stats":   stats,
	})
}

// DeleteJobHandler cancels a running job and deletes it with its content
// DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := pathJobID(r.URL.Path, "")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			// Deleting an already-deleted job is a no-op
			WriteSuccess(w, "Job deleted")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if !job.IsTerminal() {
		if err := h.jobs.RequestCancel(ctx, jobID); err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to flag cancellation")
		}
	}

	if err := h.jobs.DeleteJob(ctx, jobID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	WriteSuccess(w, "Job deleted")
}

// ListJobsHandler returns a paginated list of jobs
// GET /api/jobs?limit=50&offset=0&status=complete&user_id=...
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	orderBy := sortField(r.URL.Query().Get("order_by"))
	orderDir := r.URL.Query().Get("order_dir")
	if orderDir == "" {
		orderDir = "DESC"
	}

	opts := &interfaces.JobListOptions{
		Status:   r.URL.Query().Get("status"),
		UserID:   r.URL.Query().Get("user_id"),
		Limit:    limit,
		Offset:   offset,
		OrderBy:  orderBy,
		OrderDir: orderDir,
	}

	jobs, err := h.jobs.ListJobs(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  limit,
		"offset": offset,
	})
}

// generatedTitles collects the titles of articles rendered so far. Best
// effort; a storage hiccup yields an empty list, not a failed poll.
func (h *JobHandler) generatedTitles(r *http.Request, jobID string) []string {
	rows, err := h.content.FindByJobID(r.Context(), jobID)
	if err != nil {
		h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to load titles for status")
		return []string{}
	}

	titles := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Status == models.ContentStatusOK {
			titles = append(titles, row.BlogTitle)
		}
	}
	return titles
}

// parseAllocations validates the category map. An empty or all-zero map is
// accepted; the planner splits evenly. A non-zero sum must equal totalBlogs.
func parseAllocations(raw map[string]int, totalBlogs int) (map[models.BlogType]int, error) {
	allocations := make(map[models.BlogType]int, len(raw))
	sum := 0
	for name, count := range raw {
		blogType := models.BlogType(name)
		valid := false
		for _, bt := range models.BlogTypes {
			if bt == blogType {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown blog type %q", name)
		}
		if count < 0 {
			return nil, fmt.Errorf("allocation for %q must be non-negative", name)
		}
		allocations[blogType] = count
		sum += count
	}

	if sum != 0 && sum != totalBlogs {
		return nil, fmt.Errorf("allocations sum to %d, expected %d", sum, totalBlogs)
	}
	return allocations, nil
}

// validationMessage flattens the first validator error into a readable string
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := verrs[0]
		switch field.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", jsonFieldName(field.Field()))
		case "min", "max":
			return fmt.Sprintf("%s is out of range", jsonFieldName(field.Field()))
		case "oneof":
			return fmt.Sprintf("%s must be one of: %s", jsonFieldName(field.Field()), field.Param())
		}
		return fmt.Sprintf("%s is invalid", jsonFieldName(field.Field()))
	}
	return "Invalid request"
}

// jsonFieldName maps the Go field name to its snake_case JSON name
func jsonFieldName(field string) string {
	switch field {
	case "UserID":
		return "user_id"
	case "ValuePropositions":
		return "value_propositions"
	case "TotalBlogs":
		return "total_blogs"
	case "TargetWordCount":
		return "target_word_count"
	default:
		return strings.ToLower(field)
	}
}

// sortField maps an API sort name onto the stored field name
func sortField(name string) string {
	switch name {
	case "", "created_at":
		return "CreatedAt"
	case "status":
		return "Status"
	case "progress":
		return "Progress"
	case "completed_at":
		return "CompletedAt"
	default:
		return "CreatedAt"
	}
}

// pathJobID extracts the job ID from /api/jobs/{id}{suffix}
func pathJobID(path, suffix string) string {
	trimmed := strings.TrimPrefix(path, "/api/jobs/")
	if suffix != "" {
		trimmed = strings.TrimSuffix(trimmed, suffix)
	}
	trimmed = strings.Trim(trimmed, "/")
	if strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}
