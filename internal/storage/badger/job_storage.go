package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// ErrJobNotFound is returned when a job lookup misses
var ErrJobNotFound = fmt.Errorf("job not found")

// JobStorage implements the JobStorage interface for Badger.
// Read-modify-write updates are serialized by a store-level mutex; BadgerHold
// has no atomic field update, and the write rate here (a handful of progress
// ticks per second) does not justify anything finer-grained.
type JobStorage struct {
	db      *BadgerDB
	content interfaces.ContentStorage
	logger  arbor.ILogger
	mu      sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, content interfaces.ContentStorage, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:      db,
		content: content,
		logger:  logger,
	}
}

func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.UserID == "" {
		return fmt.Errorf("job user ID is required")
	}
	if job.Niche == "" {
		return fmt.Errorf("job niche is required")
	}
	if job.TotalBlogs <= 0 {
		return fmt.Errorf("job total blogs must be positive")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("job already exists: %s", job.ID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func (s *JobStorage) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	return s.mutate(jobID, func(job *models.Job) {
		job.Status = status
		if errorMsg != "" {
			job.ErrorMessage = errorMsg
		}

		now := time.Now()
		switch status {
		case models.JobStatusResearching:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
			job.LastHeartbeat = &now
		case models.JobStatusComplete, models.JobStatusPartialComplete, models.JobStatusFailed:
			job.CompletedAt = &now
		}
	})
}

func (s *JobStorage) UpdateProgress(ctx context.Context, jobID string, progress, totalGenerated, failedCount int) error {
	return s.mutate(jobID, func(job *models.Job) {
		// Progress is monotone; late or coalesced writes never move it back.
		if progress > job.Progress {
			job.Progress = progress
		}
		if totalGenerated > job.TotalContentGenerated {
			job.TotalContentGenerated = totalGenerated
		}
		if failedCount > job.FailedContentCount {
			job.FailedContentCount = failedCount
		}
		now := time.Now()
		job.LastHeartbeat = &now
	})
}

func (s *JobStorage) UpdateScenarios(ctx context.Context, jobID string, scenarios []models.Scenario) error {
	return s.mutate(jobID, func(job *models.Job) {
		job.Scenarios = scenarios
	})
}

func (s *JobStorage) UpdateHeartbeat(ctx context.Context, jobID string) error {
	return s.mutate(jobID, func(job *models.Job) {
		now := time.Now()
		job.LastHeartbeat = &now
	})
}

func (s *JobStorage) RequestCancel(ctx context.Context, jobID string) error {
	return s.mutate(jobID, func(job *models.Job) {
		job.CancelRequested = true
	})
}

func (s *JobStorage) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

func (s *JobStorage) MarkRefunded(ctx context.Context, jobID string, refunded int) error {
	return s.mutate(jobID, func(job *models.Job) {
		job.CreditsRefunded = refunded
	})
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.UserID != "" {
			query = query.And("UserID").Eq(opts.UserID)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if opts.OrderDir == "DESC" {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetStaleJobs(ctx context.Context, staleThresholdSeconds int) ([]*models.Job, error) {
	threshold := time.Now().Add(-time.Duration(staleThresholdSeconds) * time.Second)

	// Heartbeat is a *time.Time; BadgerHold comparisons on pointer fields are
	// unreliable, so filter in Go after the status query.
	var jobs []models.Job
	err := s.db.Store().Find(&jobs,
		badgerhold.Where("Status").In(models.JobStatusResearching, models.JobStatusResearchComplete, models.JobStatusGenerating))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}

	result := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		if jobs[i].LastHeartbeat == nil || jobs[i].LastHeartbeat.Before(threshold) {
			result = append(result, &jobs[i])
		}
	}
	return result, nil
}

func (s *JobStorage) IncrementStalls(ctx context.Context, jobID string) (int, error) {
	var stalls int
	err := s.mutate(jobID, func(job *models.Job) {
		job.Stalls++
		stalls = job.Stalls
	})
	return stalls, err
}

// ResetRunningJobs returns in-flight jobs to the enqueued state. Called once
// at startup so jobs orphaned by a crash are picked up again.
func (s *JobStorage) ResetRunningJobs(ctx context.Context) (int, error) {
	var jobs []models.Job
	err := s.db.Store().Find(&jobs,
		badgerhold.Where("Status").In(models.JobStatusResearching, models.JobStatusResearchComplete, models.JobStatusGenerating))
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range jobs {
		jobs[i].Status = models.JobStatusEnqueued
		jobs[i].Progress = 0
		if err := s.UpdateJob(ctx, &jobs[i]); err == nil {
			count++
		}
	}
	return count, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		s.mu.Unlock()
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	s.mu.Unlock()

	// Cascade to content rows
	if s.content != nil {
		if err := s.content.DeleteByJobID(ctx, jobID); err != nil {
			return fmt.Errorf("failed to cascade content delete: %w", err)
		}
	}
	return nil
}

// mutate applies fn to the job under the store mutex and writes it back.
func (s *JobStorage) mutate(jobID string, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	fn(&job)

	if err := s.db.Store().Upsert(jobID, &job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}
