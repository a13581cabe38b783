package interfaces

import (
	"context"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// JobListOptions filters and pages job listings
type JobListOptions struct {
	Status   string
	UserID   string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage is the durable store for job records. The owning worker is the
// only mutator of a running job; readers tolerate stale reads.
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error

	// UpdateProgress is a single atomic write of the progress pair. Progress
	// never decreases; stale writes are dropped.
	UpdateProgress(ctx context.Context, jobID string, progress, totalGenerated, failedCount int) error

	UpdateScenarios(ctx context.Context, jobID string, scenarios []models.Scenario) error
	UpdateHeartbeat(ctx context.Context, jobID string) error

	// RequestCancel flags a running job for cooperative cancellation.
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)

	MarkRefunded(ctx context.Context, jobID string, refunded int) error

	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	GetStaleJobs(ctx context.Context, staleThresholdSeconds int) ([]*models.Job, error)
	IncrementStalls(ctx context.Context, jobID string) (int, error)
	ResetRunningJobs(ctx context.Context) (int, error)

	// DeleteJob cascades to the job's content rows. Deleting a missing job
	// is a no-op.
	DeleteJob(ctx context.Context, jobID string) error
}

// ContentStorage is the insert-only store for rendered articles
type ContentStorage interface {
	SaveContent(ctx context.Context, content *models.Content) error
	FindByJobID(ctx context.Context, jobID string) ([]*models.Content, error)
	StatsByJobID(ctx context.Context, jobID string) (*models.ContentStats, error)
	CountByStatus(ctx context.Context, jobID string, status models.ContentStatus) (int, error)
	DeleteByJobID(ctx context.Context, jobID string) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	ContentStorage() ContentStorage
	Close() error
}
