package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// RefundSourceKind tags refund entries in the credit ledger. Together with
// the job ID it forms the idempotency key.
const RefundSourceKind = "job_refund"

// Scheduler drives the job state machine for one queue task: research,
// generation, terminal transition, refund. It is registered as the handler
// for generate-content messages.
type Scheduler struct {
	jobs       interfaces.JobStorage
	content    interfaces.ContentStorage
	researcher *Researcher
	generator  *Generator
	ledger     interfaces.CreditLedger
	logger     arbor.ILogger
}

// NewScheduler creates the pipeline scheduler
func NewScheduler(jobs interfaces.JobStorage, content interfaces.ContentStorage,
	researcher *Researcher, generator *Generator,
	ledger interfaces.CreditLedger, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		content:    content,
		researcher: researcher,
		generator:  generator,
		ledger:     ledger,
		logger:     logger,
	}
}

// HandleGenerateContent processes one job end to end. Returning nil acks the
// message; only storage-level failures before the pipeline starts are worth
// a redelivery.
func (s *Scheduler) HandleGenerateContent(ctx context.Context, msg *models.QueueMessage) error {
	job, err := s.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			// Deleted between enqueue and pickup; nothing to do
			s.logger.Info().Str("job_id", msg.JobID).Msg("Job vanished before pickup")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", msg.JobID, err)
	}

	// A redelivered message for a finished job must not rerun the pipeline;
	// this gate also protects the refund from double application.
	if job.IsTerminal() {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, skipping")
		return nil
	}
	if job.CancelRequested {
		s.logger.Info().Str("job_id", job.ID).Msg("Job cancelled before start")
		return nil
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("niche", job.Niche).
		Int("total_blogs", job.TotalBlogs).
		Msg("Starting content pipeline")

	// Phase A
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusResearching, ""); err != nil {
		return fmt.Errorf("failed to transition to researching: %w", err)
	}
	s.updateProgress(ctx, job.ID, ProgressResearching, 0, 0)

	scenarios, err := s.researcher.Run(ctx, job)
	if err != nil {
		return s.failResearch(ctx, job, err)
	}

	// A cancel during research discards the result
	if cancelled, cerr := s.jobs.IsCancelRequested(ctx, job.ID); cerr == nil && cancelled {
		s.logger.Info().Str("job_id", job.ID).Msg("Job cancelled during research")
		return nil
	}

	if err := s.jobs.UpdateScenarios(ctx, job.ID, scenarios); err != nil {
		return fmt.Errorf("failed to persist scenarios: %w", err)
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusResearchComplete, ""); err != nil {
		return fmt.Errorf("failed to transition to research_complete: %w", err)
	}
	s.updateProgress(ctx, job.ID, ProgressResearchComplete, 0, 0)

	// Phase B
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusGenerating, ""); err != nil {
		return fmt.Errorf("failed to transition to generating: %w", err)
	}
	s.updateProgress(ctx, job.ID, ProgressGenerating, 0, 0)

	result, err := s.generator.Run(ctx, job, scenarios)
	if errors.Is(err, ErrCancelled) {
		s.logger.Info().
			Str("job_id", job.ID).
			Int("successes", result.Successes).
			Msg("Job cancelled during generation")
		return nil
	}
	if err != nil {
		return s.finishJob(ctx, job, &GenerationResult{Failures: job.TotalBlogs}, err.Error())
	}

	return s.finishJob(ctx, job, result, "")
}

// failResearch marks the whole job failed after Phase A exhausted its
// retries. Every planned article counts as failed, so the refund covers the
// full cost.
func (s *Scheduler) failResearch(ctx context.Context, job *models.Job, cause error) error {
	s.logger.Error().
		Err(cause).
		Str("job_id", job.ID).
		Msg("Research failed terminally")

	s.updateProgress(ctx, job.ID, ProgressDone, 0, job.TotalBlogs)
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}

	s.refund(ctx, job, job.TotalBlogs)
	return nil
}

// finishJob applies the terminal transition and the pro-rata refund
func (s *Scheduler) finishJob(ctx context.Context, job *models.Job, result *GenerationResult, errorMsg string) error {
	var status models.JobStatus
	switch {
	case result.Failures == 0:
		status = models.JobStatusComplete
	case result.Successes == 0:
		status = models.JobStatusFailed
		if errorMsg == "" {
			errorMsg = "all articles failed generation"
		}
	default:
		status = models.JobStatusPartialComplete
	}

	s.updateProgress(ctx, job.ID, ProgressDone, result.Successes, result.Failures)
	if err := s.jobs.UpdateStatus(ctx, job.ID, status, errorMsg); err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			s.logger.Info().Str("job_id", job.ID).Msg("Job deleted before terminal transition")
			return nil
		}
		return fmt.Errorf("failed to apply terminal status: %w", err)
	}

	if result.Failures > 0 {
		s.refund(ctx, job, result.Failures)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("successes", result.Successes).
		Int("failures", result.Failures).
		Msg("Content pipeline finished")

	return nil
}

// refund credits back the pro-rata cost of failed articles. The ledger key
// makes a replay a no-op.
func (s *Scheduler) refund(ctx context.Context, job *models.Job, failures int) {
	if job.CreditsCost <= 0 || job.TotalBlogs <= 0 || failures <= 0 {
		return
	}

	amount := job.CreditsCost * failures / job.TotalBlogs
	if amount <= 0 {
		return
	}

	reason := fmt.Sprintf("%d of %d articles failed", failures, job.TotalBlogs)
	if err := s.ledger.AddCredits(ctx, job.UserID, amount, RefundSourceKind, job.ID, reason); err != nil {
		s.logger.Error().Err(err).
			Str("job_id", job.ID).
			Int("amount", amount).
			Msg("Refund failed")
		return
	}
	if err := s.jobs.MarkRefunded(ctx, job.ID, amount); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record refund on job")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("amount", amount).
		Msg("Credits refunded")
}

func (s *Scheduler) updateProgress(ctx context.Context, jobID string, progress, generated, failed int) {
	if err := s.jobs.UpdateProgress(ctx, jobID, progress, generated, failed); err != nil &&
		!errors.Is(err, badgerstore.ErrJobNotFound) {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress update failed")
	}
}
