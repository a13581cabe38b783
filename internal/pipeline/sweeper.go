package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	"github.com/jerilmartin/infini8seo-sub000/internal/queue"
)

// Sweeper periodically hunts for running jobs whose heartbeat has gone
// silent. A stalled job is re-queued until its stall budget runs out, then
// abandoned as FAILED with a pro-rata refund.
type Sweeper struct {
	jobs          interfaces.JobStorage
	jobQueue      interfaces.JobQueue
	ledger        interfaces.CreditLedger
	stallInterval int // seconds of heartbeat silence before a job counts as stalled
	maxStalls     int
	cron          *cron.Cron
	logger        arbor.ILogger
}

// NewSweeper creates the stall sweeper from queue configuration
func NewSweeper(jobs interfaces.JobStorage, jobQueue interfaces.JobQueue,
	ledger interfaces.CreditLedger, config *common.QueueConfig, logger arbor.ILogger) *Sweeper {
	interval := common.MustDuration(config.StallInterval)
	maxStalls := config.MaxStalls
	if maxStalls <= 0 {
		maxStalls = 2
	}

	return &Sweeper{
		jobs:          jobs,
		jobQueue:      jobQueue,
		ledger:        ledger,
		stallInterval: int(interval.Seconds()),
		maxStalls:     maxStalls,
		cron:          cron.New(),
		logger:        logger,
	}
}

// Start schedules the sweep at the stall interval
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %ds", s.stallInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule stall sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Int("interval_seconds", s.stallInterval).
		Int("max_stalls", s.maxStalls).
		Msg("Stall sweeper started")
	return nil
}

// Stop halts the sweep schedule, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep processes all currently stalled jobs once
func (s *Sweeper) Sweep(ctx context.Context) {
	stale, err := s.jobs.GetStaleJobs(ctx, s.stallInterval)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale job query failed")
		return
	}

	for _, job := range stale {
		s.handleStalled(ctx, job)
	}
}

func (s *Sweeper) handleStalled(ctx context.Context, job *models.Job) {
	stalls, err := s.jobs.IncrementStalls(ctx, job.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record stall")
		return
	}

	if stalls > s.maxStalls {
		s.abandon(ctx, job, stalls)
		return
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Int("stalls", stalls).
		Int("max_stalls", s.maxStalls).
		Msg("Resurrecting stalled job")

	// Return the job to the queue for a fresh pipeline run
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusEnqueued, ""); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue stalled job")
		return
	}

	msg := models.QueueMessage{
		ID:    common.NewJobID(),
		Type:  models.TaskTypeGenerateContent,
		JobID: job.ID,
	}
	if err := s.jobQueue.Enqueue(ctx, msg); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			// The original message is still in flight; it will redeliver
			return
		}
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue resurrection message")
	}
}

// abandon marks an over-budget job failed and refunds the unfinished share
func (s *Sweeper) abandon(ctx context.Context, job *models.Job, stalls int) {
	s.logger.Error().
		Str("job_id", job.ID).
		Int("stalls", stalls).
		Msg("Abandoning job after repeated stalls")

	unfinished := job.TotalBlogs - job.TotalContentGenerated
	if unfinished < 0 {
		unfinished = 0
	}

	if err := s.jobs.UpdateProgress(ctx, job.ID, ProgressDone, job.TotalContentGenerated, unfinished); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to finalize progress")
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed,
		fmt.Sprintf("abandoned after %d stalls", stalls)); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark abandoned job failed")
		return
	}

	if job.CreditsCost > 0 && job.TotalBlogs > 0 && unfinished > 0 {
		amount := job.CreditsCost * unfinished / job.TotalBlogs
		if amount > 0 {
			reason := fmt.Sprintf("job abandoned with %d of %d articles unfinished", unfinished, job.TotalBlogs)
			if err := s.ledger.AddCredits(ctx, job.UserID, amount, RefundSourceKind, job.ID, reason); err != nil {
				s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Abandonment refund failed")
				return
			}
			if err := s.jobs.MarkRefunded(ctx, job.ID, amount); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record refund on job")
			}
		}
	}
}
