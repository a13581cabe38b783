package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
	"github.com/jerilmartin/infini8seo-sub000/internal/handlers"
	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
	"github.com/jerilmartin/infini8seo-sub000/internal/pipeline"
	"github.com/jerilmartin/infini8seo-sub000/internal/queue"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/credits"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/images"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/llm"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badgerstore.Manager
	JobQueue       *queue.Manager
	WorkerPool     *queue.WorkerPool
	Limiter        *queue.RequestLimiter

	LLMProvider   interfaces.LLMProvider
	ImageProvider interfaces.ImageProvider
	Ledger        interfaces.CreditLedger

	Researcher *pipeline.Researcher
	Generator  *pipeline.Generator
	Scheduler  *pipeline.Scheduler
	Sweeper    *pipeline.Sweeper

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	logger.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Int("worker_concurrency", cfg.Queue.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the queue, the model gateways and the pipeline
// in dependency order.
func (a *App) initServices(ctx context.Context) error {
	// Queue shares the storage manager's Badger instance
	badgerDB := a.StorageManager.DB().Store().Badger()

	jobQueue, err := queue.NewManager(
		badgerDB,
		a.Config.Queue.QueueName,
		common.MustDuration(a.Config.Queue.VisibilityTimeout),
		a.Config.Queue.MaxReceive,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.JobQueue = jobQueue
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	a.Ledger = credits.NewLedger(a.StorageManager.DB(), a.Logger)

	// One token bucket across all workers keeps the total model call rate
	// under the provider quota
	a.Limiter = queue.NewRequestLimiter(
		a.Config.Pipeline.RateLimitMax,
		common.MustDuration(a.Config.Pipeline.RateLimitWindow),
	)

	provider, err := llm.NewProvider(ctx, &a.Config.LLM, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize llm provider: %w", err)
	}
	a.LLMProvider = provider
	a.Logger.Debug().Str("model", provider.ModelName()).Msg("LLM provider initialized")

	a.ImageProvider = images.NewPexelsProvider(&a.Config.Images, a.Logger)

	a.Researcher = pipeline.NewResearcher(
		a.LLMProvider,
		a.ImageProvider,
		&a.Config.Pipeline,
		&a.Config.Images,
		a.Logger,
	)
	a.Generator = pipeline.NewGenerator(
		a.LLMProvider,
		a.StorageManager.JobStorage(),
		a.StorageManager.ContentStorage(),
		a.Limiter,
		&a.Config.Pipeline,
		a.Logger,
	)
	a.Scheduler = pipeline.NewScheduler(
		a.StorageManager.JobStorage(),
		a.StorageManager.ContentStorage(),
		a.Researcher,
		a.Generator,
		a.Ledger,
		a.Logger,
	)

	a.WorkerPool = queue.NewWorkerPool(
		jobQueue,
		common.MustDuration(a.Config.Queue.PollInterval),
		a.Config.Queue.Concurrency,
		common.MustDuration(a.Config.Pipeline.RequestTimeout),
		a.Logger,
	)
	a.WorkerPool.RegisterHandler(models.TaskTypeGenerateContent, a.Scheduler.HandleGenerateContent)

	a.Sweeper = pipeline.NewSweeper(
		a.StorageManager.JobStorage(),
		jobQueue,
		a.Ledger,
		&a.Config.Queue,
		a.Logger,
	)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.JobHandler = handlers.NewJobHandler(
		a.StorageManager.JobStorage(),
		a.StorageManager.ContentStorage(),
		a.JobQueue,
		&a.Config.Credits,
		a.Logger,
	)
}

// Start recovers interrupted work, then launches the worker pool and the
// stall sweeper.
func (a *App) Start(ctx context.Context) error {
	if err := a.recoverInterruptedJobs(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Startup job recovery incomplete")
	}

	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start stall sweeper: %w", err)
	}
	return nil
}

// recoverInterruptedJobs resets jobs orphaned by a previous crash back to
// the queue so their pipelines restart from Phase A.
func (a *App) recoverInterruptedJobs(ctx context.Context) error {
	reset, err := a.StorageManager.JobStorage().ResetRunningJobs(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		a.Logger.Warn().Int("count", reset).Msg("Reset interrupted jobs to enqueued")
	}

	enqueued, err := a.StorageManager.JobStorage().GetJobsByStatus(ctx, models.JobStatusEnqueued)
	if err != nil {
		return err
	}

	for _, job := range enqueued {
		msg := models.QueueMessage{
			ID:    common.NewJobID(),
			Type:  models.TaskTypeGenerateContent,
			JobID: job.ID,
		}
		if err := a.JobQueue.Enqueue(ctx, msg); err != nil {
			if errors.Is(err, queue.ErrDuplicateJob) {
				// Original message survived the restart; leave it be
				continue
			}
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue recovered job")
		}
	}
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		}
	}
	if a.LLMProvider != nil {
		if err := a.LLMProvider.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
