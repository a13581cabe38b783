package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// TaskHandler processes one queue message. A returned error leaves the
// message unacked so it redelivers after the visibility timeout.
type TaskHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool polls the queue and dispatches messages to registered handlers
type WorkerPool struct {
	manager      *Manager
	handlers     map[string]TaskHandler
	pollInterval time.Duration
	concurrency  int
	taskTimeout  time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a worker pool over the queue manager
func NewWorkerPool(manager *Manager, pollInterval time.Duration, concurrency int, taskTimeout time.Duration, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	return &WorkerPool{
		manager:      manager,
		handlers:     make(map[string]TaskHandler),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		taskTimeout:  taskTimeout,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a handler for a task type. Register all handlers
// before Start; the map is not guarded.
func (wp *WorkerPool) RegisterHandler(taskType string, handler TaskHandler) {
	wp.handlers[taskType] = handler
	wp.logger.Debug().
		Str("task_type", taskType).
		Msg("Task handler registered")
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop signals all workers to exit after their current message
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger starts to spread Badger transaction contention across the
	// poll interval
	stagger := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-time.After(stagger):
		case <-wp.ctx.Done():
			return
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && !errors.Is(err, ErrNoMessage) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

func (wp *WorkerPool) processMessage(workerID int) error {
	msg, ack, err := wp.manager.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("type", msg.Type).
			Str("message_id", msg.ID).
			Msg("No handler registered for task type")
		// Ack so an unroutable message does not loop forever
		if ackErr := ack(); ackErr != nil {
			wp.logger.Warn().Err(ackErr).Msg("Failed to ack unroutable message")
		}
		return fmt.Errorf("no handler for task type: %s", msg.Type)
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Int("worker_id", workerID).
		Msg("Processing message")

	ctx := wp.ctx
	if wp.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.taskTimeout)
		defer cancel()
	}

	// Keep the claim alive for tasks that outlive the visibility timeout
	stopExtender := wp.startVisibilityExtender(msg.ID)
	defer stopExtender()

	start := time.Now()
	handlerErr := handler(ctx, msg)
	duration := time.Since(start)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", msg.ID).
			Str("job_id", msg.JobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Task handler failed")

		// The handler owns job-state failure accounting. Ack so the terminal
		// job is not re-run; redelivery is for crashes, not handled failures.
		if err := ack(); err != nil {
			wp.logger.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Msg("Failed to ack message after handler failure")
			return err
		}
		return handlerErr
	}

	wp.logger.Info().
		Str("message_id", msg.ID).
		Str("job_id", msg.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Task completed")

	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to ack message after completion")
		return err
	}
	return nil
}

// startVisibilityExtender re-extends the message claim at half the
// visibility timeout until the returned stop function is called.
func (wp *WorkerPool) startVisibilityExtender(messageID string) func() {
	interval := wp.manager.visibilityTimeout / 2
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-wp.ctx.Done():
				return
			case <-ticker.C:
				if err := wp.manager.Extend(wp.ctx, messageID, wp.manager.visibilityTimeout); err != nil {
					wp.logger.Debug().
						Err(err).
						Str("message_id", messageID).
						Msg("Failed to extend message visibility")
					return
				}
			}
		}
	}()

	var once func()
	closed := false
	once = func() {
		if !closed {
			closed = true
			close(done)
		}
	}
	return once
}
