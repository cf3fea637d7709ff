package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

// WorkerPool runs N concurrent leaseholders over the queue. Each worker
// runs one item to completion (one pipeline stage for JOB items) before
// taking another.
type WorkerPool struct {
	manager      *Manager
	dispatcher   *Dispatcher
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(manager *Manager, dispatcher *Dispatcher, cfg *common.QueueConfig, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		manager:      manager,
		dispatcher:   dispatcher,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollIntervalDuration(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop gracefully stops the worker pool. Workers holding a lease finish
// their current item; the recovery sweep reclaims anything orphaned by
// a hard shutdown.
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
}

// worker is the main poll loop
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread lease contention across the poll
	// interval.
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
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
			// Drain available items before going back to sleep
			for {
				item, err := wp.manager.Lease(wp.ctx)
				if err != nil {
					if !errors.Is(err, models.ErrNoItem) {
						wp.logger.Warn().
							Err(err).
							Int("worker_id", workerID).
							Msg("Error leasing item")
					}
					break
				}

				wp.dispatcher.Dispatch(wp.ctx, item)

				select {
				case <-wp.ctx.Done():
					return
				default:
				}
			}
		}
	}
}
