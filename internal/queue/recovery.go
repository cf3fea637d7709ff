package queue

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
)

// RecoverySweep reclaims items stuck in PROCESSING past the lease
// timeout. A worker that crashed mid-lease leaves its item behind; the
// sweep reverts it to PENDING with the attempt counter already
// incremented by the original lease.
type RecoverySweep struct {
	storage      interfaces.QueueStorage
	leaseTimeout time.Duration
	interval     time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewRecoverySweep creates a new recovery sweep
func NewRecoverySweep(storage interfaces.QueueStorage, cfg *common.QueueConfig, logger arbor.ILogger) *RecoverySweep {
	ctx, cancel := context.WithCancel(context.Background())
	return &RecoverySweep{
		storage:      storage,
		leaseTimeout: cfg.LeaseTimeoutDuration(),
		interval:     cfg.RecoveryIntervalDuration(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start runs the sweep loop in a goroutine
func (r *RecoverySweep) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(r.ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop
func (r *RecoverySweep) Stop() {
	r.cancel()
}

// RunOnce performs a single reclaim pass
func (r *RecoverySweep) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.leaseTimeout)
	reclaimed, err := r.storage.ReclaimStale(ctx, cutoff)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Recovery sweep failed")
		return
	}
	if len(reclaimed) > 0 {
		r.logger.Info().
			Int("count", len(reclaimed)).
			Dur("lease_timeout", r.leaseTimeout).
			Msg("Reclaimed stale processing items")
	}
}
