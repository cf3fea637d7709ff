package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// Dispatcher routes dequeued items to the processor registered for
// their type. This is a flat routing table, not a hierarchy: one task
// kind, one processor.
type Dispatcher struct {
	manager     *Manager
	processors  map[models.ItemType]interfaces.Processor
	review      interfaces.Processor // optional NEEDS_REVIEW handler
	maxAttempts int
	logger      arbor.ILogger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(manager *Manager, maxAttempts int, logger arbor.ILogger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Dispatcher{
		manager:     manager,
		processors:  make(map[models.ItemType]interfaces.Processor),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Register adds a processor to the routing table
func (d *Dispatcher) Register(p interfaces.Processor) {
	d.processors[p.Type()] = p
	d.logger.Debug().
		Str("item_type", string(p.Type())).
		Msg("Processor registered")
}

// RegisterReview sets the processor consulted when an item exhausts its
// attempts. It marks items NEEDS_REVIEW instead of FAILED.
func (d *Dispatcher) RegisterReview(p interfaces.Processor) {
	d.review = p
}

// Dispatch runs one leased item through its processor. The processor
// reports outcomes through the queue service; an error return (or a
// panic) here terminates the item as FAILED with diagnostics.
func (d *Dispatcher) Dispatch(ctx context.Context, item *models.QueueItem) {
	processor, ok := d.processors[item.Type]
	if !ok {
		d.logger.Error().
			Str("item_id", item.ID).
			Str("type", string(item.Type)).
			Msg("No processor registered for item type")
		d.fail(ctx, item, fmt.Sprintf("no processor for type %s", item.Type), "")
		return
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("item_id", item.ID).
				Str("type", string(item.Type)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Processor panicked")
			d.fail(ctx, item, fmt.Sprintf("processor panic: %v", r), string(debug.Stack()))
		}
	}()

	err := processor.Process(ctx, item)
	duration := time.Since(start)

	if err != nil {
		d.logger.Error().
			Err(err).
			Str("item_id", item.ID).
			Str("type", string(item.Type)).
			Str("stage", item.PipelineStage).
			Dur("duration", duration).
			Msg("Processor failed")

		if item.Attempts >= d.maxAttempts && d.review != nil {
			if reviewErr := d.review.Process(ctx, item); reviewErr == nil {
				return
			}
			// Review itself failing falls through to a normal FAILED.
		}

		d.fail(ctx, item, err.Error(), fmt.Sprintf("%+v", err))
		return
	}

	d.logger.Info().
		Str("item_id", item.ID).
		Str("type", string(item.Type)).
		Str("stage", item.PipelineStage).
		Dur("duration", duration).
		Msg("Item processed")
}

// fail terminates an item as FAILED, tolerating items whose processor
// already committed a terminal transition.
func (d *Dispatcher) fail(ctx context.Context, item *models.QueueItem, message, details string) {
	current, err := d.manager.GetItem(ctx, item.ID)
	if err == nil && current.Status.IsTerminal() {
		return
	}
	if err := d.manager.UpdateStatus(ctx, item.ID, models.ItemStatusFailed, message, nil, details, ""); err != nil {
		d.logger.Warn().
			Err(err).
			Str("item_id", item.ID).
			Msg("Failed to mark item FAILED")
	}
}
