package interfaces

import (
	"context"

	"github.com/ternarybob/prospect/internal/models"
)

// QueueService is the queue manager contract consumed by processors.
// Processors hold no long-lived state; their only handle on the queue
// is this interface plus the single item they were dispatched.
type QueueService interface {
	// AddItem enqueues a new root item, assigning a tracking id when
	// absent. Returns the item id.
	AddItem(ctx context.Context, item *models.QueueItem) (string, error)

	// UpdateStatus validates and applies a status transition, writing a
	// status history entry. Optional fields are only written when
	// non-zero.
	UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message string, scrapedData []byte, errorDetails string, pipelineStage string) error

	// RequeueWithState atomically moves PROCESSING->PENDING with a
	// replaced pipeline state and the next stage. Forbidden from
	// terminal states.
	RequeueWithState(ctx context.Context, id string, state *models.PipelineState, nextStage string) error

	// SpawnItemSafely creates a child of current, refusing on depth
	// overflow, duplicate live work, or ancestry cycles. Returns the
	// child id, or "" when the spawn was refused.
	SpawnItemSafely(ctx context.Context, current *models.QueueItem, child *models.QueueItem) (string, error)

	URLExistsInQueue(ctx context.Context, url string) (bool, error)
}

// Processor handles exactly one task kind. Outcome is reported through
// the queue service; a returned error means the dispatcher marks the
// item FAILED with the error details.
type Processor interface {
	Type() models.ItemType
	Process(ctx context.Context, item *models.QueueItem) error
}
