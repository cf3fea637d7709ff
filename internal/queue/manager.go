package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// ErrSpawnRefused is returned when spawn safety rejects a child item.
// Callers treat a refused spawn as a no-op, never as a failure.
var ErrSpawnRefused = errors.New("spawn refused")

// Manager owns all queue item mutation. It provides ONLY queue
// operations, no business logic; processors drive it through the
// QueueService interface.
type Manager struct {
	storage interfaces.QueueStorage
	logger  arbor.ILogger
}

// NewManager creates a new queue manager
func NewManager(storage interfaces.QueueStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		storage: storage,
		logger:  logger,
	}
}

// AddItem enqueues a new root item. A tracking id is assigned when
// absent; spawn bookkeeping is initialized for a depth-0 item.
func (m *Manager) AddItem(ctx context.Context, item *models.QueueItem) (string, error) {
	if item.Type == "" {
		return "", fmt.Errorf("item type is required")
	}

	if item.ID == "" {
		item.ID = common.NewItemID()
	}
	if item.TrackingID == "" {
		item.TrackingID = common.NewTrackingID()
	}
	if item.MaxSpawnDepth <= 0 {
		item.MaxSpawnDepth = models.DefaultMaxSpawnDepth
	}
	item.SpawnDepth = 0
	item.AncestryChain = nil
	item.Status = models.ItemStatusPending
	if item.URL != "" {
		item.URLFingerprint = common.URLFingerprint(item.URL)
	}

	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := m.storage.SaveItem(ctx, item); err != nil {
		return "", err
	}

	m.logger.Debug().
		Str("item_id", item.ID).
		Str("type", string(item.Type)).
		Str("url", item.URL).
		Msg("Item enqueued")

	return item.ID, nil
}

// Lease claims the oldest pending item for a worker. Returns
// models.ErrNoItem when the queue is empty.
func (m *Manager) Lease(ctx context.Context) (*models.QueueItem, error) {
	return m.storage.LeaseOldestPending(ctx)
}

// UpdateStatus validates and applies a status transition, recording an
// audit entry. Optional fields are written only when non-zero.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message string, scrapedData []byte, errorDetails string, pipelineStage string) error {
	_, err := m.storage.UpdateItem(ctx, id, func(item *models.QueueItem) error {
		if err := models.ValidateItemTransition(item.Status, status, pipelineStage != ""); err != nil {
			return err
		}

		item.StatusHistory = append(item.StatusHistory, models.StatusChange{
			From:    item.Status,
			To:      status,
			Message: message,
			At:      time.Now(),
		})

		item.Status = status
		if message != "" {
			item.ResultMessage = message
		}
		if scrapedData != nil {
			item.ScrapedData = scrapedData
		}
		if errorDetails != "" {
			item.ErrorDetails = errorDetails
		}
		if pipelineStage != "" {
			item.PipelineStage = pipelineStage
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug().
		Str("item_id", id).
		Str("status", string(status)).
		Msg("Item status updated")

	return nil
}

// RequeueWithState atomically moves a PROCESSING item back to PENDING
// with replaced pipeline state and the next stage. Terminal states
// cannot be requeued.
func (m *Manager) RequeueWithState(ctx context.Context, id string, state *models.PipelineState, nextStage string) error {
	if nextStage == "" {
		return fmt.Errorf("requeue requires a next stage")
	}

	_, err := m.storage.UpdateItem(ctx, id, func(item *models.QueueItem) error {
		if item.Status != models.ItemStatusProcessing {
			return fmt.Errorf("%w: requeue from %s", models.ErrInvalidTransition, item.Status)
		}

		item.StatusHistory = append(item.StatusHistory, models.StatusChange{
			From:    item.Status,
			To:      models.ItemStatusPending,
			Message: "requeued at stage " + nextStage,
			At:      time.Now(),
		})

		item.Status = models.ItemStatusPending
		item.PipelineState = state
		item.PipelineStage = nextStage
		return nil
	})
	return err
}

// SpawnItemSafely creates a child item subject to the three safety
// checks: depth overflow, duplicate live work, and ancestry cycles.
// The child inherits the tracking id, prepends the parent to its
// ancestry chain and sits one level deeper in the spawn tree.
// Returns "" with a nil error when the spawn was refused.
func (m *Manager) SpawnItemSafely(ctx context.Context, current *models.QueueItem, child *models.QueueItem) (string, error) {
	if current == nil {
		return "", fmt.Errorf("spawn requires a parent item")
	}
	if child.Type == "" {
		return "", fmt.Errorf("child type is required")
	}

	maxDepth := current.MaxSpawnDepth
	if maxDepth <= 0 {
		maxDepth = models.DefaultMaxSpawnDepth
	}
	if current.SpawnDepth >= maxDepth {
		m.logger.Warn().
			Str("parent_id", current.ID).
			Int("spawn_depth", current.SpawnDepth).
			Int("max_spawn_depth", maxDepth).
			Msg("Spawn refused: depth limit reached")
		return "", nil
	}

	if child.URL != "" {
		child.URLFingerprint = common.URLFingerprint(child.URL)
	}

	// Cycle check: the same work appearing anywhere in the ancestry
	// means this spawn would loop.
	if cyclic, ancestorID := m.wouldCycle(ctx, current, child); cyclic {
		m.logger.Warn().
			Str("parent_id", current.ID).
			Str("ancestor_id", ancestorID).
			Str("child_type", string(child.Type)).
			Str("child_url", child.URL).
			Msg("Spawn refused: cycle detected in ancestry chain")
		return "", nil
	}

	child.ID = common.NewItemID()
	child.TrackingID = current.TrackingID
	child.ParentItemID = current.ID
	child.AncestryChain = append([]string{current.ID}, current.AncestryChain...)
	child.SpawnDepth = current.SpawnDepth + 1
	child.MaxSpawnDepth = maxDepth
	child.Status = models.ItemStatusPending

	now := time.Now()
	child.CreatedAt = now
	child.UpdatedAt = now

	inserted, err := m.storage.InsertIfNoLive(ctx, child)
	if err != nil {
		return "", err
	}
	if !inserted {
		m.logger.Debug().
			Str("parent_id", current.ID).
			Str("child_type", string(child.Type)).
			Str("child_url", child.URL).
			Msg("Spawn refused: equivalent live item exists")
		return "", nil
	}

	m.logger.Info().
		Str("parent_id", current.ID).
		Str("child_id", child.ID).
		Str("child_type", string(child.Type)).
		Int("spawn_depth", child.SpawnDepth).
		Msg("Child item spawned")

	return child.ID, nil
}

// wouldCycle walks the ancestry chain comparing each ancestor's
// (type, url fingerprint) identity to the prospective child. The parent
// itself counts as an ancestor.
func (m *Manager) wouldCycle(ctx context.Context, current *models.QueueItem, child *models.QueueItem) (bool, string) {
	if current.Type == child.Type && current.URLFingerprint == child.URLFingerprint {
		return true, current.ID
	}
	for _, ancestorID := range current.AncestryChain {
		ancestor, err := m.storage.GetItem(ctx, ancestorID)
		if err != nil {
			// A missing ancestor cannot prove a cycle; keep walking.
			continue
		}
		if ancestor.Type == child.Type && ancestor.URLFingerprint == child.URLFingerprint {
			return true, ancestorID
		}
	}
	return false, ""
}

// URLExistsInQueue is the fast duplicate check used by intake
func (m *Manager) URLExistsInQueue(ctx context.Context, url string) (bool, error) {
	return m.storage.URLExists(ctx, url)
}

// GetItem fetches a queue item by id
func (m *Manager) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	return m.storage.GetItem(ctx, id)
}
