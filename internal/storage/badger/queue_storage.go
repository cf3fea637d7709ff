package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// QueueStorage implements the QueueStorage interface for Badger.
// Lease transitions run inside a single Badger transaction so that two
// workers can never hold the same item.
type QueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueueStorage) SaveItem(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("item ID is required")
	}
	ensureFingerprint(item)
	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}
	return nil
}

// ensureFingerprint backfills the canonical url identity; duplicate
// queries depend on it being set for every item with a url
func ensureFingerprint(item *models.QueueItem) {
	if item.URLFingerprint == "" && item.URL != "" {
		item.URLFingerprint = common.URLFingerprint(item.URL)
	}
}

func fingerprintOf(url string) string {
	if url == "" {
		return ""
	}
	return common.URLFingerprint(url)
}

func (s *QueueStorage) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("queue item not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

func (s *QueueStorage) UpdateItem(ctx context.Context, id string, fn func(*models.QueueItem) error) (*models.QueueItem, error) {
	var updated *models.QueueItem

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var item models.QueueItem
		if err := s.db.Store().TxGet(txn, id, &item); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("queue item not found: %s", id)
			}
			return err
		}

		if err := fn(&item); err != nil {
			return err
		}

		item.UpdatedAt = time.Now()
		if err := s.db.Store().TxUpdate(txn, id, &item); err != nil {
			return err
		}
		updated = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *QueueStorage) LeaseOldestPending(ctx context.Context) (*models.QueueItem, error) {
	var leased *models.QueueItem

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var candidates []models.QueueItem
		query := badgerhold.Where("Status").Eq(models.ItemStatusPending).
			SortBy("CreatedAt").Limit(1)
		if err := s.db.Store().TxFind(txn, &candidates, query); err != nil {
			return err
		}
		if len(candidates) == 0 {
			return models.ErrNoItem
		}

		item := candidates[0]
		// Compare-and-swap: the find above ran in this transaction, so
		// the status is still PENDING when the update commits.
		item.Status = models.ItemStatusProcessing
		item.Attempts++
		now := time.Now()
		item.UpdatedAt = now
		item.StatusHistory = append(item.StatusHistory, models.StatusChange{
			From: models.ItemStatusPending,
			To:   models.ItemStatusProcessing,
			At:   now,
		})

		if err := s.db.Store().TxUpdate(txn, item.ID, &item); err != nil {
			return err
		}
		leased = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

func (s *QueueStorage) FindLive(ctx context.Context, itemType models.ItemType, url, companyID string) (*models.QueueItem, error) {
	var items []models.QueueItem
	query := badgerhold.Where("Type").Eq(itemType).
		And("URLFingerprint").Eq(fingerprintOf(url)).
		And("CompanyID").Eq(companyID).
		And("Status").In(models.ItemStatusPending, models.ItemStatusProcessing).
		Limit(1)
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to find live item: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *QueueStorage) InsertIfNoLive(ctx context.Context, item *models.QueueItem) (bool, error) {
	inserted := false
	ensureFingerprint(item)

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var dupes []models.QueueItem
		query := badgerhold.Where("Type").Eq(item.Type).
			And("URLFingerprint").Eq(item.URLFingerprint).
			And("CompanyID").Eq(item.CompanyID).
			And("Status").In(models.ItemStatusPending, models.ItemStatusProcessing).
			Limit(1)
		if err := s.db.Store().TxFind(txn, &dupes, query); err != nil {
			return err
		}
		if len(dupes) > 0 {
			return nil
		}

		if err := s.db.Store().TxInsert(txn, item.ID, item); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert queue item: %w", err)
	}
	return inserted, nil
}

func (s *QueueStorage) URLExists(ctx context.Context, url string) (bool, error) {
	count, err := s.db.Store().Count(&models.QueueItem{}, badgerhold.Where("URLFingerprint").Eq(fingerprintOf(url)))
	if err != nil {
		return false, fmt.Errorf("failed to check url existence: %w", err)
	}
	return count > 0, nil
}

func (s *QueueStorage) ListByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error) {
	query := badgerhold.Where("Status").Eq(status).SortBy("CreatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.QueueItem
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list items by status: %w", err)
	}

	result := make([]*models.QueueItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *QueueStorage) ReclaimStale(ctx context.Context, cutoff time.Time) ([]*models.QueueItem, error) {
	var reclaimed []*models.QueueItem

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var stale []models.QueueItem
		query := badgerhold.Where("Status").Eq(models.ItemStatusProcessing).
			And("UpdatedAt").Lt(cutoff)
		if err := s.db.Store().TxFind(txn, &stale, query); err != nil {
			return err
		}

		now := time.Now()
		for i := range stale {
			item := stale[i]
			item.Status = models.ItemStatusPending
			item.UpdatedAt = now
			item.StatusHistory = append(item.StatusHistory, models.StatusChange{
				From:    models.ItemStatusProcessing,
				To:      models.ItemStatusPending,
				Message: "lease expired, reclaimed by recovery sweep",
				At:      now,
			})
			if err := s.db.Store().TxUpdate(txn, item.ID, &item); err != nil {
				return err
			}
			reclaimed = append(reclaimed, &item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale items: %w", err)
	}
	return reclaimed, nil
}
