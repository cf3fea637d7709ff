package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}
	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func (s *SourceStorage) UpdateSource(ctx context.Context, id string, fn func(*models.Source) error) (*models.Source, error) {
	var updated *models.Source

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var source models.Source
		if err := s.db.Store().TxGet(txn, id, &source); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("source not found: %s", id)
			}
			return err
		}

		if err := fn(&source); err != nil {
			return err
		}

		source.UpdatedAt = time.Now()
		if err := s.db.Store().TxUpdate(txn, id, &source); err != nil {
			return err
		}
		updated = &source
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("source not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("Name").Eq(name).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get source by name: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return &sources[0], nil
}

func (s *SourceStorage) FindByCompanyAndAggregator(ctx context.Context, companyID, aggregatorDomain string) (*models.Source, error) {
	var sources []models.Source
	query := badgerhold.Where("CompanyID").Eq(companyID).
		And("AggregatorDomain").Eq(aggregatorDomain).
		And("Status").Ne(models.SourceStatusDeleted).
		Limit(1)
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to find source by company and aggregator: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return &sources[0], nil
}

func (s *SourceStorage) ListByStatus(ctx context.Context, status models.SourceStatus) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list sources by status: %w", err)
	}

	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

func (s *SourceStorage) ListAll(ctx context.Context) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("Status").Ne(models.SourceStatusDeleted)); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}
