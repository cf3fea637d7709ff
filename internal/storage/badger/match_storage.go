package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// MatchStorage implements the MatchStorage interface for Badger
type MatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchStorage) SaveMatch(ctx context.Context, match *models.JobMatch) error {
	if match.ID == "" {
		return fmt.Errorf("match ID is required")
	}
	if err := s.db.Store().Upsert(match.ID, match); err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

func (s *MatchStorage) GetMatch(ctx context.Context, id string) (*models.JobMatch, error) {
	var match models.JobMatch
	if err := s.db.Store().Get(id, &match); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("match not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &match, nil
}

func (s *MatchStorage) GetMatchByURL(ctx context.Context, url string) (*models.JobMatch, error) {
	var matches []models.JobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("URL").Eq(url).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get match by url: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *MatchStorage) ListMatches(ctx context.Context, limit int) ([]*models.JobMatch, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var matches []models.JobMatch
	if err := s.db.Store().Find(&matches, query); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	result := make([]*models.JobMatch, len(matches))
	for i := range matches {
		result[i] = &matches[i]
	}
	return result, nil
}
