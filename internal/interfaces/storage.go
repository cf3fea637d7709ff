package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/prospect/internal/models"
)

// QueueStorage is the durable surface behind the queue manager. All
// mutation of queue items goes through these methods; nothing writes the
// queue table directly.
type QueueStorage interface {
	SaveItem(ctx context.Context, item *models.QueueItem) error
	GetItem(ctx context.Context, id string) (*models.QueueItem, error)

	// UpdateItem applies fn to the stored item inside a single
	// transaction. fn returning an error aborts the write.
	UpdateItem(ctx context.Context, id string, fn func(*models.QueueItem) error) (*models.QueueItem, error)

	// LeaseOldestPending atomically flips the oldest PENDING item to
	// PROCESSING and returns it. Returns models.ErrNoItem when empty.
	LeaseOldestPending(ctx context.Context) (*models.QueueItem, error)

	// FindLive returns the live (PENDING or PROCESSING) item matching
	// the spawn identity, or nil.
	FindLive(ctx context.Context, itemType models.ItemType, url, companyID string) (*models.QueueItem, error)

	// InsertIfNoLive inserts the item only if no live item shares its
	// (type, url, company_id) identity. The check and insert run inside
	// one transaction. Returns false when a live duplicate exists.
	InsertIfNoLive(ctx context.Context, item *models.QueueItem) (bool, error)

	URLExists(ctx context.Context, url string) (bool, error)
	ListByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error)

	// ReclaimStale reverts PROCESSING items whose last update is older
	// than cutoff back to PENDING, incrementing their attempt counter.
	// Returns the reclaimed items.
	ReclaimStale(ctx context.Context, cutoff time.Time) ([]*models.QueueItem, error)
}

// SourceStorage persists registered sources
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error

	// UpdateSource applies fn to the stored source inside a single
	// transaction
	UpdateSource(ctx context.Context, id string, fn func(*models.Source) error) (*models.Source, error)
	GetSource(ctx context.Context, id string) (*models.Source, error)
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
	FindByCompanyAndAggregator(ctx context.Context, companyID, aggregatorDomain string) (*models.Source, error)
	ListByStatus(ctx context.Context, status models.SourceStatus) ([]*models.Source, error)
	ListAll(ctx context.Context) ([]*models.Source, error)
}

// CompanyStorage persists enriched company records
type CompanyStorage interface {
	SaveCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
}

// MatchStorage persists final job matches
type MatchStorage interface {
	SaveMatch(ctx context.Context, match *models.JobMatch) error
	GetMatch(ctx context.Context, id string) (*models.JobMatch, error)
	GetMatchByURL(ctx context.Context, url string) (*models.JobMatch, error)
	ListMatches(ctx context.Context, limit int) ([]*models.JobMatch, error)
}
