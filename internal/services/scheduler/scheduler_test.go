package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/sources"
	storage "github.com/ternarybob/prospect/internal/storage/badger"
)

type fakeQueue struct {
	added    []*models.QueueItem
	existing map[string]bool
}

func (q *fakeQueue) AddItem(ctx context.Context, item *models.QueueItem) (string, error) {
	item.ID = fmt.Sprintf("itm_%03d", len(q.added)+1)
	q.added = append(q.added, item)
	return item.ID, nil
}

func (q *fakeQueue) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message string, scrapedData []byte, errorDetails string, pipelineStage string) error {
	return nil
}

func (q *fakeQueue) RequeueWithState(ctx context.Context, id string, state *models.PipelineState, nextStage string) error {
	return nil
}

func (q *fakeQueue) SpawnItemSafely(ctx context.Context, current *models.QueueItem, child *models.QueueItem) (string, error) {
	return "", nil
}

func (q *fakeQueue) URLExistsInQueue(ctx context.Context, rawURL string) (bool, error) {
	return q.existing[rawURL], nil
}

func testService(t *testing.T, cfg *common.SchedulerConfig) (*Service, *fakeQueue, *sources.Registry) {
	t.Helper()
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := sources.NewRegistry(storage.NewSourceStorage(db, common.GetLogger()), common.GetLogger())
	q := &fakeQueue{existing: map[string]bool{}}
	return NewService(q, registry, cfg, common.GetLogger()), q, registry
}

func addActiveSource(t *testing.T, registry *sources.Registry, name, url string) string {
	t.Helper()
	id, err := registry.AddSource(context.Background(), &models.Source{
		Name:       name,
		SourceType: models.SourceTypeAPI,
		Status:     models.SourceStatusActive,
		Config: models.SourceConfig{
			Type:   models.SourceTypeAPI,
			URL:    url,
			Fields: models.FieldMap{Title: "title", URL: "url"},
		},
	})
	require.NoError(t, err)
	return id
}

func addDisabledSource(t *testing.T, registry *sources.Registry, name string, disabledAt time.Time, tags []string) string {
	t.Helper()
	id, err := registry.AddSource(context.Background(), &models.Source{
		Name:       name,
		SourceType: models.SourceTypeAPI,
		Status:     models.SourceStatusDisabled,
		Config: models.SourceConfig{
			Type:         models.SourceTypeAPI,
			URL:          "https://" + name + ".example.com/api",
			Fields:       models.FieldMap{Title: "title", URL: "url"},
			DisabledAt:   &disabledAt,
			DisabledTags: tags,
		},
	})
	require.NoError(t, err)
	return id
}

func TestStartDisabledConfigIsNoOp(t *testing.T) {
	svc, _, _ := testService(t, &common.SchedulerConfig{Enabled: false})
	require.NoError(t, svc.Start())
	svc.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc, _, _ := testService(t, &common.SchedulerConfig{
		Enabled:        true,
		ScrapeSchedule: "not a cron expression",
	})
	require.Error(t, svc.Start())
}

func TestScrapeTickPrefersNeverScrapedSources(t *testing.T) {
	svc, q, registry := testService(t, &common.SchedulerConfig{Enabled: true, MaxSources: 2})
	ctx := context.Background()

	idA := addActiveSource(t, registry, "alpha", "https://alpha.example.com/api")
	idB := addActiveSource(t, registry, "beta", "https://beta.example.com/api")
	idC := addActiveSource(t, registry, "gamma", "https://gamma.example.com/api")
	require.NoError(t, registry.UpdateScrapeStatus(ctx, idC, models.SourceStatusActive, ""))

	svc.scrapeTick()

	require.Len(t, q.added, 2)
	got := map[string]bool{}
	for _, item := range q.added {
		assert.Equal(t, models.ItemTypeScrapeSource, item.Type)
		got[item.SourceID] = true
	}
	assert.True(t, got[idA])
	assert.True(t, got[idB])
	assert.False(t, got[idC], "recently scraped source waits its turn")
}

func TestScrapeTickSkipsSourcesAlreadyQueued(t *testing.T) {
	svc, q, registry := testService(t, &common.SchedulerConfig{Enabled: true, MaxSources: 5})

	addActiveSource(t, registry, "alpha", "https://alpha.example.com/api")
	idB := addActiveSource(t, registry, "beta", "https://beta.example.com/api")
	q.existing["https://alpha.example.com/api"] = true

	svc.scrapeTick()

	require.Len(t, q.added, 1)
	assert.Equal(t, idB, q.added[0].SourceID)
}

func TestRecoveryTickReEnablesTransientFailures(t *testing.T) {
	svc, _, registry := testService(t, &common.SchedulerConfig{Enabled: true, MinDisabledHours: 1})
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	transient := addDisabledSource(t, registry, "transient", past, []string{models.DisableTagRateLimited})
	permanent := addDisabledSource(t, registry, "permanent", past, []string{models.DisableTagAntiBot})
	recent := addDisabledSource(t, registry, "recent", time.Now().Add(-10*time.Minute), []string{models.DisableTagRateLimited})

	svc.recoveryTick()

	src, err := registry.GetSourceByID(ctx, transient)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusActive, src.Status)

	src, err = registry.GetSourceByID(ctx, permanent)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, src.Status, "permanently tagged sources stay down")

	src, err = registry.GetSourceByID(ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, src.Status, "cooldown not yet served")
}
