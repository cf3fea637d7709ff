package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	storage "github.com/ternarybob/prospect/internal/storage/badger"
)

func testManager(t *testing.T) (*Manager, interfaces.QueueStorage) {
	t.Helper()
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	qs := storage.NewQueueStorage(db, common.GetLogger())
	return NewManager(qs, common.GetLogger()), qs
}

func TestAddItemAssignsIdentity(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	id, err := m.AddItem(ctx, &models.QueueItem{
		Type: models.ItemTypeSourceDiscovery,
		URL:  "https://jobs.acme.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPending, item.Status)
	assert.Equal(t, "https://jobs.acme.com", item.URL)
	assert.Equal(t, common.URLFingerprint("https://jobs.acme.com"), item.URLFingerprint)
	assert.NotEmpty(t, item.TrackingID)
	assert.Equal(t, 0, item.SpawnDepth)
	assert.Equal(t, models.DefaultMaxSpawnDepth, item.MaxSpawnDepth)
	assert.Empty(t, item.AncestryChain)
}

func TestAddItemRequiresType(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.AddItem(context.Background(), &models.QueueItem{URL: "https://acme.com"})
	assert.Error(t, err)
}

func TestLeaseClaimsOldestPending(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	first, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/2"})
	require.NoError(t, err)

	leased, err := m.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, leased.ID)
	assert.Equal(t, models.ItemStatusProcessing, leased.Status)
	assert.Equal(t, 1, leased.Attempts)
	require.Len(t, leased.StatusHistory, 1)
	assert.Equal(t, models.ItemStatusPending, leased.StatusHistory[0].From)

	next, err := m.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, next.ID)

	_, err = m.Lease(ctx)
	assert.ErrorIs(t, err, models.ErrNoItem)
}

func TestUpdateStatusValidatesTransitions(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)

	// PENDING can only move to PROCESSING
	err = m.UpdateStatus(ctx, id, models.ItemStatusSuccess, "done", nil, "", "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = m.Lease(ctx)
	require.NoError(t, err)

	require.NoError(t, m.UpdateStatus(ctx, id, models.ItemStatusSuccess, "match saved", []byte(`{"ok":true}`), "", ""))

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusSuccess, item.Status)
	assert.Equal(t, "match saved", item.ResultMessage)
	assert.JSONEq(t, `{"ok":true}`, string(item.ScrapedData))

	// terminal states are final
	err = m.UpdateStatus(ctx, id, models.ItemStatusProcessing, "", nil, "", "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRequeueWithState(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)

	// only PROCESSING items can requeue
	err = m.RequeueWithState(ctx, id, &models.PipelineState{}, models.StageFilter)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = m.Lease(ctx)
	require.NoError(t, err)

	err = m.RequeueWithState(ctx, id, nil, "")
	assert.Error(t, err, "requeue without a stage must fail")

	state := &models.PipelineState{JobData: &models.Posting{Title: "Backend Engineer", URL: "https://a.example/1"}}
	require.NoError(t, m.RequeueWithState(ctx, id, state, models.StageFilter))

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPending, item.Status)
	assert.Equal(t, models.StageFilter, item.PipelineStage)
	require.NotNil(t, item.PipelineState)
	assert.Equal(t, "Backend Engineer", item.PipelineState.JobData.Title)

	// the requeued item is leasable again, attempts accumulate
	leased, err := m.Lease(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, leased.ID)
	assert.Equal(t, 2, leased.Attempts)
}

func TestSpawnItemSafelyInheritsAncestry(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	parentID, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeScrapeSource, URL: "https://boards.example/acme"})
	require.NoError(t, err)
	parent, err := m.GetItem(ctx, parentID)
	require.NoError(t, err)

	childID, err := m.SpawnItemSafely(ctx, parent, &models.QueueItem{
		Type: models.ItemTypeJob,
		URL:  "https://boards.example/acme/1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, childID)

	child, err := m.GetItem(ctx, childID)
	require.NoError(t, err)
	assert.Equal(t, parent.TrackingID, child.TrackingID)
	assert.Equal(t, parentID, child.ParentItemID)
	assert.Equal(t, []string{parentID}, child.AncestryChain)
	assert.Equal(t, 1, child.SpawnDepth)
}

func TestSpawnItemSafelyRefusesDuplicateLiveWork(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	parentID, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeScrapeSource, URL: "https://boards.example/acme"})
	require.NoError(t, err)
	parent, err := m.GetItem(ctx, parentID)
	require.NoError(t, err)

	child := func() *models.QueueItem {
		return &models.QueueItem{Type: models.ItemTypeJob, URL: "https://boards.example/acme/1"}
	}

	id1, err := m.SpawnItemSafely(ctx, parent, child())
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := m.SpawnItemSafely(ctx, parent, child())
	require.NoError(t, err)
	assert.Empty(t, id2, "equivalent live child must refuse, not error")

	// once the first child reaches a terminal state the slot frees up
	_, err = m.Lease(ctx) // parent
	require.NoError(t, err)
	_, err = m.Lease(ctx) // child
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(ctx, id1, models.ItemStatusFailed, "fetch error", nil, "", ""))

	id3, err := m.SpawnItemSafely(ctx, parent, child())
	require.NoError(t, err)
	assert.NotEmpty(t, id3)
}

func TestSpawnItemSafelyRefusesDepthOverflow(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	parent := &models.QueueItem{
		ID:            "itm_depth",
		Type:          models.ItemTypeScrapeSource,
		URL:           "https://boards.example/acme",
		TrackingID:    "trk_1",
		SpawnDepth:    3,
		MaxSpawnDepth: 3,
	}

	id, err := m.SpawnItemSafely(ctx, parent, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://boards.example/acme/1"})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSpawnItemSafelyRefusesCycles(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	rootID, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeSourceDiscovery, URL: "https://jobs.acme.com"})
	require.NoError(t, err)
	root, err := m.GetItem(ctx, rootID)
	require.NoError(t, err)

	midID, err := m.SpawnItemSafely(ctx, root, &models.QueueItem{Type: models.ItemTypeScrapeSource, URL: "https://boards.example/acme"})
	require.NoError(t, err)
	mid, err := m.GetItem(ctx, midID)
	require.NoError(t, err)

	// same work as the direct parent
	id, err := m.SpawnItemSafely(ctx, mid, &models.QueueItem{Type: models.ItemTypeScrapeSource, URL: "https://boards.example/acme"})
	require.NoError(t, err)
	assert.Empty(t, id)

	// same work as a grandparent, reached through the ancestry chain
	id, err = m.SpawnItemSafely(ctx, mid, &models.QueueItem{Type: models.ItemTypeSourceDiscovery, URL: "https://jobs.acme.com"})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestURLExistsInQueue(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	exists, err := m.URLExistsInQueue(ctx, "https://a.example/1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)

	exists, err = m.URLExistsInQueue(ctx, "https://a.example/1")
	require.NoError(t, err)
	assert.True(t, exists)

	// The check is canonical: scheme, tracking params and trailing
	// slashes do not defeat it
	exists, err = m.URLExistsInQueue(ctx, "http://www.a.example/1/?utm_source=feed")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSpawnItemSafelyDedupesURLVariants(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	parentID, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeScrapeSource, URL: "https://boards.example/acme"})
	require.NoError(t, err)
	parent, err := m.GetItem(ctx, parentID)
	require.NoError(t, err)

	id1, err := m.SpawnItemSafely(ctx, parent, &models.QueueItem{
		Type: models.ItemTypeJob,
		URL:  "https://boards.example/acme/1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// A tracking-param variant is the same work
	id2, err := m.SpawnItemSafely(ctx, parent, &models.QueueItem{
		Type: models.ItemTypeJob,
		URL:  "https://boards.example/acme/1?ref=hn",
	})
	require.NoError(t, err)
	assert.Empty(t, id2)

	child, err := m.GetItem(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "https://boards.example/acme/1", child.URL)
	assert.Equal(t, common.URLFingerprint(child.URL), child.URLFingerprint)
}

func TestRecoverySweepReclaimsExpiredLeases(t *testing.T) {
	m, qs := testManager(t)
	ctx := context.Background()

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	_, err = m.Lease(ctx)
	require.NoError(t, err)

	// a cutoff in the future treats the fresh lease as expired
	reclaimed, err := qs.ReclaimStale(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, id, reclaimed[0].ID)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPending, item.Status)
	assert.Equal(t, 1, item.Attempts, "reclaim keeps the attempt consumed by the lease")

	// a cutoff in the past leaves live leases alone
	_, err = m.Lease(ctx)
	require.NoError(t, err)
	reclaimed, err = qs.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}

func TestValidateItemTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.ItemStatus
		hasStage bool
		ok       bool
	}{
		{models.ItemStatusPending, models.ItemStatusProcessing, false, true},
		{models.ItemStatusPending, models.ItemStatusFailed, false, false},
		{models.ItemStatusProcessing, models.ItemStatusSuccess, false, true},
		{models.ItemStatusProcessing, models.ItemStatusFiltered, false, true},
		{models.ItemStatusProcessing, models.ItemStatusNeedsReview, false, true},
		{models.ItemStatusProcessing, models.ItemStatusPending, true, true},
		{models.ItemStatusProcessing, models.ItemStatusPending, false, false},
		{models.ItemStatusSuccess, models.ItemStatusProcessing, false, false},
		{models.ItemStatusFailed, models.ItemStatusPending, true, false},
	}

	for _, tc := range cases {
		err := models.ValidateItemTransition(tc.from, tc.to, tc.hasStage)
		if tc.ok {
			assert.NoError(t, err, "%s->%s", tc.from, tc.to)
		} else {
			require.Error(t, err, "%s->%s", tc.from, tc.to)
			assert.True(t, errors.Is(err, models.ErrInvalidTransition))
		}
	}
}
