package processors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/sources"
	storage "github.com/ternarybob/prospect/internal/storage/badger"
)

type statusUpdate struct {
	id      string
	status  models.ItemStatus
	message string
	data    []byte
	stage   string
}

type requeueCall struct {
	id    string
	state *models.PipelineState
	stage string
}

// fakeQueue records every queue interaction so processor tests can
// assert on outcomes without a running worker pool
type fakeQueue struct {
	added       []*models.QueueItem
	spawned     []*models.QueueItem
	statuses    []statusUpdate
	requeues    []requeueCall
	existing    map[string]bool
	refuseSpawn bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{existing: map[string]bool{}}
}

func (q *fakeQueue) AddItem(ctx context.Context, item *models.QueueItem) (string, error) {
	item.ID = fmt.Sprintf("itm_%03d", len(q.added)+1)
	q.added = append(q.added, item)
	return item.ID, nil
}

func (q *fakeQueue) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message string, scrapedData []byte, errorDetails string, pipelineStage string) error {
	q.statuses = append(q.statuses, statusUpdate{
		id:      id,
		status:  status,
		message: message,
		data:    scrapedData,
		stage:   pipelineStage,
	})
	return nil
}

func (q *fakeQueue) RequeueWithState(ctx context.Context, id string, state *models.PipelineState, nextStage string) error {
	q.requeues = append(q.requeues, requeueCall{id: id, state: state, stage: nextStage})
	return nil
}

func (q *fakeQueue) SpawnItemSafely(ctx context.Context, current *models.QueueItem, child *models.QueueItem) (string, error) {
	if q.refuseSpawn {
		return "", nil
	}
	child.ID = fmt.Sprintf("spawn_%03d", len(q.spawned)+1)
	child.TrackingID = current.TrackingID
	child.ParentItemID = current.ID
	q.spawned = append(q.spawned, child)
	return child.ID, nil
}

// URLExistsInQueue mirrors the real manager: the check runs on the
// canonical fingerprint, not the raw url
func (q *fakeQueue) URLExistsInQueue(ctx context.Context, rawURL string) (bool, error) {
	return q.existing[common.URLFingerprint(rawURL)], nil
}

func (q *fakeQueue) lastStatus(t *testing.T) statusUpdate {
	t.Helper()
	require.NotEmpty(t, q.statuses, "processor committed no status update")
	return q.statuses[len(q.statuses)-1]
}

func testDB(t *testing.T) *storage.BadgerDB {
	t.Helper()
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testStores(t *testing.T) (interfaces.CompanyStorage, *sources.Registry) {
	t.Helper()
	db := testDB(t)
	return storage.NewCompanyStorage(db, common.GetLogger()), newRegistryOn(db)
}

func newRegistryOn(db *storage.BadgerDB) *sources.Registry {
	return sources.NewRegistry(storage.NewSourceStorage(db, common.GetLogger()), common.GetLogger())
}

func scrapeSettings() *common.ScraperConfig {
	return &common.ScraperConfig{
		UserAgent:           "prospect-test/1.0",
		RequestTimeout:      5 * time.Second,
		DetailTimeout:       5 * time.Second,
		FetchDelaySeconds:   0.001,
		MaxHTMLSampleLength: 2000,
	}
}

// rewriteTransport sends every request to the test server regardless of
// the configured host, so processors that fetch real-looking URLs stay
// off the network
type rewriteTransport struct {
	server *httptest.Server
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(rt.server.URL)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func serverClient(server *httptest.Server) *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: rewriteTransport{server: server},
	}
}
