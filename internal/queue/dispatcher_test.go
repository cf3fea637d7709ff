package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/models"
)

type stubProcessor struct {
	itemType models.ItemType
	fn       func(ctx context.Context, item *models.QueueItem) error
	calls    int
}

func (p *stubProcessor) Type() models.ItemType { return p.itemType }

func (p *stubProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	p.calls++
	return p.fn(ctx, item)
}

func TestDispatchRoutesByType(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 3, m.logger)

	proc := &stubProcessor{itemType: models.ItemTypeJob, fn: func(ctx context.Context, item *models.QueueItem) error {
		return m.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess, "processed", nil, "", "")
	}}
	d.Register(proc)

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	assert.Equal(t, 1, proc.calls)
	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusSuccess, item.Status)
}

func TestDispatchUnknownTypeFails(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 3, m.logger)

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeCompany, CompanyName: "Acme"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusFailed, item.Status)
}

func TestDispatchProcessorErrorMarksFailed(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 3, m.logger)

	d.Register(&stubProcessor{itemType: models.ItemTypeJob, fn: func(ctx context.Context, item *models.QueueItem) error {
		return fmt.Errorf("scrape blocked: anti-bot challenge")
	}})

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusFailed, item.Status)
	assert.Contains(t, item.ResultMessage, "scrape blocked")
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 3, m.logger)

	d.Register(&stubProcessor{itemType: models.ItemTypeJob, fn: func(ctx context.Context, item *models.QueueItem) error {
		panic("nil config dereference")
	}})

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusFailed, item.Status)
	assert.Contains(t, item.ResultMessage, "nil config dereference")
	assert.NotEmpty(t, item.ErrorDetails, "panic failures carry the stack")
}

func TestDispatchRoutesExhaustedItemsToReview(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 1, m.logger)

	d.Register(&stubProcessor{itemType: models.ItemTypeJob, fn: func(ctx context.Context, item *models.QueueItem) error {
		return fmt.Errorf("persistent fetch error")
	}})
	review := &stubProcessor{itemType: models.ItemType("REVIEW"), fn: func(ctx context.Context, item *models.QueueItem) error {
		return m.UpdateStatus(ctx, item.ID, models.ItemStatusNeedsReview, "exhausted attempts", nil, "", "")
	}}
	d.RegisterReview(review)

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	assert.Equal(t, 1, review.calls)
	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusNeedsReview, item.Status)
}

func TestDispatchLeavesCommittedTerminalStateAlone(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	d := NewDispatcher(m, 3, m.logger)

	// processor commits FILTERED itself, then returns an error; the
	// dispatcher must not overwrite the committed terminal state
	d.Register(&stubProcessor{itemType: models.ItemTypeJob, fn: func(ctx context.Context, item *models.QueueItem) error {
		if err := m.UpdateStatus(ctx, item.ID, models.ItemStatusFiltered, "onsite only", nil, "", ""); err != nil {
			return err
		}
		return fmt.Errorf("late failure")
	}})

	id, err := m.AddItem(ctx, &models.QueueItem{Type: models.ItemTypeJob, URL: "https://a.example/1"})
	require.NoError(t, err)
	leased, err := m.Lease(ctx)
	require.NoError(t, err)

	d.Dispatch(ctx, leased)

	item, err := m.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusFiltered, item.Status)
}
