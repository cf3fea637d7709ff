package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

type fakeAgent struct {
	response string
	err      error
	prompts  []string
}

func (a *fakeAgent) Execute(ctx context.Context, req *interfaces.AgentRequest) (string, error) {
	a.prompts = append(a.prompts, req.Prompt)
	return a.response, a.err
}

func TestReviewParksExhaustedItem(t *testing.T) {
	q := newFakeQueue()
	rp := NewReviewProcessor(q, nil, common.GetLogger())

	err := rp.Process(context.Background(), &models.QueueItem{
		ID:       "itm_1",
		Type:     models.ItemTypeJob,
		Attempts: 3,
	})
	require.NoError(t, err)

	last := q.lastStatus(t)
	assert.Equal(t, models.ItemStatusNeedsReview, last.status)
	assert.Contains(t, last.message, "exhausted 3 attempts")
}

func TestReviewAttachesAgentPostMortem(t *testing.T) {
	q := newFakeQueue()
	agent := &fakeAgent{response: "  The board now serves a CAPTCHA; check the source's anti-bot tags.  "}
	rp := NewReviewProcessor(q, agent, common.GetLogger())

	err := rp.Process(context.Background(), &models.QueueItem{
		ID:           "itm_1",
		Type:         models.ItemTypeScrapeSource,
		URL:          "https://boards.greenhouse.io/acme",
		Attempts:     3,
		ErrorDetails: "scrape blocked: CAPTCHA challenge detected",
		StatusHistory: []models.StatusChange{
			{From: models.ItemStatusPending, To: models.ItemStatusProcessing},
		},
	})
	require.NoError(t, err)

	last := q.lastStatus(t)
	assert.Equal(t, models.ItemStatusNeedsReview, last.status)
	assert.Equal(t, "The board now serves a CAPTCHA; check the source's anti-bot tags.", last.message)

	require.Len(t, agent.prompts, 1)
	assert.Contains(t, agent.prompts[0], "https://boards.greenhouse.io/acme")
	assert.Contains(t, agent.prompts[0], "scrape blocked")
}

func TestReviewFallsBackWhenAgentFails(t *testing.T) {
	q := newFakeQueue()
	agent := &fakeAgent{err: assert.AnError}
	rp := NewReviewProcessor(q, agent, common.GetLogger())

	err := rp.Process(context.Background(), &models.QueueItem{ID: "itm_1", Attempts: 5})
	require.NoError(t, err)

	last := q.lastStatus(t)
	assert.Equal(t, models.ItemStatusNeedsReview, last.status)
	assert.Contains(t, last.message, "exhausted 5 attempts")
}
