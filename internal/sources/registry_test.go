package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
	storage "github.com/ternarybob/prospect/internal/storage/badger"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRegistry(storage.NewSourceStorage(db, common.GetLogger()), common.GetLogger())
}

func apiConfig(url string) models.SourceConfig {
	return models.SourceConfig{
		Type:   models.SourceTypeAPI,
		URL:    url,
		Fields: models.FieldMap{Title: "title", URL: "url"},
	}
}

func TestAddSourceUniqueness(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	id, err := reg.AddSource(ctx, &models.Source{
		Name:       "acme greenhouse",
		SourceType: models.SourceTypeAPI,
		Config:     apiConfig("https://boards-api.greenhouse.io/v1/boards/acme/jobs"),
		CompanyID:  "co_1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = reg.AddSource(ctx, &models.Source{
		Name:       "acme greenhouse",
		SourceType: models.SourceTypeAPI,
		Config:     apiConfig("https://example.com"),
	})
	assert.Error(t, err, "duplicate name must be rejected")
}

func TestAddSourceCompanyOrAggregator(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	src := &models.Source{
		Name:             "acme via remoteok",
		SourceType:       models.SourceTypeAPI,
		Config:           apiConfig("https://remoteok.com/api"),
		CompanyID:        "co_1",
		AggregatorDomain: "remoteok.com",
	}
	id, err := reg.AddSource(ctx, src)
	require.NoError(t, err)

	stored, err := reg.GetSourceByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "co_1", stored.CompanyID)
	assert.Empty(t, stored.AggregatorDomain, "aggregator domain is stripped when company_id is set")
}

func TestDuplicateCompanyAggregatorPair(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	_, err := reg.AddSource(ctx, &models.Source{
		Name:             "remoteok board",
		SourceType:       models.SourceTypeAPI,
		Config:           apiConfig("https://remoteok.com/api"),
		AggregatorDomain: "remoteok.com",
	})
	require.NoError(t, err)

	_, err = reg.AddSource(ctx, &models.Source{
		Name:             "remoteok board again",
		SourceType:       models.SourceTypeAPI,
		Config:           apiConfig("https://remoteok.com/api?tag=golang"),
		AggregatorDomain: "remoteok.com",
	})
	assert.Error(t, err)
}

func TestDisableSourceWithTagsMergesAdditively(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	id, err := reg.AddSource(ctx, &models.Source{
		Name:       "flaky board",
		SourceType: models.SourceTypeAPI,
		Config:     apiConfig("https://flaky.example.com/api"),
	})
	require.NoError(t, err)

	require.NoError(t, reg.DisableSourceWithTags(ctx, id, "Cloudflare waiting page detected", []string{"anti_bot"}))
	require.NoError(t, reg.DisableSourceWithTags(ctx, id, "rate limited on retry", []string{"rate_limited", "anti_bot"}))

	src, err := reg.GetSourceByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, src.Status)
	assert.Equal(t, []string{"anti_bot", "rate_limited"}, src.Config.DisabledTags)
	assert.Len(t, src.Config.DisabledNotes, 2)
	assert.NotNil(t, src.Config.DisabledAt)
}

func TestGetDisabledSourcesSkipsNonRecoverableTags(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	blocked, err := reg.AddSource(ctx, &models.Source{
		Name: "blocked", SourceType: models.SourceTypeAPI,
		Config: apiConfig("https://a.example.com"),
	})
	require.NoError(t, err)
	flaky, err := reg.AddSource(ctx, &models.Source{
		Name: "flaky", SourceType: models.SourceTypeAPI,
		Config: apiConfig("https://b.example.com"),
	})
	require.NoError(t, err)

	require.NoError(t, reg.DisableSourceWithTags(ctx, blocked, "bot wall", []string{models.DisableTagAntiBot}))
	require.NoError(t, reg.DisableSourceWithTags(ctx, flaky, "transient error", nil))

	candidates, err := reg.GetDisabledSources(ctx,
		[]string{models.DisableTagAntiBot, models.DisableTagAuthRequired, models.DisableTagProtectedAPI}, 0, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, flaky, candidates[0].ID)
}

func TestUpdateCompanyLinkNeverOverwrites(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	id, err := reg.AddSource(ctx, &models.Source{
		Name: "board", SourceType: models.SourceTypeAPI,
		Config: apiConfig("https://c.example.com"),
	})
	require.NoError(t, err)

	require.NoError(t, reg.UpdateCompanyLink(ctx, id, "co_first"))
	require.NoError(t, reg.UpdateCompanyLink(ctx, id, "co_second"))

	src, err := reg.GetSourceByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "co_first", src.CompanyID)
}

func TestAggregatorDomainLookup(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	_, err := reg.AddSource(ctx, &models.Source{
		Name: "remoteok", SourceType: models.SourceTypeAPI,
		Config:           apiConfig("https://remoteok.com/api"),
		AggregatorDomain: "remoteok.com",
	})
	require.NoError(t, err)

	assert.True(t, reg.IsJobBoardURL(ctx, "https://remoteok.com/remote-jobs/x-1"))
	assert.True(t, reg.IsJobBoardURL(ctx, "https://www.remoteok.com/anything"))
	assert.False(t, reg.IsJobBoardURL(ctx, "https://acme.com/careers"))
	assert.Equal(t, "remoteok.com", reg.GetAggregatorDomainForURL(ctx, "https://remoteok.com/api"))
}

func TestUpdateScrapeStatus(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	id, err := reg.AddSource(ctx, &models.Source{
		Name: "board", SourceType: models.SourceTypeAPI,
		Config: apiConfig("https://d.example.com"),
	})
	require.NoError(t, err)

	require.NoError(t, reg.UpdateScrapeStatus(ctx, id, models.SourceStatusActive, ""))
	src, _ := reg.GetSourceByID(ctx, id)
	assert.Equal(t, 1, src.SuccessCount)
	assert.WithinDuration(t, time.Now(), *src.LastScrapedAt, 5*time.Second)

	require.NoError(t, reg.UpdateScrapeStatus(ctx, id, models.SourceStatusFailed, "boom"))
	src, _ = reg.GetSourceByID(ctx, id)
	assert.Equal(t, models.SourceStatusFailed, src.Status)
	assert.Equal(t, "boom", src.LastError)
	assert.Equal(t, 1, src.FailureCount)
}

func TestResolveCompanyFromSource(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	id, err := reg.AddSource(ctx, &models.Source{
		Name: "Proxify", SourceType: models.SourceTypeAPI,
		Config:    apiConfig("https://e.example.com"),
		CompanyID: "co_proxify",
	})
	require.NoError(t, err)

	t.Run("tier 1 direct source id", func(t *testing.T) {
		companyID, err := reg.ResolveCompanyFromSource(ctx, id, "")
		require.NoError(t, err)
		assert.Equal(t, "co_proxify", companyID)
	})

	t.Run("tier 2 fuzzy name", func(t *testing.T) {
		companyID, err := reg.ResolveCompanyFromSource(ctx, "", "Proxify Inc.")
		require.NoError(t, err)
		assert.Equal(t, "co_proxify", companyID)
	})

	t.Run("short names never partial-match", func(t *testing.T) {
		companyID, err := reg.ResolveCompanyFromSource(ctx, "", "Pro")
		require.NoError(t, err)
		assert.Empty(t, companyID)
	})
}
