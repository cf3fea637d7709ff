package processors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/scraper"
	"github.com/ternarybob/prospect/internal/sources"
)

// SourceDiscoveryProcessor turns a candidate URL into a registered
// source. Invalid candidates become DISABLED-at-birth tombstones so the
// same URL is never re-analyzed; valid ones get a company link, a
// display name and a SCRAPE_SOURCE child.
type SourceDiscoveryProcessor struct {
	queue     interfaces.QueueService
	registry  *sources.Registry
	analyzer  *sources.Analyzer
	companies interfaces.CompanyStorage
	search    interfaces.SearchClient
	client    *http.Client
	settings  *common.ScraperConfig
	logger    arbor.ILogger
}

func NewSourceDiscoveryProcessor(queue interfaces.QueueService, registry *sources.Registry, analyzer *sources.Analyzer, companies interfaces.CompanyStorage, search interfaces.SearchClient, client *http.Client, settings *common.ScraperConfig, logger arbor.ILogger) *SourceDiscoveryProcessor {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &SourceDiscoveryProcessor{
		queue:     queue,
		registry:  registry,
		analyzer:  analyzer,
		companies: companies,
		search:    search,
		client:    client,
		settings:  settings,
		logger:    logger,
	}
}

func (sd *SourceDiscoveryProcessor) Type() models.ItemType {
	return models.ItemTypeSourceDiscovery
}

func (sd *SourceDiscoveryProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	if item.URL == "" {
		return fmt.Errorf("source discovery requires a url")
	}

	category, body := sd.categorizeFetch(ctx, item.URL)

	var snippets []interfaces.SearchResult
	if category != sources.FetchSuccess && sd.search != nil {
		snippets = sd.searchSnippets(ctx, item)
	}

	result, err := sd.analyzer.Analyze(ctx, &sources.AnalysisInput{
		URL:           item.URL,
		CompanyName:   item.CompanyName,
		CompanyID:     item.CompanyID,
		FetchCategory: category,
		FetchBody:     body,
		SearchResults: snippets,
	})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", item.URL, err)
	}

	sd.logger.Info().
		Str("item_id", item.ID).
		Str("url", item.URL).
		Str("classification", result.Classification).
		Str("fetch_category", category).
		Msg("Source candidate classified")

	if result.ShouldDisable {
		return sd.registerTombstone(ctx, item, result)
	}

	if result.Classification == sources.ClassJobAggregator && result.SourceConfig == nil {
		return sd.registerAggregatorStub(ctx, item, result)
	}

	return sd.registerSource(ctx, item, result)
}

// categorizeFetch attempts one HTTP GET and buckets the outcome
func (sd *SourceDiscoveryProcessor) categorizeFetch(ctx context.Context, rawURL string) (string, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return sources.FetchError, ""
	}
	req.Header.Set("User-Agent", sd.settings.UserAgent)

	resp, err := sd.client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "no such host") {
			return sources.FetchDNSError, ""
		}
		return sources.FetchError, ""
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	body := string(data)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return sources.FetchAuthOrBot, body
	case resp.StatusCode == http.StatusTooManyRequests:
		return sources.FetchRateLimited, body
	case resp.StatusCode >= 400:
		return sources.FetchError, body
	}

	if _, blocked := scraper.BodyLooksBlocked(body); blocked {
		return sources.FetchAuthOrBot, body
	}
	return sources.FetchSuccess, body
}

func (sd *SourceDiscoveryProcessor) searchSnippets(ctx context.Context, item *models.QueueItem) []interfaces.SearchResult {
	subject := item.CompanyName
	if subject == "" {
		subject = common.ExtractHost(item.URL)
	}
	results, err := sd.search.Search(ctx, subject+" jobs", 3)
	if err != nil {
		sd.logger.Debug().Err(err).Str("subject", subject).Msg("Snippet search failed")
		return nil
	}
	return results
}

// registerTombstone records an unusable candidate as a DISABLED source
// so it is never analyzed again. A duplicate name means the tombstone
// already exists; that still terminates the item successfully.
func (sd *SourceDiscoveryProcessor) registerTombstone(ctx context.Context, item *models.QueueItem, result *sources.AnalysisResult) error {
	now := time.Now()
	tombstone := &models.Source{
		Name:       buildDisplayName(item.CompanyName, result.AggregatorDomain, item.URL),
		SourceType: models.SourceTypeAPI,
		Status:     models.SourceStatusDisabled,
		Config: models.SourceConfig{
			URL:           item.URL,
			DisabledNotes: append([]string{now.Format(time.RFC3339) + ": " + result.DisableReason}, result.DisableNotes...),
			DisabledTags:  []string{models.DisableTagInvalid},
			DisabledAt:    &now,
		},
	}

	if _, err := sd.registry.AddSource(ctx, tombstone); err != nil {
		sd.logger.Debug().
			Err(err).
			Str("url", item.URL).
			Msg("Tombstone source not created")
	}

	return sd.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		fmt.Sprintf("%s: %s", result.Classification, result.DisableReason), nil, "", "")
}

// registerAggregatorStub records an aggregator the classifier identified
// but no deterministic config covers. The source starts DISABLED so the
// domain is remembered for job-board checks without ever being scraped.
func (sd *SourceDiscoveryProcessor) registerAggregatorStub(ctx context.Context, item *models.QueueItem, result *sources.AnalysisResult) error {
	now := time.Now()
	stub := &models.Source{
		Name:             buildDisplayName("", result.AggregatorDomain, item.URL),
		SourceType:       models.SourceTypeAPI,
		Status:           models.SourceStatusDisabled,
		AggregatorDomain: result.AggregatorDomain,
		Config: models.SourceConfig{
			URL:           item.URL,
			DisabledNotes: []string{now.Format(time.RFC3339) + ": aggregator identified without a scrape config"},
			DisabledTags:  []string{models.DisableTagInvalid},
			DisabledAt:    &now,
		},
	}

	sourceID, err := sd.registry.AddSource(ctx, stub)
	if err != nil {
		sd.logger.Debug().
			Err(err).
			Str("url", item.URL).
			Msg("Aggregator stub not created")
	} else {
		sd.logger.Info().
			Str("source_id", sourceID).
			Str("domain", result.AggregatorDomain).
			Msg("Aggregator recorded without scrape config")
	}

	return sd.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		"aggregator recorded without scrape config: "+result.AggregatorDomain, nil, "", "")
}

func (sd *SourceDiscoveryProcessor) registerSource(ctx context.Context, item *models.QueueItem, result *sources.AnalysisResult) error {
	if result.SourceConfig == nil {
		return fmt.Errorf("classification %s produced no source config for %s", result.Classification, item.URL)
	}

	companyName := firstNonEmptyString(result.CompanyName, item.CompanyName)
	companyID, newlyStubbed, err := sd.resolveCompany(ctx, item.CompanyID, companyName)
	if err != nil {
		return err
	}

	aggregatorDomain := result.AggregatorDomain
	if companyID != "" {
		aggregatorDomain = ""
	}

	// Duplicate (company_id, aggregator_domain) pairs reuse the existing
	// source instead of registering a second one.
	if companyID != "" || aggregatorDomain != "" {
		existing, err := sd.registry.GetSourceByCompanyAndAggregator(ctx, companyID, aggregatorDomain)
		if err != nil {
			return fmt.Errorf("duplicate source check: %w", err)
		}
		if existing != nil {
			return sd.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
				"reusing existing source: "+existing.ID, nil, "", "")
		}
	}

	src := &models.Source{
		Name:             buildDisplayName(companyName, result.AggregatorDomain, item.URL),
		SourceType:       result.SourceConfig.Type,
		Status:           models.SourceStatusActive,
		Config:           *result.SourceConfig,
		CompanyID:        companyID,
		AggregatorDomain: aggregatorDomain,
	}

	sourceID, err := sd.registry.AddSource(ctx, src)
	if err != nil {
		return fmt.Errorf("register source for %s: %w", item.URL, err)
	}

	scrapeChild := &models.QueueItem{
		Type:      models.ItemTypeScrapeSource,
		URL:       result.SourceConfig.URL,
		SourceID:  sourceID,
		CompanyID: companyID,
	}
	if _, err := sd.queue.SpawnItemSafely(ctx, item, scrapeChild); err != nil {
		sd.logger.Warn().
			Err(err).
			Str("source_id", sourceID).
			Msg("Failed to spawn scrape child")
	}

	if newlyStubbed {
		companyChild := &models.QueueItem{
			Type:        models.ItemTypeCompany,
			URL:         item.URL,
			CompanyName: companyName,
			CompanyID:   companyID,
		}
		if _, err := sd.queue.SpawnItemSafely(ctx, item, companyChild); err != nil {
			sd.logger.Warn().
				Err(err).
				Str("company_id", companyID).
				Msg("Failed to spawn company child")
		}
	}

	return sd.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		"source registered: "+sourceID, nil, "", "")
}

// resolveCompany finds or stubs a company record for an identified name.
// The stub carries only the name; the spawned COMPANY child enriches it.
func (sd *SourceDiscoveryProcessor) resolveCompany(ctx context.Context, companyID, companyName string) (string, bool, error) {
	if companyID != "" {
		return companyID, false, nil
	}
	if companyName == "" {
		return "", false, nil
	}

	existing, err := sd.companies.GetCompanyByName(ctx, companyName)
	if err == nil && existing != nil {
		return existing.ID, false, nil
	}

	stub := &models.Company{
		ID:          common.NewCompanyID(),
		Name:        companyName,
		DataQuality: models.DataQualityMinimal,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := sd.companies.SaveCompany(ctx, stub); err != nil {
		return "", false, fmt.Errorf("stub company %q: %w", companyName, err)
	}
	return stub.ID, true, nil
}

// buildDisplayName follows the "<company>? Jobs (<aggregator>)?" rule,
// falling back to the URL host
func buildDisplayName(companyName, aggregatorDomain, rawURL string) string {
	switch {
	case companyName != "" && aggregatorDomain != "":
		return fmt.Sprintf("%s Jobs (%s)", companyName, aggregatorDomain)
	case companyName != "":
		return companyName + " Jobs"
	case aggregatorDomain != "":
		return fmt.Sprintf("Jobs (%s)", aggregatorDomain)
	}
	if host := common.ExtractHost(rawURL); host != "" {
		return host + " Jobs"
	}
	return rawURL
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
