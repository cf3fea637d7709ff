package processors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/scraper"
	"github.com/ternarybob/prospect/internal/sources"
)

// ScrapeSourceProcessor runs one full scrape of a registered source,
// feeding survivors into the queue through intake. Blocked scrapes
// disable the source; a sparse first result triggers one config
// self-heal attempt.
type ScrapeSourceProcessor struct {
	queue    interfaces.QueueService
	registry *sources.Registry
	analyzer *sources.Analyzer
	intake   *Intake
	client   *http.Client
	renderer interfaces.Renderer
	settings *common.ScraperConfig
	logger   arbor.ILogger
}

func NewScrapeSourceProcessor(queue interfaces.QueueService, registry *sources.Registry, analyzer *sources.Analyzer, intake *Intake, client *http.Client, renderer interfaces.Renderer, settings *common.ScraperConfig, logger arbor.ILogger) *ScrapeSourceProcessor {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &ScrapeSourceProcessor{
		queue:    queue,
		registry: registry,
		analyzer: analyzer,
		intake:   intake,
		client:   client,
		renderer: renderer,
		settings: settings,
		logger:   logger,
	}
}

func (sp *ScrapeSourceProcessor) Type() models.ItemType {
	return models.ItemTypeScrapeSource
}

func (sp *ScrapeSourceProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	src, err := sp.loadSource(ctx, item)
	if err != nil {
		return err
	}

	if src.Status == models.SourceStatusDisabled {
		return sp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSkipped,
			fmt.Sprintf("source %s is disabled", src.Name), nil, "", "")
	}

	// NULL-only FK self-heal: an item carrying a company id repairs an
	// unlinked source without ever overwriting an existing link.
	if src.CompanyID == "" && item.CompanyID != "" {
		if err := sp.registry.UpdateCompanyLink(ctx, src.ID, item.CompanyID); err != nil {
			sp.logger.Warn().
				Err(err).
				Str("source_id", src.ID).
				Msg("Company link self-heal failed")
		}
	}

	cfg := sp.expandConfig(&src.Config)

	postings, err := sp.scrape(ctx, cfg)
	if err != nil {
		var blocked *scraper.ScrapeBlockedError
		if errors.As(err, &blocked) {
			if disableErr := sp.registry.DisableSourceWithTags(ctx, src.ID, blocked.Reason, blocked.Tags); disableErr != nil {
				sp.logger.Warn().
					Err(disableErr).
					Str("source_id", src.ID).
					Msg("Failed to disable blocked source")
			}
			return sp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusFailed,
				"scrape blocked: "+blocked.Reason, nil, blocked.Error(), "")
		}

		if statusErr := sp.registry.UpdateScrapeStatus(ctx, src.ID, models.SourceStatusFailed, err.Error()); statusErr != nil {
			sp.logger.Warn().
				Err(statusErr).
				Str("source_id", src.ID).
				Msg("Failed to record scrape failure")
		}
		return fmt.Errorf("scrape source %s: %w", src.Name, err)
	}

	// A sparse first row means the config extracts nothing useful;
	// re-analyze the source URL once to synthesize a better one.
	if len(postings) > 0 && postings[0].Sparse() {
		if healed, healedCfg := sp.selfHeal(ctx, src, cfg); healed != nil {
			postings = healed
			if err := sp.registry.UpdateConfig(ctx, src.ID, healedCfg); err != nil {
				sp.logger.Warn().
					Err(err).
					Str("source_id", src.ID).
					Msg("Failed to persist healed config")
			}
		}
	}

	companyID := src.CompanyID
	if companyID == "" {
		companyID = item.CompanyID
	}

	inserted, err := sp.intake.SubmitJobs(ctx, postings, src, companyID, item)
	if err != nil {
		return fmt.Errorf("submit postings from %s: %w", src.Name, err)
	}

	// Zero jobs is a valid scrape outcome
	if err := sp.registry.UpdateScrapeStatus(ctx, src.ID, models.SourceStatusActive, ""); err != nil {
		sp.logger.Warn().
			Err(err).
			Str("source_id", src.ID).
			Msg("Failed to record scrape success")
	}

	return sp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		fmt.Sprintf("scraped %d postings, enqueued %d", len(postings), inserted), nil, "", "")
}

func (sp *ScrapeSourceProcessor) loadSource(ctx context.Context, item *models.QueueItem) (*models.Source, error) {
	if item.SourceID != "" {
		src, err := sp.registry.GetSourceByID(ctx, item.SourceID)
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", item.SourceID, err)
		}
		return src, nil
	}

	if item.URL != "" {
		src, err := sp.registry.GetSourceForURL(ctx, item.URL)
		if err != nil {
			return nil, fmt.Errorf("resolve source for %s: %w", item.URL, err)
		}
		if src != nil {
			return src, nil
		}
	}
	return nil, fmt.Errorf("no source found for item %s", item.ID)
}

// expandConfig fills a minimally registered config (url + platform hint)
// with the platform's field map and response path. Explicit values in
// the stored config always win.
func (sp *ScrapeSourceProcessor) expandConfig(cfg *models.SourceConfig) *models.SourceConfig {
	if cfg.Fields.Title != "" || cfg.Fields.URL != "" {
		return cfg
	}

	_, detected, ok := sources.DetectPlatform(cfg.URL)
	if !ok {
		return cfg
	}

	expanded := *detected
	if cfg.URL != "" {
		expanded.URL = cfg.URL
	}
	if cfg.CompanyFilter != "" {
		expanded.CompanyFilter = cfg.CompanyFilter
	}
	if cfg.CompanyName != "" {
		expanded.CompanyName = cfg.CompanyName
	}
	expanded.DisabledNotes = cfg.DisabledNotes
	expanded.DisabledTags = cfg.DisabledTags
	expanded.DisabledAt = cfg.DisabledAt
	return &expanded
}

func (sp *ScrapeSourceProcessor) scrape(ctx context.Context, cfg *models.SourceConfig) ([]models.Posting, error) {
	s, err := scraper.New(cfg, sp.client, sp.renderer, sp.settings, sp.logger)
	if err != nil {
		return nil, err
	}
	return s.Scrape(ctx)
}

// selfHeal re-analyzes the source URL and re-scrapes once with the
// synthesized config. Only a config that yields usable rows is returned.
func (sp *ScrapeSourceProcessor) selfHeal(ctx context.Context, src *models.Source, oldCfg *models.SourceConfig) ([]models.Posting, *models.SourceConfig) {
	if sp.analyzer == nil {
		return nil, nil
	}

	result, err := sp.analyzer.Analyze(ctx, &sources.AnalysisInput{
		URL:         oldCfg.URL,
		CompanyName: src.Name,
		CompanyID:   src.CompanyID,
	})
	if err != nil || result.SourceConfig == nil {
		return nil, nil
	}

	postings, err := sp.scrape(ctx, result.SourceConfig)
	if err != nil || len(postings) == 0 || postings[0].Sparse() {
		return nil, nil
	}

	sp.logger.Info().
		Str("source_id", src.ID).
		Str("url", oldCfg.URL).
		Int("postings", len(postings)).
		Msg("Source config self-healed")

	return postings, result.SourceConfig
}
