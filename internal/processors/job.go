package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/filter"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/scoring"
	"github.com/ternarybob/prospect/internal/scraper"
	"github.com/ternarybob/prospect/internal/sources"
)

// JobProcessor runs the JOB decision-tree pipeline. The next action is
// read from pipeline_state alone: each stage fills exactly one state
// field and requeues the SAME item id at the next stage, so a crash
// between stages resumes where the last commit left off.
type JobProcessor struct {
	queue       interfaces.QueueService
	registry    *sources.Registry
	matches     interfaces.MatchStorage
	companyInfo *CompanyInfo
	strikes     *filter.StrikeEngine
	scoring     *scoring.Engine
	boards      *scraper.JobPageScraper
	client      *http.Client
	renderer    interfaces.Renderer
	settings    *common.ScraperConfig
	logger      arbor.ILogger
}

func NewJobProcessor(
	queue interfaces.QueueService,
	registry *sources.Registry,
	matches interfaces.MatchStorage,
	companyInfo *CompanyInfo,
	prefilterPolicy *models.PrefilterPolicy,
	matchPolicy *models.MatchPolicy,
	client *http.Client,
	renderer interfaces.Renderer,
	settings *common.ScraperConfig,
	logger arbor.ILogger,
) *JobProcessor {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &JobProcessor{
		queue:       queue,
		registry:    registry,
		matches:     matches,
		companyInfo: companyInfo,
		strikes:     filter.NewStrikeEngine(matchPolicy, prefilterPolicy.Title, logger),
		scoring:     scoring.NewEngine(matchPolicy, logger),
		boards:      scraper.NewJobPageScraper(client, settings, logger),
		client:      client,
		renderer:    renderer,
		settings:    settings,
		logger:      logger,
	}
}

func (jp *JobProcessor) Type() models.ItemType {
	return models.ItemTypeJob
}

func (jp *JobProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	stage, run := jp.nextStage(item)

	start := time.Now()
	err := run(ctx, item)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	jp.logger.Info().
		Str("doc_id", item.ID).
		Str("stage", stage).
		Str("status", status).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Job pipeline stage finished")

	return err
}

// nextStage picks the stage from what pipeline_state already holds
func (jp *JobProcessor) nextStage(item *models.QueueItem) (string, func(context.Context, *models.QueueItem) error) {
	state := item.PipelineState
	switch {
	case state == nil || state.JobData == nil:
		return models.StageScrape, jp.stageScrape
	case state.FilterResult == nil:
		return models.StageFilter, jp.stageFilter
	case state.MatchResult == nil:
		return models.StageAnalyze, jp.stageAnalyze
	default:
		return models.StageSave, jp.stageSave
	}
}

// stageScrape resolves the posting for item.URL: through a registered
// source's config when one covers the URL, otherwise through the
// built-in per-board scrapers
func (jp *JobProcessor) stageScrape(ctx context.Context, item *models.QueueItem) error {
	posting, err := jp.scrapeJob(ctx, item.URL)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", item.URL, err)
	}

	state := item.PipelineState
	if state == nil {
		state = &models.PipelineState{}
	}
	state.JobData = posting

	return jp.queue.RequeueWithState(ctx, item.ID, state, models.StageFilter)
}

func (jp *JobProcessor) scrapeJob(ctx context.Context, rawURL string) (*models.Posting, error) {
	src, err := jp.registry.GetSourceForURL(ctx, rawURL)
	if err == nil && src != nil && src.Status == models.SourceStatusActive {
		if posting := jp.scrapeViaSource(ctx, src, rawURL); posting != nil {
			return posting, nil
		}
	}
	return jp.boards.ScrapeJobURL(ctx, rawURL)
}

// scrapeViaSource runs the registered source's config and picks the
// posting matching the requested URL. A miss falls back to the per-board
// scrapers rather than failing the item.
func (jp *JobProcessor) scrapeViaSource(ctx context.Context, src *models.Source, rawURL string) *models.Posting {
	s, err := scraper.New(&src.Config, jp.client, jp.renderer, jp.settings, jp.logger)
	if err != nil {
		return nil
	}
	postings, err := s.Scrape(ctx)
	if err != nil {
		jp.logger.Debug().
			Err(err).
			Str("source_id", src.ID).
			Str("url", rawURL).
			Msg("Registered source scrape failed, falling back to board scraper")
		return nil
	}

	want := common.URLFingerprint(rawURL)
	for i := range postings {
		if common.URLFingerprint(postings[i].URL) == want {
			return &postings[i]
		}
	}
	return nil
}

// stageFilter applies the strike engine. Rejection is terminal FILTERED
// with the full strike breakdown preserved for audit.
func (jp *JobProcessor) stageFilter(ctx context.Context, item *models.QueueItem) error {
	state := item.PipelineState
	result := jp.strikes.Evaluate(state.JobData)

	if !result.Passed {
		data, _ := json.Marshal(result)
		return jp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusFiltered, result.Reason, data, "", "")
	}

	state.FilterResult = &result
	return jp.queue.RequeueWithState(ctx, item.ID, state, models.StageAnalyze)
}

// stageAnalyze scores the posting against the match policy, with company
// context when a record can be fetched. Below-threshold is terminal
// SKIPPED, never FAILED.
func (jp *JobProcessor) stageAnalyze(ctx context.Context, item *models.QueueItem) error {
	state := item.PipelineState
	posting := state.JobData

	var company *models.Company
	if posting.Company != "" && jp.companyInfo != nil {
		c, _, err := jp.companyInfo.FetchCompanyInfo(ctx, posting.Company, posting.CompanyWebsite, "")
		if err != nil {
			jp.logger.Debug().
				Err(err).
				Str("company", posting.Company).
				Msg("Company enrichment unavailable, scoring without context")
		} else {
			company = c
		}
	}

	breakdown := jp.scoring.Score(posting, company)
	if !breakdown.Passed {
		reason := breakdown.RejectionReason
		if reason == "" {
			reason = fmt.Sprintf("score %.0f below threshold", breakdown.FinalScore)
		}
		data, _ := json.Marshal(breakdown)
		return jp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSkipped, reason, data, "", "")
	}

	state.MatchResult = &models.MatchResult{
		Score:          breakdown.FinalScore,
		Breakdown:      breakdown,
		CompanyContext: companyContext(company),
	}
	return jp.queue.RequeueWithState(ctx, item.ID, state, models.StageSave)
}

// stageSave persists the final match record
func (jp *JobProcessor) stageSave(ctx context.Context, item *models.QueueItem) error {
	state := item.PipelineState
	posting := state.JobData

	match := &models.JobMatch{
		ID:         common.NewMatchID(),
		URL:        posting.URL,
		Title:      posting.Title,
		Company:    posting.Company,
		CompanyID:  item.CompanyID,
		SourceID:   item.SourceID,
		MatchScore: state.MatchResult.Score,
		Breakdown:  state.MatchResult.Breakdown,
		Posting:    *posting,
		CreatedAt:  time.Now(),
	}

	if err := jp.matches.SaveMatch(ctx, match); err != nil {
		return fmt.Errorf("save match for %s: %w", posting.URL, err)
	}

	data, _ := json.Marshal(match)
	return jp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		"match saved: "+match.ID, data, "", "")
}

// companyContext flattens the enrichment record into the short prose
// block stored with the match
func companyContext(company *models.Company) string {
	if company == nil {
		return ""
	}
	var parts []string
	if company.About != "" {
		parts = append(parts, company.About)
	}
	if company.Industry != "" {
		parts = append(parts, "Industry: "+company.Industry)
	}
	if company.Headquarters != "" {
		parts = append(parts, "HQ: "+company.Headquarters)
	}
	if company.IsRemoteFirst {
		parts = append(parts, "Remote-first company")
	}
	return strings.Join(parts, " | ")
}
