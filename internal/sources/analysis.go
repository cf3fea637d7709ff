package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/scraper"
)

// Source classifications
const (
	ClassJobAggregator    = "JOB_AGGREGATOR"
	ClassCompanySpecific  = "COMPANY_SPECIFIC"
	ClassSingleJobListing = "SINGLE_JOB_LISTING"
	ClassATSProviderSite  = "ATS_PROVIDER_SITE"
	ClassInvalid          = "INVALID"
)

// Fetch outcome categories recorded by the discovery processor
const (
	FetchSuccess        = "success"
	FetchAuthOrBot      = "auth_or_bot_protection"
	FetchRateLimited    = "rate_limited"
	FetchDNSError       = "dns_error"
	FetchError          = "fetch_error"
)

// AnalysisInput carries everything known about a candidate URL
type AnalysisInput struct {
	URL           string
	CompanyName   string
	CompanyID     string
	FetchCategory string
	FetchBody     string
	SearchResults []interfaces.SearchResult
}

// AnalysisResult is the full classification verdict
type AnalysisResult struct {
	Classification   string
	AggregatorDomain string
	CompanyName      string
	ShouldDisable    bool
	DisableReason    string
	DisableNotes     []string
	SourceConfig     *models.SourceConfig
	Confidence       float64
	Reasoning        string
}

// Analyzer classifies candidate source URLs. Deterministic rules run
// first; the LLM is a last resort and entirely optional.
type Analyzer struct {
	client   *http.Client
	settings *common.ScraperConfig
	agent    interfaces.Agent
	logger   arbor.ILogger
}

func NewAnalyzer(client *http.Client, settings *common.ScraperConfig, agent interfaces.Agent, logger arbor.ILogger) *Analyzer {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &Analyzer{client: client, settings: settings, agent: agent, logger: logger}
}

// knownAggregators maps aggregator domains to their board configs,
// used when the submitted URL is the aggregator itself
var knownAggregators = map[string]func() *models.SourceConfig{
	"remoteok.com": func() *models.SourceConfig {
		return &models.SourceConfig{
			Type:              models.SourceTypeAPI,
			URL:               "https://remoteok.com/api",
			ResponsePath:      "[1:]",
			CompanyExtraction: models.CompanyExtractionNone,
			Fields: models.FieldMap{
				Title:       "position",
				URL:         "url",
				Company:     "company",
				Location:    "location",
				Description: "description",
				PostedDate:  "date",
				Tags:        "tags",
			},
			SalaryMinField: "salary_min",
			SalaryMaxField: "salary_max",
		}
	},
	"weworkremotely.com": func() *models.SourceConfig {
		return &models.SourceConfig{
			Type:              models.SourceTypeRSS,
			URL:               "https://weworkremotely.com/categories/remote-programming-jobs.rss",
			CompanyExtraction: models.CompanyExtractionFromTitle,
			Fields: models.FieldMap{
				Title:       "title",
				URL:         "link",
				Description: "description",
				PostedDate:  "published",
				Tags:        "categories",
			},
		}
	},
	"remotive.com": func() *models.SourceConfig {
		return &models.SourceConfig{
			Type:         models.SourceTypeAPI,
			URL:          "https://remotive.com/api/remote-jobs?category=software-dev",
			ResponsePath: "jobs",
			Fields: models.FieldMap{
				Title:       "title",
				URL:         "url",
				Company:     "company_name",
				Location:    "candidate_required_location",
				Description: "description",
				PostedDate:  "publication_date",
				Salary:      "salary",
				Tags:        "tags",
			},
		}
	},
	"jobicy.com": func() *models.SourceConfig {
		return &models.SourceConfig{
			Type:         models.SourceTypeAPI,
			URL:          "https://jobicy.com/api/v2/remote-jobs",
			ResponsePath: "jobs",
			Fields: models.FieldMap{
				Title:       "jobTitle",
				URL:         "url",
				Company:     "companyName",
				Location:    "jobGeo",
				Description: "jobDescription",
				PostedDate:  "pubDate",
				Tags:        "jobIndustry",
			},
		}
	},
}

// Analyze runs the rule ladder over one URL
func (a *Analyzer) Analyze(ctx context.Context, input *AnalysisInput) (*AnalysisResult, error) {
	if input == nil || input.URL == "" {
		return nil, fmt.Errorf("analysis input requires a url")
	}

	if name, ok := MatchSingleListing(input.URL); ok {
		return &AnalysisResult{
			Classification: ClassSingleJobListing,
			ShouldDisable:  true,
			DisableReason:  fmt.Sprintf("URL is a single %s listing, not a scrapeable board", name),
			Confidence:     0.95,
			Reasoning:      "matched single-listing URL pattern",
		}, nil
	}

	host := strings.TrimPrefix(common.ExtractHost(input.URL), "www.")
	if build, ok := knownAggregators[host]; ok {
		return &AnalysisResult{
			Classification:   ClassJobAggregator,
			AggregatorDomain: host,
			SourceConfig:     build(),
			Confidence:       0.95,
			Reasoning:        "known aggregator domain",
		}, nil
	}

	if platform, cfg, ok := DetectPlatform(input.URL); ok {
		return a.validatePlatformConfig(ctx, input, platform, cfg)
	}

	if IsATSProviderSite(input.URL) {
		return &AnalysisResult{
			Classification: ClassATSProviderSite,
			ShouldDisable:  true,
			DisableReason:  "URL is the ATS vendor's own site, not a customer board",
			Confidence:     0.9,
			Reasoning:      "host matches a bare ATS vendor domain",
		}, nil
	}

	if result := a.probeHeuristics(ctx, input); result != nil {
		return result, nil
	}

	if a.agent != nil && (input.FetchBody != "" || len(input.SearchResults) > 0) {
		if result, err := a.classifyWithAgent(ctx, input); err == nil {
			return result, nil
		} else {
			a.logger.Warn().Err(err).Str("url", input.URL).Msg("Agent classification failed")
		}
	}

	result := &AnalysisResult{
		Classification: ClassInvalid,
		ShouldDisable:  true,
		DisableReason:  "could not classify URL as a scrapeable source",
		Confidence:     0.3,
		Reasoning:      "no rule matched and no classifier available",
	}
	if input.FetchCategory != "" && input.FetchCategory != FetchSuccess {
		result.DisableNotes = append(result.DisableNotes, "fetch outcome: "+input.FetchCategory)
	}
	return result, nil
}

// validatePlatformConfig live-tests a deterministically built config
func (a *Analyzer) validatePlatformConfig(ctx context.Context, input *AnalysisInput, platform string, cfg *models.SourceConfig) (*AnalysisResult, error) {
	if err := a.liveTest(ctx, cfg); err != nil {
		a.logger.Debug().
			Err(err).
			Str("url", input.URL).
			Str("platform", platform).
			Msg("Platform config failed live test")
		return &AnalysisResult{
			Classification: ClassInvalid,
			ShouldDisable:  true,
			DisableReason:  fmt.Sprintf("%s board detected but test call failed: %v", platform, err),
			Confidence:     0.6,
			Reasoning:      "platform pattern matched, live validation failed",
		}, nil
	}

	companyName := input.CompanyName
	if companyName == "" {
		companyName = cfg.BoardToken
	}

	return &AnalysisResult{
		Classification: ClassCompanySpecific,
		CompanyName:    companyName,
		SourceConfig:   cfg,
		Confidence:     0.9,
		Reasoning:      fmt.Sprintf("%s board pattern matched and live test succeeded", platform),
	}, nil
}

// probeHeuristics tries the jobs/careers-subdomain greenhouse probe and
// the lever single-posting probe, each verified by one live request
func (a *Analyzer) probeHeuristics(ctx context.Context, input *AnalysisInput) *AnalysisResult {
	if slug, ok := GuessBoardSlug(input.URL); ok {
		cfg := GreenhouseProbeConfig(slug)
		if cfg != nil && a.liveTest(ctx, cfg) == nil {
			return &AnalysisResult{
				Classification: ClassCompanySpecific,
				CompanyName:    firstNonEmpty(input.CompanyName, slug),
				SourceConfig:   cfg,
				Confidence:     0.7,
				Reasoning:      fmt.Sprintf("greenhouse probe with slug %q succeeded", slug),
			}
		}
	}

	if slug, ok := LeverBoardFromPosting(input.URL); ok {
		if _, cfg, matched := DetectPlatform("https://jobs.lever.co/" + slug); matched {
			if a.liveTest(ctx, cfg) == nil {
				return &AnalysisResult{
					Classification: ClassCompanySpecific,
					CompanyName:    firstNonEmpty(input.CompanyName, slug),
					SourceConfig:   cfg,
					Confidence:     0.7,
					Reasoning:      fmt.Sprintf("lever board %q derived from posting URL", slug),
				}
			}
		}
	}

	return nil
}

// liveTest runs the config once; any error fails validation
func (a *Analyzer) liveTest(ctx context.Context, cfg *models.SourceConfig) error {
	s, err := scraper.New(cfg, a.client, nil, a.settings, a.logger)
	if err != nil {
		return err
	}
	if _, err := s.Scrape(ctx); err != nil {
		return err
	}
	return nil
}

// classifyWithAgent asks the LLM to classify the fetched sample. The
// response contract is a strict JSON object.
func (a *Analyzer) classifyWithAgent(ctx context.Context, input *AnalysisInput) (*AnalysisResult, error) {
	sample := input.FetchBody
	if max := a.settings.MaxHTMLSampleLength; max > 0 && len(sample) > max {
		sample = sample[:max]
	}

	var snippets strings.Builder
	for _, sr := range input.SearchResults {
		fmt.Fprintf(&snippets, "- %s (%s): %s\n", sr.Title, sr.URL, sr.Snippet)
	}

	prompt := fmt.Sprintf(`Classify this URL as a job source.

URL: %s
Known company name: %s

Page sample:
%s

Search snippets:
%s

Respond with only a JSON object:
{"classification": "JOB_AGGREGATOR|COMPANY_SPECIFIC|SINGLE_JOB_LISTING|ATS_PROVIDER_SITE|INVALID",
 "company_name": "...", "confidence": 0.0, "reasoning": "..."}`,
		input.URL, input.CompanyName, sample, snippets.String())

	raw, err := a.agent.Execute(ctx, &interfaces.AgentRequest{
		TaskType:  "source_classification",
		Prompt:    prompt,
		MaxTokens: 500,
	})
	if err != nil {
		return nil, err
	}

	parsed := gjson.Parse(extractJSONObject(raw))
	classification := parsed.Get("classification").String()
	switch classification {
	case ClassJobAggregator, ClassCompanySpecific, ClassSingleJobListing, ClassATSProviderSite, ClassInvalid:
	default:
		return nil, fmt.Errorf("agent returned unknown classification %q", classification)
	}

	result := &AnalysisResult{
		Classification: classification,
		CompanyName:    firstNonEmpty(parsed.Get("company_name").String(), input.CompanyName),
		Confidence:     parsed.Get("confidence").Float(),
		Reasoning:      parsed.Get("reasoning").String(),
	}
	switch classification {
	case ClassSingleJobListing, ClassATSProviderSite, ClassInvalid:
		result.ShouldDisable = true
		result.DisableReason = result.Reasoning
	case ClassJobAggregator:
		result.AggregatorDomain = strings.TrimPrefix(common.ExtractHost(input.URL), "www.")
	}
	return result, nil
}

// extractJSONObject pulls the first {...} block out of an LLM response
// that may carry prose or fences around it
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	candidate := raw[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
