package processors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/sources"
)

// ambiguousNames maps short company names that collide with common words
// or other entities to a disambiguating search context
var ambiguousNames = map[string]string{
	"bolt":   "Bolt payments checkout company",
	"stripe": "Stripe payments company",
	"notion": "Notion productivity software",
	"linear": "Linear issue tracking software",
	"ramp":   "Ramp corporate finance company",
	"brex":   "Brex corporate card company",
	"plaid":  "Plaid fintech API company",
}

// CompanyInfo is the read-through company enrichment collaborator shared
// by the JOB and COMPANY processors. Lookups hit storage first; a miss
// runs the search-first enrichment ladder and persists the result.
type CompanyInfo struct {
	companies interfaces.CompanyStorage
	registry  *sources.Registry
	search    interfaces.SearchClient
	agent     interfaces.Agent
	client    *http.Client
	settings  *common.ScraperConfig
	logger    arbor.ILogger
}

func NewCompanyInfo(companies interfaces.CompanyStorage, registry *sources.Registry, search interfaces.SearchClient, agent interfaces.Agent, client *http.Client, settings *common.ScraperConfig, logger arbor.ILogger) *CompanyInfo {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &CompanyInfo{
		companies: companies,
		registry:  registry,
		search:    search,
		agent:     agent,
		client:    client,
		settings:  settings,
		logger:    logger,
	}
}

// FetchCompanyInfo returns the stored company record, enriching and
// persisting one on a miss. The returned record never carries a
// job-board or search-engine URL as its website; board URLs the search
// turned up come back separately as discovery leads. A stored record
// means enrichment already ran, so the leads are empty.
func (ci *CompanyInfo) FetchCompanyInfo(ctx context.Context, companyName, urlHint, sourceContext string) (*models.Company, []string, error) {
	if companyName == "" {
		return nil, nil, fmt.Errorf("company name is required")
	}

	if existing, err := ci.companies.GetCompanyByName(ctx, companyName); err == nil && existing != nil {
		return existing, nil, nil
	}

	company, boardLeads := ci.enrich(ctx, companyName, urlHint, sourceContext)

	company.Website = ci.selectWebsite(ctx, company.Website, urlHint)

	// Weak enrichment gets one shot at the company's own site
	if company.Quality() == models.DataQualityMinimal && company.Website != "" {
		ci.mergeFromWebsite(ctx, company)
	}

	company.ID = common.NewCompanyID()
	company.DataQuality = company.Quality()
	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	if err := ci.companies.SaveCompany(ctx, company); err != nil {
		return nil, nil, fmt.Errorf("save company %q: %w", companyName, err)
	}

	ci.logger.Info().
		Str("company", company.Name).
		Str("data_quality", company.DataQuality).
		Str("website", company.Website).
		Int("board_leads", len(boardLeads)).
		Msg("Company record enriched")

	return company, boardLeads, nil
}

// enrich runs the ladder: search + LLM extraction, LLM-only fallback,
// then bare heuristics. Board URLs in the search results are not
// websites, but they are discovery leads worth returning.
func (ci *CompanyInfo) enrich(ctx context.Context, name, urlHint, sourceContext string) (*models.Company, []string) {
	company := &models.Company{Name: name}

	results := ci.gatherSearchResults(ctx, name, urlHint, sourceContext)

	var boardLeads []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.URL == "" || !isJobBoardLead(ctx, ci.registry, r.URL) {
			continue
		}
		fp := common.URLFingerprint(r.URL)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		boardLeads = append(boardLeads, r.URL)
	}

	if ci.agent != nil {
		if extracted := ci.extractWithAgent(ctx, name, results); extracted != nil {
			return extracted, boardLeads
		}
	}

	// Heuristic: first plausible result becomes the website, its snippet
	// the about text.
	for _, r := range results {
		if r.URL == "" || common.IsSearchEngineURL(r.URL) {
			continue
		}
		if isJobBoardLead(ctx, ci.registry, r.URL) {
			continue
		}
		company.Website = r.URL
		company.About = r.Snippet
		break
	}
	return company, boardLeads
}

// isJobBoardLead reports whether a URL points at something source
// discovery could register: a recognized ATS platform board or a
// registered aggregator domain.
func isJobBoardLead(ctx context.Context, registry *sources.Registry, rawURL string) bool {
	if _, _, matched := sources.DetectPlatform(rawURL); matched {
		return true
	}
	return registry != nil && registry.IsJobBoardURL(ctx, rawURL)
}

// gatherSearchResults issues the ranked query list, stopping once the
// accumulated results carry at least two quality signals
func (ci *CompanyInfo) gatherSearchResults(ctx context.Context, name, urlHint, sourceContext string) []interfaces.SearchResult {
	if ci.search == nil {
		return nil
	}

	context := sourceContext
	if hint, ok := ambiguousNames[strings.ToLower(strings.TrimSpace(name))]; ok && context == "" {
		context = hint
	}

	queries := []string{
		fmt.Sprintf("%q company", name),
		strings.TrimSpace(fmt.Sprintf("%s company about %s", name, context)),
	}
	if domain := ci.aggregatorHint(ctx, urlHint); domain != "" {
		queries = append(queries, fmt.Sprintf("%s jobs %s", name, domain))
	}
	queries = append(queries, fmt.Sprintf("%s careers", name))

	var collected []interfaces.SearchResult
	for _, q := range queries {
		results, err := ci.search.Search(ctx, q, 5)
		if err != nil {
			ci.logger.Warn().Err(err).Str("query", q).Msg("Search query failed")
			continue
		}
		collected = append(collected, results...)
		if searchQualitySignals(name, collected) >= 2 {
			break
		}
	}
	return collected
}

func (ci *CompanyInfo) aggregatorHint(ctx context.Context, urlHint string) string {
	if urlHint == "" || ci.registry == nil {
		return ""
	}
	return ci.registry.GetAggregatorDomainForURL(ctx, urlHint)
}

// searchQualitySignals counts distinct evidence kinds (company name,
// careers language, headquarters language) across the top results
func searchQualitySignals(name string, results []interfaces.SearchResult) int {
	normalized := common.NormalizeCompanyName(name)
	var sawName, sawCareers, sawHQ bool

	limit := len(results)
	if limit > 5 {
		limit = 5
	}
	for _, r := range results[:limit] {
		text := strings.ToLower(r.Title + " " + r.Snippet)
		if normalized != "" && strings.Contains(text, normalized) {
			sawName = true
		}
		if strings.Contains(text, "career") || strings.Contains(text, "jobs") {
			sawCareers = true
		}
		if strings.Contains(text, "headquarter") || strings.Contains(text, "based in") {
			sawHQ = true
		}
	}

	signals := 0
	for _, s := range []bool{sawName, sawCareers, sawHQ} {
		if s {
			signals++
		}
	}
	return signals
}

// extractWithAgent asks the LLM for a structured record, from search
// snippets when present or from the model's own knowledge otherwise
func (ci *CompanyInfo) extractWithAgent(ctx context.Context, name string, results []interfaces.SearchResult) *models.Company {
	var evidence strings.Builder
	for _, r := range results {
		fmt.Fprintf(&evidence, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
	}
	if evidence.Len() == 0 {
		evidence.WriteString("(no search results; answer from general knowledge, leave unknown fields empty)")
	}

	prompt := fmt.Sprintf(`Extract a structured company profile for %q.

Evidence:
%s

Respond with only a JSON object:
{"website": "", "about": "", "culture": "", "mission": "", "headquarters": "",
 "employee_count": 0, "tech_stack": [], "is_remote_first": false, "industry": ""}`,
		name, evidence.String())

	raw, err := ci.agent.Execute(ctx, &interfaces.AgentRequest{
		TaskType:  "company_extraction",
		Prompt:    prompt,
		MaxTokens: 1000,
	})
	if err != nil {
		ci.logger.Warn().Err(err).Str("company", name).Msg("Agent company extraction failed")
		return nil
	}

	parsed := gjson.Parse(extractJSONPayload(raw))
	if !parsed.IsObject() {
		return nil
	}

	company := &models.Company{
		Name:          name,
		Website:       parsed.Get("website").String(),
		About:         parsed.Get("about").String(),
		Culture:       parsed.Get("culture").String(),
		Mission:       parsed.Get("mission").String(),
		Headquarters:  parsed.Get("headquarters").String(),
		EmployeeCount: int(parsed.Get("employee_count").Int()),
		IsRemoteFirst: parsed.Get("is_remote_first").Bool(),
		Industry:      parsed.Get("industry").String(),
	}
	for _, tech := range parsed.Get("tech_stack").Array() {
		if s := tech.String(); s != "" {
			company.TechStack = append(company.TechStack, s)
		}
	}
	return company
}

// selectWebsite prefers the extracted website, falling back to the url
// hint only when it is neither a job board nor a search engine
func (ci *CompanyInfo) selectWebsite(ctx context.Context, extracted, urlHint string) string {
	for _, candidate := range []string{extracted, urlHint} {
		if candidate == "" {
			continue
		}
		if common.IsSearchEngineURL(candidate) {
			continue
		}
		if isJobBoardLead(ctx, ci.registry, candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// mergeFromWebsite scrapes the company's own site and fills gaps without
// overwriting anything the enrichment already produced
func (ci *CompanyInfo) mergeFromWebsite(ctx context.Context, company *models.Company) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, company.Website, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", ci.settings.UserAgent)

	resp, err := ci.client.Do(req)
	if err != nil {
		ci.logger.Debug().Err(err).Str("website", company.Website).Msg("Website fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return
	}

	if company.About == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			company.About = strings.TrimSpace(desc)
		}
	}
	if company.About == "" {
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			company.About = strings.TrimSpace(desc)
		}
	}
}

// extractJSONPayload pulls the first {...} block out of an LLM response
func extractJSONPayload(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
