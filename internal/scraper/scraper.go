package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// Scraper executes one Source-config against its endpoint and returns
// normalized postings. It is built per scrape; the only state it keeps
// is the memoized effective URL and the detail-request pacer.
type Scraper struct {
	cfg      *models.SourceConfig
	client   *http.Client
	renderer interfaces.Renderer
	settings *common.ScraperConfig
	logger   arbor.ILogger

	effectiveURLOnce string
	detailPacer      *rate.Limiter
}

// New creates a scraper for a validated source config
func New(cfg *models.SourceConfig, client *http.Client, renderer interfaces.Renderer, settings *common.ScraperConfig, logger arbor.ILogger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}

	// One detail request per fetch_delay_seconds, applied even when the
	// request fails.
	delay := settings.FetchDelaySeconds
	if delay <= 0 {
		delay = 1.0
	}
	pacer := rate.NewLimiter(rate.Limit(1.0/delay), 1)

	return &Scraper{
		cfg:         cfg,
		client:      client,
		renderer:    renderer,
		settings:    settings,
		logger:      logger,
		detailPacer: pacer,
	}, nil
}

// Scrape runs the configured transport and returns normalized postings.
// A *ScrapeBlockedError means the caller must disable the source; any
// other error is a transient failure to record against it.
func (s *Scraper) Scrape(ctx context.Context) ([]models.Posting, error) {
	var (
		postings []models.Posting
		err      error
	)

	switch s.cfg.Type {
	case models.SourceTypeAPI:
		postings, err = s.scrapeAPI(ctx)
	case models.SourceTypeRSS:
		postings, err = s.scrapeRSS(ctx)
	case models.SourceTypeHTML:
		postings, err = s.scrapeHTML(ctx)
	default:
		return nil, fmt.Errorf("invalid config: unsupported type %q", s.cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if s.cfg.CompanyFilter != "" {
		postings = filterByCompany(postings, s.cfg.CompanyFilter)
	}

	for i := range postings {
		s.enrichFromDetail(ctx, &postings[i])
	}

	s.logger.Info().
		Str("url", s.effectiveURL()).
		Str("type", s.cfg.Type).
		Int("postings", len(postings)).
		Msg("Scrape completed")

	return postings, nil
}

// effectiveURL merges the server-side company filter into the query
// string, preserving existing params. Memoized per scraper instance.
func (s *Scraper) effectiveURL() string {
	if s.effectiveURLOnce != "" {
		return s.effectiveURLOnce
	}

	raw := s.cfg.URL
	if s.cfg.CompanyFilter != "" && s.cfg.CompanyFilterParam != "" {
		if u, err := url.Parse(raw); err == nil {
			q := u.Query()
			q.Set(s.cfg.CompanyFilterParam, s.cfg.CompanyFilter)
			u.RawQuery = q.Encode()
			raw = u.String()
		}
	}

	s.effectiveURLOnce = raw
	return raw
}

// scrapeAPI fetches a JSON endpoint, auto-paginating POST offset/limit
// bodies
func (s *Scraper) scrapeAPI(ctx context.Context) ([]models.Posting, error) {
	if strings.EqualFold(s.cfg.Method, http.MethodPost) && s.hasOffsetLimitBody() {
		return s.scrapePaginated(ctx)
	}

	body, err := s.fetch(ctx, s.effectiveURL(), s.cfg.Method, s.cfg.PostBody)
	if err != nil {
		return nil, err
	}

	items, err := navigateResponsePath(body, s.cfg.ResponsePath)
	if err != nil {
		return nil, fmt.Errorf("navigate response_path %q: %w", s.cfg.ResponsePath, err)
	}

	if len(items) == 0 {
		if marker := detectBlockedBody(string(body)); marker != "" {
			return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
		}
		s.logger.Debug().Str("url", s.effectiveURL()).Msg("API returned no items")
	}

	return s.buildPostings(items), nil
}

// scrapeRSS fetches and parses a feed, detecting anti-bot pages served
// in place of XML
func (s *Scraper) scrapeRSS(ctx context.Context) ([]models.Posting, error) {
	body, err := s.fetch(ctx, s.effectiveURL(), http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	parser := gofeed.NewParser()
	feed, parseErr := parser.ParseString(string(body))
	if parseErr != nil || feed == nil || len(feed.Items) == 0 {
		if marker := detectBlockedBody(string(body)); marker != "" {
			return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
		}
		if parseErr != nil {
			return nil, fmt.Errorf("parse feed: %w", parseErr)
		}
		return nil, nil
	}

	items := make([]gjson.Result, 0, len(feed.Items))
	for _, entry := range feed.Items {
		doc := map[string]interface{}{
			"title":       entry.Title,
			"link":        entry.Link,
			"description": entry.Description,
			"content":     entry.Content,
			"published":   entry.Published,
			"categories":  entry.Categories,
			"guid":        entry.GUID,
		}
		if entry.PublishedParsed != nil {
			doc["published"] = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}
		if len(entry.Authors) > 0 {
			doc["author"] = entry.Authors[0].Name
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		items = append(items, gjson.ParseBytes(raw))
	}

	return s.buildPostings(items), nil
}

// scrapeHTML fetches (or renders) a page and selects job elements
func (s *Scraper) scrapeHTML(ctx context.Context) ([]models.Posting, error) {
	var html string

	if s.cfg.RequiresJS {
		if s.renderer == nil {
			return nil, fmt.Errorf("source requires JavaScript rendering but no renderer is available")
		}
		timeoutMs := s.cfg.RenderTimeoutMs
		if timeoutMs < 1000 {
			timeoutMs = int(s.settings.RenderWaitTime/time.Millisecond) + 10000
		}
		result, err := s.renderer.Render(ctx, s.effectiveURL(), s.cfg.RenderWaitFor, timeoutMs)
		if err != nil {
			return nil, fmt.Errorf("render page: %w", err)
		}
		if result.Status >= 400 && result.Status < 500 {
			return nil, NewBlockedError(fmt.Sprintf("HTTP %d: %s", result.Status, http.StatusText(result.Status)))
		}
		html = result.HTML
	} else {
		body, err := s.fetch(ctx, s.effectiveURL(), http.MethodGet, nil)
		if err != nil {
			return nil, err
		}
		html = string(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	selection := doc.Find(s.cfg.JobSelector)
	if selection.Length() == 0 {
		if marker := detectBlockedBody(html); marker != "" {
			return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
		}
		s.logger.Debug().
			Str("url", s.effectiveURL()).
			Str("selector", s.cfg.JobSelector).
			Msg("Job selector matched no elements")
		return nil, nil
	}

	var items []gjson.Result
	selection.Each(func(_ int, el *goquery.Selection) {
		doc := s.extractHTMLItem(el)
		raw, err := json.Marshal(doc)
		if err != nil {
			return
		}
		items = append(items, gjson.ParseBytes(raw))
	})

	return s.buildPostings(items), nil
}

// extractHTMLItem applies CSS field paths to one job element, producing
// the JSON document the shared normalization consumes
func (s *Scraper) extractHTMLItem(el *goquery.Selection) map[string]interface{} {
	f := s.cfg.Fields
	doc := make(map[string]interface{})

	set := func(key, path string) {
		if path == "" {
			return
		}
		if v := extractCSSValue(el, path); v != "" {
			doc[key] = v
		}
	}

	set("title", f.Title)
	set("url", f.URL)
	set("company", f.Company)
	set("location", f.Location)
	set("description", f.Description)
	set("posted_date", f.PostedDate)
	set("salary", f.Salary)
	set("company_website", f.CompanyWebsite)

	if f.Tags != "" {
		selector, attr := splitSelectorAttr(f.Tags)
		var tags []string
		el.Find(selector).Each(func(_ int, t *goquery.Selection) {
			v := selectionValue(t, attr)
			if v != "" {
				tags = append(tags, v)
			}
		})
		if len(tags) > 0 {
			doc["tags"] = tags
		}
	}

	// Field paths resolve against these keys verbatim for HTML sources
	remapIdentityFields(doc, f)
	return doc
}

// remapIdentityFields rewrites extracted values under the configured
// path names so buildPosting's path lookup finds them
func remapIdentityFields(doc map[string]interface{}, f models.FieldMap) {
	pairs := []struct{ canonical, path string }{
		{"title", f.Title}, {"url", f.URL}, {"company", f.Company},
		{"location", f.Location}, {"description", f.Description},
		{"posted_date", f.PostedDate}, {"salary", f.Salary},
		{"tags", f.Tags}, {"company_website", f.CompanyWebsite},
	}
	for _, p := range pairs {
		if p.path == "" || p.path == p.canonical {
			continue
		}
		if v, ok := doc[p.canonical]; ok {
			doc[p.path] = v
			delete(doc, p.canonical)
		}
	}
}

// extractCSSValue resolves a CSS field path against one element. A "."
// selector targets the element itself.
func extractCSSValue(el *goquery.Selection, path string) string {
	selector, attr := splitSelectorAttr(path)
	target := el
	if selector != "" && selector != "." {
		target = el.Find(selector).First()
	}
	return selectionValue(target, attr)
}

func selectionValue(sel *goquery.Selection, attr string) string {
	if sel.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := sel.Attr(attr)
		return strings.TrimSpace(v)
	}
	return collapseWhitespace(sel.Text())
}

// buildPostings normalizes transport items, dropping those without even
// a title or URL
func (s *Scraper) buildPostings(items []gjson.Result) []models.Posting {
	postings := make([]models.Posting, 0, len(items))
	for _, item := range items {
		p := buildPosting(item, s.cfg)
		if p.Title == "" && p.URL == "" {
			continue
		}
		postings = append(postings, p)
	}
	return postings
}

// hasOffsetLimitBody reports whether the POST body carries both the
// offset and limit keys that trigger auto-pagination
func (s *Scraper) hasOffsetLimitBody() bool {
	if s.cfg.PostBody == nil {
		return false
	}
	_, hasOffset := s.cfg.PostBody["offset"]
	_, hasLimit := s.cfg.PostBody["limit"]
	return hasOffset && hasLimit
}

// fetch performs one HTTP request with the configured auth, timeout and
// blocked-response handling. 4xx statuses raise ScrapeBlocked.
func (s *Scraper) fetch(ctx context.Context, rawURL, method string, postBody map[string]interface{}) ([]byte, error) {
	if method == "" {
		method = http.MethodGet
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.settings.RequestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if postBody != nil {
		data, err := json.Marshal(postBody)
		if err != nil {
			return nil, fmt.Errorf("marshal post body: %w", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", s.settings.UserAgent)
	req.Header.Set("Accept", "*/*")
	if postBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	s.applyAuth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "no such host") {
			return nil, NewBlockedError("DNS resolution failed for "+rawURL, models.DisableTagDNSError)
		}
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		reason := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, NewBlockedError(reason, models.DisableTagAuthRequired)
		case http.StatusTooManyRequests:
			return nil, NewBlockedError(reason, models.DisableTagRateLimited)
		default:
			return nil, NewBlockedError(reason)
		}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("request %s: HTTP %d", rawURL, resp.StatusCode)
	}

	return body, nil
}

// applyAuth attaches credentials per the configured auth type. Called
// for every request, including every pagination page.
func (s *Scraper) applyAuth(req *http.Request) {
	if s.cfg.APIKey == "" {
		return
	}
	switch s.cfg.AuthType {
	case models.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	case models.AuthTypeHeader:
		header := s.cfg.AuthParam
		if header == "" {
			header = "X-Api-Key"
		}
		req.Header.Set(header, s.cfg.APIKey)
	case models.AuthTypeQuery:
		param := s.cfg.AuthParam
		if param == "" {
			param = "api_key"
		}
		q := req.URL.Query()
		q.Set(param, s.cfg.APIKey)
		req.URL.RawQuery = q.Encode()
	}
}

// filterByCompany keeps only postings whose company fuzzy-matches the
// configured filter
func filterByCompany(postings []models.Posting, filter string) []models.Posting {
	kept := postings[:0]
	for _, p := range postings {
		if common.CompanyNamesMatch(p.Company, filter) {
			kept = append(kept, p)
		}
	}
	return kept
}
