package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

// JobPageScraper fetches a single posting URL for the JOB pipeline's
// scrape stage. Known boards get a dedicated path; everything else goes
// through the generic page extractor.
type JobPageScraper struct {
	client   *http.Client
	settings *common.ScraperConfig
	logger   arbor.ILogger
}

func NewJobPageScraper(client *http.Client, settings *common.ScraperConfig, logger arbor.ILogger) *JobPageScraper {
	if client == nil {
		client = &http.Client{Timeout: settings.RequestTimeout}
	}
	return &JobPageScraper{client: client, settings: settings, logger: logger}
}

var greenhouseJobRe = regexp.MustCompile(`greenhouse\.io/([^/]+)/jobs/(\d+)`)

// ScrapeJobURL fetches one posting and returns it normalized. The
// board-specific paths fall back to the generic extractor when the URL
// shape does not match.
func (j *JobPageScraper) ScrapeJobURL(ctx context.Context, rawURL string) (*models.Posting, error) {
	host := common.ExtractHost(rawURL)

	switch {
	case strings.Contains(host, "greenhouse.io"):
		if p, err := j.scrapeGreenhouse(ctx, rawURL); err == nil {
			return p, nil
		}
		return j.scrapeGenericPage(ctx, rawURL)
	case strings.Contains(host, "weworkremotely.com"):
		return j.scrapeWeWorkRemotely(ctx, rawURL)
	case strings.Contains(host, "remotive.com"):
		return j.scrapeGenericPage(ctx, rawURL)
	default:
		return j.scrapeGenericPage(ctx, rawURL)
	}
}

// scrapeGreenhouse resolves the board token and job id from the URL and
// reads the public board API instead of scraping the page
func (j *JobPageScraper) scrapeGreenhouse(ctx context.Context, rawURL string) (*models.Posting, error) {
	m := greenhouseJobRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, fmt.Errorf("not a greenhouse job url: %s", rawURL)
	}
	token, jobID := m[1], m[2]

	apiURL := fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs/%s", token, jobID)
	body, err := j.get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("title").String() == "" {
		return nil, fmt.Errorf("greenhouse job %s/%s returned no title", token, jobID)
	}

	p := &models.Posting{
		Title:       collapseWhitespace(doc.Get("title").String()),
		URL:         rawURL,
		Company:     collapseWhitespace(token),
		Location:    collapseWhitespace(doc.Get("location.name").String()),
		Description: sanitizeDescription(doc.Get("content").String()),
		PostedDate:  normalizeDate(doc.Get("updated_at").String()),
	}
	if abs := doc.Get("absolute_url").String(); abs != "" {
		p.URL = abs
	}
	doc.Get("departments").ForEach(func(_, d gjson.Result) bool {
		if name := d.Get("name").String(); name != "" {
			p.Departments = append(p.Departments, name)
		}
		return true
	})

	j.logger.Debug().Str("board", token).Str("job_id", jobID).Msg("Scraped greenhouse posting")
	return p, nil
}

// scrapeWeWorkRemotely parses the listing page; WWR markup is stable
// enough to target directly
func (j *JobPageScraper) scrapeWeWorkRemotely(ctx context.Context, rawURL string) (*models.Posting, error) {
	body, err := j.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if marker := detectBlockedBody(string(body)); marker != "" {
		return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	p := &models.Posting{URL: rawURL}
	p.Title = collapseWhitespace(doc.Find(".listing-header-container h1").First().Text())
	p.Company = collapseWhitespace(doc.Find(".listing-header-container .company").First().Text())
	if html, err := doc.Find(".listing-container").First().Html(); err == nil && html != "" {
		p.Description = sanitizeDescription(html)
	}
	p.Location = collapseWhitespace(doc.Find(".listing-header-container .region").First().Text())

	j.fillFromStructuredData(doc, p)
	if p.Title == "" {
		return j.postingFromGeneric(doc, rawURL)
	}
	return p, nil
}

// scrapeGenericPage extracts a posting from an arbitrary job page via
// JSON-LD first and page chrome second
func (j *JobPageScraper) scrapeGenericPage(ctx context.Context, rawURL string) (*models.Posting, error) {
	body, err := j.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if marker := detectBlockedBody(string(body)); marker != "" {
		return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return j.postingFromGeneric(doc, rawURL)
}

func (j *JobPageScraper) postingFromGeneric(doc *goquery.Document, rawURL string) (*models.Posting, error) {
	p := &models.Posting{URL: rawURL}
	j.fillFromStructuredData(doc, p)

	if p.Title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
			p.Title = collapseWhitespace(og)
		}
	}
	if p.Title == "" {
		p.Title = collapseWhitespace(doc.Find("title").First().Text())
	}
	if p.Description == "" {
		if og, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
			p.Description = strings.TrimSpace(og)
		}
	}
	if p.PostedDate == "" {
		p.PostedDate = findMetaDate(doc)
	}
	if p.PostedDate == "" {
		p.PostedDate = findTimeElementDate(doc)
	}

	if p.Title == "" {
		return nil, fmt.Errorf("no posting found at %s", rawURL)
	}
	return p, nil
}

// fillFromStructuredData overlays JSON-LD JobPosting fields onto the
// posting, only filling gaps
func (j *JobPageScraper) fillFromStructuredData(doc *goquery.Document, p *models.Posting) {
	ld := findJobPostingLD(doc)
	if !ld.Exists() {
		return
	}
	if p.Title == "" {
		p.Title = collapseWhitespace(ld.Get("title").String())
	}
	if p.Company == "" {
		p.Company = collapseWhitespace(ld.Get("hiringOrganization.name").String())
	}
	if p.Description == "" {
		p.Description = sanitizeDescription(ld.Get("description").String())
	}
	if p.PostedDate == "" {
		p.PostedDate = normalizeDate(ld.Get("datePosted").String())
	}
	if p.Location == "" {
		p.Location = collapseWhitespace(ld.Get("jobLocation.address.addressLocality").String())
	}
	if p.Salary == "" {
		min := ld.Get("baseSalary.value.minValue").Float()
		max := ld.Get("baseSalary.value.maxValue").Float()
		if min > 0 && max > 0 {
			p.Salary = fmt.Sprintf("$%s - $%s", formatMoney(min), formatMoney(max))
			p.SalaryMin = min
			p.SalaryMax = max
		}
	}
}

func (j *JobPageScraper) get(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, j.settings.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", j.settings.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewBlockedError(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request %s: HTTP %d", rawURL, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
