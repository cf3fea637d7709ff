package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/models"
)

// Detail-page enrichment fills in description and posted_date for
// postings whose list entry came back sparse. Platform JSON details
// are tried first; generic pages fall through a ladder of structured
// date sources, from most to least reliable.

var daysAgoRe = regexp.MustCompile(`(?i)posted\s+(?:about\s+)?(\d+)\s+days?\s+ago|(\d+)\s+days?\s+ago`)

var detailDateSelectors = []string{
	"[class*='posted-date']",
	"[class*='postedDate']",
	"[class*='posted_date']",
	".posting-date",
	".job-date",
	"[data-posted-date]",
}

// enrichFromDetail fetches a posting's page when the source opted in
// via follow_detail or the list entry came back with gaps. The fetch
// delay is honored whether or not the request succeeds.
func (s *Scraper) enrichFromDetail(ctx context.Context, p *models.Posting) {
	if p.URL == "" {
		return
	}
	if !s.cfg.FollowDetail && p.Description != "" && p.PostedDate != "" {
		return
	}

	if err := s.detailPacer.Wait(ctx); err != nil {
		return
	}

	switch {
	case strings.Contains(p.URL, "smartrecruiters.com"):
		s.enrichSmartRecruiters(ctx, p)
	case strings.Contains(p.URL, "myworkdayjobs.com"):
		s.enrichWorkday(ctx, p)
	default:
		s.enrichGenericHTML(ctx, p)
	}
}

// enrichSmartRecruiters reads the posting detail JSON, which carries the
// full description split into jobAd sections
func (s *Scraper) enrichSmartRecruiters(ctx context.Context, p *models.Posting) {
	body, err := s.fetchDetail(ctx, p.URL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", p.URL).Msg("Detail fetch failed")
		return
	}

	doc := gjson.ParseBytes(body)
	if p.Description == "" {
		var parts []string
		doc.Get("jobAd.sections").ForEach(func(_, section gjson.Result) bool {
			if text := section.Get("text").String(); text != "" {
				parts = append(parts, text)
			}
			return true
		})
		if len(parts) > 0 {
			p.Description = sanitizeDescription(strings.Join(parts, "\n\n"))
		}
	}
	if p.PostedDate == "" {
		p.PostedDate = normalizeDate(doc.Get("releasedDate").String())
	}
	if p.Location == "" {
		city := doc.Get("location.city").String()
		country := doc.Get("location.country").String()
		p.Location = collapseWhitespace(strings.TrimSuffix(city+", "+country, ", "))
	}
}

// enrichWorkday reads the CXS job detail JSON
func (s *Scraper) enrichWorkday(ctx context.Context, p *models.Posting) {
	body, err := s.fetchDetail(ctx, p.URL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", p.URL).Msg("Detail fetch failed")
		return
	}

	info := gjson.GetBytes(body, "jobPostingInfo")
	if !info.Exists() {
		return
	}
	if p.Description == "" {
		p.Description = sanitizeDescription(info.Get("jobDescription").String())
	}
	if p.PostedDate == "" {
		p.PostedDate = normalizeDate(info.Get("startDate").String())
	}
	if p.Location == "" {
		p.Location = collapseWhitespace(info.Get("location").String())
	}
}

// enrichGenericHTML walks the enrichment ladder over an arbitrary
// detail page
func (s *Scraper) enrichGenericHTML(ctx context.Context, p *models.Posting) {
	body, err := s.fetchDetail(ctx, p.URL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", p.URL).Msg("Detail fetch failed")
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return
	}

	if jsonLD := findJobPostingLD(doc); jsonLD.Exists() {
		if p.Description == "" {
			p.Description = sanitizeDescription(jsonLD.Get("description").String())
		}
		if p.PostedDate == "" {
			p.PostedDate = normalizeDate(jsonLD.Get("datePosted").String())
		}
		if p.Company == "" {
			p.Company = collapseWhitespace(jsonLD.Get("hiringOrganization.name").String())
		}
	}

	if p.PostedDate == "" {
		p.PostedDate = findMetaDate(doc)
	}
	if p.PostedDate == "" {
		p.PostedDate = findTimeElementDate(doc)
	}
	if p.PostedDate == "" {
		p.PostedDate = findSelectorDate(doc)
	}
	if p.PostedDate == "" {
		p.PostedDate = findRelativeDate(doc.Text())
	}
}

// fetchDetail performs a single detail-page request with the shorter
// detail timeout. Blocked responses are demoted to plain errors; one
// protected detail page must not disable the whole source.
func (s *Scraper) fetchDetail(ctx context.Context, rawURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.settings.DetailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build detail request: %w", err)
	}
	req.Header.Set("User-Agent", s.settings.UserAgent)
	req.Header.Set("Accept", "*/*")
	s.applyAuth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detail request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("detail request %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read detail response: %w", err)
	}
	return body, nil
}

// findJobPostingLD locates a JSON-LD JobPosting block, looking through
// @graph containers when present
func findJobPostingLD(doc *goquery.Document) gjson.Result {
	var found gjson.Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		parsed := gjson.Parse(s.Text())

		candidates := []gjson.Result{parsed}
		if graph := parsed.Get("@graph"); graph.IsArray() {
			candidates = append(candidates, graph.Array()...)
		}
		if parsed.IsArray() {
			candidates = append(candidates, parsed.Array()...)
		}

		for _, c := range candidates {
			if c.Get("@type").String() == "JobPosting" {
				found = c
				return false
			}
		}
		return true
	})
	return found
}

// findMetaDate reads publication-date meta tags
func findMetaDate(doc *goquery.Document) string {
	for _, name := range []string{
		`meta[property="article:published_time"]`,
		`meta[property="og:article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePosted"]`,
	} {
		if content, ok := doc.Find(name).First().Attr("content"); ok && content != "" {
			return normalizeDate(content)
		}
	}
	return ""
}

// findTimeElementDate reads <time datetime> elements, preferring one
// whose ancestry mentions posting dates over the first on the page
func findTimeElementDate(doc *goquery.Document) string {
	var preferred, first string
	doc.Find("time[datetime]").Each(func(_ int, sel *goquery.Selection) {
		dt, _ := sel.Attr("datetime")
		if dt == "" {
			return
		}
		if first == "" {
			first = dt
		}
		if preferred == "" && hasDateAncestor(sel) {
			preferred = dt
		}
	})
	if preferred != "" {
		return normalizeDate(preferred)
	}
	if first != "" {
		return normalizeDate(first)
	}
	return ""
}

func hasDateAncestor(sel *goquery.Selection) bool {
	for parents := sel.Parent(); parents.Length() > 0; parents = parents.Parent() {
		class, _ := parents.Attr("class")
		lower := strings.ToLower(class)
		if strings.Contains(lower, "posted") || strings.Contains(lower, "date") {
			return true
		}
	}
	return false
}

// findSelectorDate tries common posted-date class patterns
func findSelectorDate(doc *goquery.Document) string {
	for _, selector := range detailDateSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if v, ok := sel.Attr("data-posted-date"); ok && v != "" {
			return normalizeDate(v)
		}
		if text := collapseWhitespace(sel.Text()); text != "" {
			if d := normalizeDate(text); d != text {
				return d
			}
			if d := findRelativeDate(text); d != "" {
				return d
			}
		}
	}
	return ""
}

// findRelativeDate resolves "posted N days ago" phrasing against now
func findRelativeDate(text string) string {
	m := daysAgoRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > 3650 {
		return ""
	}
	return time.Now().UTC().AddDate(0, 0, -n).Format(time.RFC3339)
}
