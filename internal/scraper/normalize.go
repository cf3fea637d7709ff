package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	digitsOnlyRe   = regexp.MustCompile(`^\d+$`)
	vendorTitleRe  = regexp.MustCompile(`^([^:]{2,60}):\s+(.+)$`)
	websiteStanzaRe = regexp.MustCompile(`URL:</strong>\s*<a[^>]+href="([^"]+)"`)
	hqStanzaRe      = regexp.MustCompile(`Headquarters:\s*(?:</strong>)?\s*([^<\n]+)`)

	htmlConverter = md.NewConverter("", true, nil)
)

// dateLayouts tried in order for best-effort timestamp parsing
var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"2006/01/02",
}

// stripHTML removes markup and collapses whitespace
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return collapseWhitespace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// sanitizeDescription converts HTML descriptions to markdown so the
// text survives with its structure; plain text passes through trimmed
func sanitizeDescription(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	converted, err := htmlConverter.ConvertString(s)
	if err != nil {
		return stripHTML(s)
	}
	return strings.TrimSpace(converted)
}

// normalizeDate re-emits timestamps as ISO 8601. Unix seconds are at
// most 10 digits; 11+ digits are milliseconds. Unparseable input is
// returned verbatim rather than discarded.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if digitsOnlyRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if len(s) <= 10 {
				return time.Unix(n, 0).UTC().Format(time.RFC3339)
			}
			return time.UnixMilli(n).UTC().Format(time.RFC3339)
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}

	return s
}

// buildPosting applies the field map to one transport item and runs the
// canonical post-processing rules. The item is always a JSON document;
// HTML extraction converts selections to JSON before this step.
func buildPosting(item gjson.Result, cfg *models.SourceConfig) models.Posting {
	f := cfg.Fields
	p := models.Posting{
		Title:          stripHTML(extractValue(item, f.Title).String()),
		URL:            strings.TrimSpace(extractValue(item, f.URL).String()),
		Company:        stripHTML(extractValue(item, f.Company).String()),
		Location:       collapseWhitespace(extractValue(item, f.Location).String()),
		Description:    sanitizeDescription(extractValue(item, f.Description).String()),
		PostedDate:     normalizeDate(extractValue(item, f.PostedDate).String()),
		Salary:         strings.TrimSpace(extractValue(item, f.Salary).String()),
		Tags:           extractTags(extractValue(item, f.Tags)),
		Metadata:       extractMetadata(extractValue(item, f.Metadata)),
		Departments:    extractNameList(extractValue(item, f.Departments)),
		Offices:        extractNameList(extractValue(item, f.Offices)),
		CompanyWebsite: strings.TrimSpace(extractValue(item, f.CompanyWebsite).String()),
	}

	// Structured salary bounds, formatted only when no salary string
	// came through the primary field
	if cfg.SalaryMinField != "" || cfg.SalaryMaxField != "" {
		p.SalaryMin = extractValue(item, cfg.SalaryMinField).Float()
		p.SalaryMax = extractValue(item, cfg.SalaryMaxField).Float()
		if p.Salary == "" && p.SalaryMin > 0 && p.SalaryMax > 0 {
			p.Salary = fmt.Sprintf("$%s - $%s", formatMoney(p.SalaryMin), formatMoney(p.SalaryMax))
		}
	}

	// Config-level company name wins over whatever was extracted
	if cfg.CompanyName != "" {
		p.Company = cfg.CompanyName
	}

	if cfg.BaseURL != "" && p.URL != "" && !strings.HasPrefix(p.URL, "http") {
		p.URL = common.JoinURL(cfg.BaseURL, p.URL)
	}

	if cfg.CompanyExtraction == models.CompanyExtractionFromTitle && p.Company == "" {
		applyAggregatorExtraction(&p, extractValue(item, f.Description).String())
	}

	return p
}

// applyAggregatorExtraction recovers company details from aggregator
// feeds that pack "Vendor: Role" into the title and structured stanzas
// into the description
func applyAggregatorExtraction(p *models.Posting, rawDescription string) {
	if m := vendorTitleRe.FindStringSubmatch(p.Title); m != nil {
		p.Company = collapseWhitespace(m[1])
		p.Title = collapseWhitespace(m[2])
	}

	if p.CompanyWebsite == "" {
		if m := websiteStanzaRe.FindStringSubmatch(rawDescription); m != nil {
			p.CompanyWebsite = strings.TrimSpace(m[1])
		}
	}

	if p.Location == "" {
		if m := hqStanzaRe.FindStringSubmatch(rawDescription); m != nil {
			p.Location = collapseWhitespace(m[1])
		}
	}
}

// extractNameList flattens a list of {name} objects (or plain strings)
// into name strings
func extractNameList(val gjson.Result) []string {
	if !val.Exists() {
		return nil
	}
	var out []string
	for _, el := range val.Array() {
		switch {
		case el.IsObject():
			if name := el.Get("name").String(); name != "" {
				out = append(out, collapseWhitespace(name))
			}
		case el.Type == gjson.String:
			if s := collapseWhitespace(el.String()); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// extractMetadata flattens a list of {name, value} pairs (or a plain
// object) into a string map
func extractMetadata(val gjson.Result) map[string]string {
	if !val.Exists() {
		return nil
	}

	out := make(map[string]string)
	if val.IsArray() {
		for _, el := range val.Array() {
			name := el.Get("name").String()
			if name == "" {
				continue
			}
			out[name] = el.Get("value").String()
		}
	} else if val.IsObject() {
		val.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = value.String()
			return true
		})
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// extractTags accepts a list of strings or objects keyed by any of
// name, tag, label or value
func extractTags(val gjson.Result) []string {
	if !val.Exists() {
		return nil
	}
	var out []string
	for _, el := range val.Array() {
		switch {
		case el.Type == gjson.String:
			if s := collapseWhitespace(el.String()); s != "" {
				out = append(out, s)
			}
		case el.IsObject():
			for _, key := range []string{"name", "tag", "label", "value"} {
				if s := el.Get(key).String(); s != "" {
					out = append(out, collapseWhitespace(s))
					break
				}
			}
		}
	}
	return out
}

// formatMoney renders a number with thousands separators and no cents
func formatMoney(v float64) string {
	n := int64(v)
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
