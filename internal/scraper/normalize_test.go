package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/prospect/internal/models"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"iso passthrough", "2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"},
		{"date only", "2025-06-01", "2025-06-01T00:00:00Z"},
		{"unix seconds", "1717236000", time.Unix(1717236000, 0).UTC().Format(time.RFC3339)},
		{"unix millis", "1717236000000", time.UnixMilli(1717236000000).UTC().Format(time.RFC3339)},
		{"rfc1123", "Mon, 02 Jun 2025 10:00:00 GMT", "2025-06-02T10:00:00Z"},
		{"unparseable verbatim", "sometime last week", "sometime last week"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDate(tt.in))
		})
	}
}

func TestSanitizeDescription(t *testing.T) {
	t.Run("plain text trimmed", func(t *testing.T) {
		assert.Equal(t, "hello world", sanitizeDescription("  hello world  "))
	})

	t.Run("html becomes markdown", func(t *testing.T) {
		out := sanitizeDescription("<p>We are <strong>hiring</strong></p>")
		assert.Contains(t, out, "**hiring**")
		assert.NotContains(t, out, "<p>")
	})
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Senior Engineer", stripHTML("<b>Senior</b>\n  Engineer"))
	assert.Equal(t, "plain", stripHTML("plain"))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "150,000", formatMoney(150000))
	assert.Equal(t, "95,500", formatMoney(95500))
	assert.Equal(t, "800", formatMoney(800))
	assert.Equal(t, "1,250,000", formatMoney(1250000))
}

func TestBuildPosting(t *testing.T) {
	cfg := &models.SourceConfig{
		Type: models.SourceTypeAPI,
		URL:  "https://example.com/api/jobs",
		Fields: models.FieldMap{
			Title:       "title",
			URL:         "url",
			Company:     "company.name",
			Location:    "location",
			Description: "desc",
			PostedDate:  "published_at",
			Tags:        "tags",
		},
		SalaryMinField: "comp.min",
		SalaryMaxField: "comp.max",
		BaseURL:        "https://example.com",
	}

	item := gjson.Parse(`{
		"title": "Staff <em>Go</em> Engineer",
		"url": "/jobs/123",
		"company": {"name": "Acme"},
		"location": "Remote -  Worldwide",
		"desc": "<p>Build things</p>",
		"published_at": "1717236000",
		"tags": ["golang", {"name": "remote"}],
		"comp": {"min": 150000, "max": 190000}
	}`)

	p := buildPosting(item, cfg)

	assert.Equal(t, "Staff Go Engineer", p.Title)
	assert.Equal(t, "https://example.com/jobs/123", p.URL)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "Remote - Worldwide", p.Location)
	assert.Contains(t, p.Description, "Build things")
	assert.Equal(t, time.Unix(1717236000, 0).UTC().Format(time.RFC3339), p.PostedDate)
	assert.Equal(t, []string{"golang", "remote"}, p.Tags)
	assert.Equal(t, "$150,000 - $190,000", p.Salary)
}

func TestBuildPostingCompanyNameOverride(t *testing.T) {
	cfg := &models.SourceConfig{
		Type:        models.SourceTypeAPI,
		URL:         "https://example.com",
		CompanyName: "Canonical Name",
		Fields:      models.FieldMap{Title: "title", Company: "company"},
	}
	item := gjson.Parse(`{"title": "Engineer", "company": "scraped name"}`)

	p := buildPosting(item, cfg)
	assert.Equal(t, "Canonical Name", p.Company)
}

func TestAggregatorExtraction(t *testing.T) {
	cfg := &models.SourceConfig{
		Type:              models.SourceTypeRSS,
		URL:               "https://example.com/feed",
		CompanyExtraction: models.CompanyExtractionFromTitle,
		Fields:            models.FieldMap{Title: "title", URL: "link", Description: "description"},
	}
	item := gjson.Parse(`{
		"title": "Proxify: Senior Backend Developer",
		"link": "https://example.com/jobs/1",
		"description": "<strong>URL:</strong> <a href=\"https://proxify.io\">site</a> Headquarters: Stockholm, Sweden"
	}`)

	p := buildPosting(item, cfg)

	assert.Equal(t, "Proxify", p.Company)
	assert.Equal(t, "Senior Backend Developer", p.Title)
	assert.Equal(t, "https://proxify.io", p.CompanyWebsite)
	assert.Equal(t, "Stockholm, Sweden", p.Location)
}

func TestExtractMetadataPairs(t *testing.T) {
	val := gjson.Parse(`[{"name": "visa", "value": "no"}, {"name": "level", "value": "senior"}]`)
	got := extractMetadata(val)
	assert.Equal(t, map[string]string{"visa": "no", "level": "senior"}, got)
}

func TestExtractNameList(t *testing.T) {
	val := gjson.Parse(`[{"name": "Engineering"}, "Platform", {"other": "x"}]`)
	assert.Equal(t, []string{"Engineering", "Platform"}, extractNameList(val))
}
