package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source transport types
const (
	SourceTypeAPI  = "api"
	SourceTypeRSS  = "rss"
	SourceTypeHTML = "html"
)

// Company extraction strategies for aggregator feeds
const (
	CompanyExtractionFromTitle       = "from_title"
	CompanyExtractionFromDescription = "from_description"
	CompanyExtractionNone            = "none"
)

// Auth placement types
const (
	AuthTypeBearer = "bearer"
	AuthTypeHeader = "header"
	AuthTypeQuery  = "query"
)

// FieldMap maps canonical posting keys to source field paths.
// Path grammar: dot navigation with numeric array indexes ("items.0.x"),
// array filters ("items[key=value].field"), and for HTML sources CSS
// selectors with an optional @attribute suffix ("a.title@href").
type FieldMap struct {
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	Company        string `json:"company,omitempty"`
	Location       string `json:"location,omitempty"`
	Description    string `json:"description,omitempty"`
	PostedDate     string `json:"posted_date,omitempty"`
	Salary         string `json:"salary,omitempty"`
	Tags           string `json:"tags,omitempty"`
	Metadata       string `json:"metadata,omitempty"`
	Departments    string `json:"departments,omitempty"`
	Offices        string `json:"offices,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`
}

// SourceConfig is the complete declarative contract to run one scrape.
// It is a pure value object; the generic scraper interprets it and the
// source registry persists it inside the Source record.
type SourceConfig struct {
	Type         string                 `json:"type"`
	URL          string                 `json:"url"`
	Method       string                 `json:"method,omitempty"`
	PostBody     map[string]interface{} `json:"post_body,omitempty"`
	Headers      map[string]string      `json:"headers,omitempty"`
	ResponsePath string                 `json:"response_path,omitempty"`
	Fields       FieldMap               `json:"fields"`

	// HTML sources
	JobSelector string `json:"job_selector,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`

	// Pagination
	PaginationType string `json:"pagination_type,omitempty"`
	PageSize       int    `json:"page_size,omitempty"`
	MaxPages       int    `json:"max_pages,omitempty"`

	// Structured salary bounds
	SalaryMinField string `json:"salary_min_field,omitempty"`
	SalaryMaxField string `json:"salary_max_field,omitempty"`

	// Company narrowing for aggregator sources
	CompanyName        string `json:"company_name,omitempty"`
	CompanyFilter      string `json:"company_filter,omitempty"`
	CompanyFilterParam string `json:"company_filter_param,omitempty"`
	CompanyExtraction  string `json:"company_extraction,omitempty"`

	// Authentication
	AuthType  string `json:"auth_type,omitempty"`
	AuthParam string `json:"auth_param,omitempty"`
	APIKey    string `json:"api_key,omitempty"`

	// Headless rendering
	RequiresJS      bool   `json:"requires_js,omitempty"`
	RenderWaitFor   string `json:"render_wait_for,omitempty"`
	RenderTimeoutMs int    `json:"render_timeout_ms,omitempty"`

	// Detail-page enrichment
	FollowDetail bool `json:"follow_detail,omitempty"`

	// Platform hint recorded by source analysis (e.g. "greenhouse")
	Platform   string `json:"platform,omitempty"`
	BoardToken string `json:"board_token,omitempty"`

	// Health, carried inside the config so a disable survives config
	// round-trips. DisabledTags is additive across disable attempts.
	DisabledNotes []string   `json:"disabled_notes,omitempty"`
	DisabledTags  []string   `json:"disabled_tags,omitempty"`
	DisabledAt    *time.Time `json:"disabled_at,omitempty"`
}

// Validate checks the config against the contract the scraper depends on
func (c *SourceConfig) Validate() error {
	switch c.Type {
	case SourceTypeAPI, SourceTypeRSS, SourceTypeHTML:
	default:
		return fmt.Errorf("invalid source type: %q", c.Type)
	}

	if c.URL == "" {
		return fmt.Errorf("url is required")
	}

	if c.Fields.Title == "" && c.Fields.URL == "" {
		return fmt.Errorf("fields must map at least title or url")
	}

	if c.Type == SourceTypeHTML && c.JobSelector == "" {
		return fmt.Errorf("html sources require job_selector")
	}

	if c.RequiresJS && c.Type != SourceTypeHTML {
		return fmt.Errorf("requires_js is only valid for html sources")
	}

	if c.RenderTimeoutMs != 0 && c.RenderTimeoutMs < 1000 {
		return fmt.Errorf("render_timeout_ms must be at least 1000")
	}

	return nil
}

// ToMap serializes the config omitting empty optional fields
func (c *SourceConfig) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal source config: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal source config: %w", err)
	}
	return out, nil
}

// SourceConfigFromMap deserializes a config, accepting a superset of the
// current field names. Legacy keys from earlier config generations
// (api_endpoint, title_field, link_field) are normalized on the way in.
func SourceConfigFromMap(raw map[string]interface{}) (*SourceConfig, error) {
	if raw == nil {
		return nil, fmt.Errorf("source config is nil")
	}

	normalized := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		normalized[k] = v
	}

	// Legacy: api_endpoint was the pre-fields name for url
	if _, ok := normalized["url"]; !ok {
		if ep, ok := normalized["api_endpoint"].(string); ok && ep != "" {
			normalized["url"] = ep
		} else if base, ok := normalized["base_url"].(string); ok && base != "" {
			normalized["url"] = base
		}
	}
	delete(normalized, "api_endpoint")

	// Legacy: flat title_field / link_field instead of the fields map
	fields, _ := normalized["fields"].(map[string]interface{})
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if tf, ok := normalized["title_field"].(string); ok && tf != "" {
		if _, exists := fields["title"]; !exists {
			fields["title"] = tf
		}
		delete(normalized, "title_field")
	}
	if lf, ok := normalized["link_field"].(string); ok && lf != "" {
		if _, exists := fields["url"]; !exists {
			fields["url"] = lf
		}
		delete(normalized, "link_field")
	}
	if len(fields) > 0 {
		normalized["fields"] = fields
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized config: %w", err)
	}

	var cfg SourceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}
	return &cfg, nil
}

// EffectivePageSize returns the configured page size or the default of 20
func (c *SourceConfig) EffectivePageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return 20
}

// HasDisabledTag reports whether the config carries the given health tag
func (c *SourceConfig) HasDisabledTag(tag string) bool {
	for _, t := range c.DisabledTags {
		if t == tag {
			return true
		}
	}
	return false
}
