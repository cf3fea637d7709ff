package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// Registry owns all source records. Nothing else writes sources; the
// processors go through these operations so the uniqueness and
// company-OR-aggregator invariants hold everywhere.
type Registry struct {
	storage interfaces.SourceStorage
	logger  arbor.ILogger

	// aggregator domain cache, invalidated on every write
	domainMu    sync.RWMutex
	domainCache []string
}

func NewRegistry(storage interfaces.SourceStorage, logger arbor.ILogger) *Registry {
	return &Registry{storage: storage, logger: logger}
}

// AddSource registers a new source. Name must be unique; so must the
// (company_id, aggregator_domain) pair. When company_id is set the
// aggregator domain is stripped, keeping exactly one owner per source.
func (r *Registry) AddSource(ctx context.Context, source *models.Source) (string, error) {
	if source.Name == "" {
		return "", fmt.Errorf("source name is required")
	}
	// Sources created DISABLED-at-birth are tombstones; they carry notes
	// but no runnable config.
	if source.Status != models.SourceStatusDisabled {
		if err := source.Config.Validate(); err != nil {
			return "", fmt.Errorf("invalid source config: %w", err)
		}
	}

	if source.CompanyID != "" {
		source.AggregatorDomain = ""
	}

	existing, err := r.storage.GetSourceByName(ctx, source.Name)
	if err != nil {
		return "", fmt.Errorf("check name uniqueness: %w", err)
	}
	if existing != nil {
		return "", fmt.Errorf("source name %q already registered as %s", source.Name, existing.ID)
	}

	if source.CompanyID != "" || source.AggregatorDomain != "" {
		dupe, err := r.storage.FindByCompanyAndAggregator(ctx, source.CompanyID, source.AggregatorDomain)
		if err != nil {
			return "", fmt.Errorf("check company/aggregator uniqueness: %w", err)
		}
		if dupe != nil {
			return "", fmt.Errorf("source for (%s, %s) already registered as %s",
				source.CompanyID, source.AggregatorDomain, dupe.ID)
		}
	}

	if source.ID == "" {
		source.ID = common.NewSourceID()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}
	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now

	if err := r.storage.SaveSource(ctx, source); err != nil {
		return "", err
	}
	r.invalidateDomainCache()

	r.logger.Info().
		Str("source_id", source.ID).
		Str("name", source.Name).
		Str("status", string(source.Status)).
		Msg("Source registered")

	return source.ID, nil
}

func (r *Registry) GetSourceByID(ctx context.Context, id string) (*models.Source, error) {
	return r.storage.GetSource(ctx, id)
}

func (r *Registry) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	return r.storage.GetSourceByName(ctx, name)
}

func (r *Registry) GetSourceByCompanyAndAggregator(ctx context.Context, companyID, aggregatorDomain string) (*models.Source, error) {
	return r.storage.FindByCompanyAndAggregator(ctx, companyID, aggregatorDomain)
}

// GetSourceForURL returns the first source whose configured URL or board
// token appears in the given URL
func (r *Registry) GetSourceForURL(ctx context.Context, rawURL string) (*models.Source, error) {
	all, err := r.storage.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, src := range all {
		if src.Config.URL != "" && strings.Contains(rawURL, common.ExtractHost(src.Config.URL)) {
			return src, nil
		}
		if src.Config.BoardToken != "" && strings.Contains(rawURL, src.Config.BoardToken) {
			return src, nil
		}
	}
	return nil, nil
}

// GetActiveSources returns ACTIVE sources, optionally narrowed by type
// and required tags
func (r *Registry) GetActiveSources(ctx context.Context, sourceType string, tags []string) ([]*models.Source, error) {
	active, err := r.storage.ListByStatus(ctx, models.SourceStatusActive)
	if err != nil {
		return nil, err
	}

	var out []*models.Source
	for _, src := range active {
		if sourceType != "" && src.SourceType != sourceType {
			continue
		}
		if !hasAllTags(src, tags) {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

// GetDisabledSources returns recovery candidates: disabled sources not
// carrying any excluded tag, disabled at least minDisabledHours ago,
// oldest first
func (r *Registry) GetDisabledSources(ctx context.Context, excludeTags []string, minDisabledHours int, limit int) ([]*models.Source, error) {
	disabled, err := r.storage.ListByStatus(ctx, models.SourceStatusDisabled)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(minDisabledHours) * time.Hour)
	var out []*models.Source
	for _, src := range disabled {
		if hasAnyDisabledTag(src, excludeTags) {
			continue
		}
		if src.Config.DisabledAt != nil && src.Config.DisabledAt.After(cutoff) {
			continue
		}
		out = append(out, src)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Config.DisabledAt, out[j].Config.DisabledAt
		if ti == nil {
			return true
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateScrapeStatus records the outcome of one scrape, validating the
// status transition
func (r *Registry) UpdateScrapeStatus(ctx context.Context, id string, status models.SourceStatus, scrapeErr string) error {
	_, err := r.storage.UpdateSource(ctx, id, func(src *models.Source) error {
		if err := models.ValidateSourceTransition(src.Status, status); err != nil {
			return err
		}
		now := time.Now()
		src.Status = status
		src.LastScrapedAt = &now
		src.LastError = scrapeErr
		if scrapeErr == "" {
			src.SuccessCount++
		} else {
			src.FailureCount++
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.invalidateDomainCache()
	return nil
}

// DisableSourceWithTags disables a source, appending a timestamped note
// and merging health tags additively. Safe to call on an already
// disabled source; notes and tags still accumulate.
func (r *Registry) DisableSourceWithTags(ctx context.Context, id, reason string, tags []string) error {
	_, err := r.storage.UpdateSource(ctx, id, func(src *models.Source) error {
		if err := models.ValidateSourceTransition(src.Status, models.SourceStatusDisabled); err != nil {
			return err
		}
		now := time.Now()
		src.Status = models.SourceStatusDisabled
		src.Config.DisabledAt = &now
		src.Config.DisabledNotes = append(src.Config.DisabledNotes,
			fmt.Sprintf("%s: %s", now.Format(time.RFC3339), reason))
		src.Config.DisabledTags = mergeTags(src.Config.DisabledTags, tags)
		return nil
	})
	if err != nil {
		return err
	}
	r.invalidateDomainCache()

	r.logger.Warn().
		Str("source_id", id).
		Str("reason", reason).
		Strs("tags", tags).
		Msg("Source disabled")

	return nil
}

// ReEnableSource moves a disabled source back to ACTIVE for a retry,
// appending a note. Disabled notes and tags stay on the record; a
// repeat failure re-disables with its history intact.
func (r *Registry) ReEnableSource(ctx context.Context, id, reason string) error {
	_, err := r.storage.UpdateSource(ctx, id, func(src *models.Source) error {
		if err := models.ValidateSourceTransition(src.Status, models.SourceStatusActive); err != nil {
			return err
		}
		src.Status = models.SourceStatusActive
		src.Config.DisabledNotes = append(src.Config.DisabledNotes,
			fmt.Sprintf("%s: re-enabled: %s", time.Now().Format(time.RFC3339), reason))
		return nil
	})
	if err != nil {
		return err
	}
	r.invalidateDomainCache()

	r.logger.Info().
		Str("source_id", id).
		Str("reason", reason).
		Msg("Source re-enabled")

	return nil
}

// UpdateConfig replaces the source's scrape config
func (r *Registry) UpdateConfig(ctx context.Context, id string, cfg *models.SourceConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid source config: %w", err)
	}
	_, err := r.storage.UpdateSource(ctx, id, func(src *models.Source) error {
		src.Config = *cfg
		return nil
	})
	if err != nil {
		return err
	}
	r.invalidateDomainCache()
	return nil
}

// UpdateCompanyLink fills a NULL company_id. It never overwrites: a
// source already linked keeps its link, making retries harmless.
func (r *Registry) UpdateCompanyLink(ctx context.Context, id, companyID string) error {
	if companyID == "" {
		return fmt.Errorf("company ID is required")
	}
	_, err := r.storage.UpdateSource(ctx, id, func(src *models.Source) error {
		if src.CompanyID != "" {
			return nil
		}
		src.CompanyID = companyID
		src.AggregatorDomain = ""
		return nil
	})
	return err
}

// IsJobBoardURL reports whether the URL belongs to any known aggregator
// domain
func (r *Registry) IsJobBoardURL(ctx context.Context, rawURL string) bool {
	return r.GetAggregatorDomainForURL(ctx, rawURL) != ""
}

// GetAggregatorDomainForURL matches the URL host against the cached
// aggregator domains, sub-domain suffixes included
func (r *Registry) GetAggregatorDomainForURL(ctx context.Context, rawURL string) string {
	host := common.ExtractHost(rawURL)
	if host == "" {
		return ""
	}
	for _, domain := range r.aggregatorDomains(ctx) {
		if common.HostMatchesDomain(host, domain) {
			return domain
		}
	}
	return ""
}

// ResolveCompanyFromSource resolves a company id two ways: direct
// source lookup, then fuzzy name match against all source names
func (r *Registry) ResolveCompanyFromSource(ctx context.Context, sourceID, companyNameRaw string) (string, error) {
	if sourceID != "" {
		src, err := r.storage.GetSource(ctx, sourceID)
		if err == nil && src != nil && src.CompanyID != "" {
			return src.CompanyID, nil
		}
	}

	if companyNameRaw == "" {
		return "", nil
	}

	all, err := r.storage.ListAll(ctx)
	if err != nil {
		return "", err
	}

	normalized := common.NormalizeCompanyName(companyNameRaw)
	if normalized == "" {
		return "", nil
	}

	for _, src := range all {
		if src.CompanyID == "" {
			continue
		}
		if partialNameScore(normalized, common.NormalizeCompanyName(src.Name)) >= 0.6 {
			return src.CompanyID, nil
		}
	}
	return "", nil
}

// partialNameScore is a length-aware overlap score between normalized
// names. The shorter side must cover at least 60% of the longer and be
// at least 4 chars to claim a partial match.
func partialNameScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 4 {
		return 0
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}
	return 0
}

func (r *Registry) aggregatorDomains(ctx context.Context) []string {
	r.domainMu.RLock()
	cached := r.domainCache
	r.domainMu.RUnlock()
	if cached != nil {
		return cached
	}

	all, err := r.storage.ListAll(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load aggregator domains")
		return nil
	}

	seen := make(map[string]bool)
	var domains []string
	for _, src := range all {
		if src.AggregatorDomain == "" || seen[src.AggregatorDomain] {
			continue
		}
		seen[src.AggregatorDomain] = true
		domains = append(domains, src.AggregatorDomain)
	}
	if domains == nil {
		domains = []string{}
	}

	r.domainMu.Lock()
	r.domainCache = domains
	r.domainMu.Unlock()
	return domains
}

func (r *Registry) invalidateDomainCache() {
	r.domainMu.Lock()
	r.domainCache = nil
	r.domainMu.Unlock()
}

func hasAllTags(src *models.Source, tags []string) bool {
	for _, tag := range tags {
		if !src.HasTag(tag) {
			return false
		}
	}
	return true
}

func hasAnyDisabledTag(src *models.Source, tags []string) bool {
	for _, tag := range tags {
		if src.Config.HasDisabledTag(tag) {
			return true
		}
	}
	return false
}

func mergeTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
