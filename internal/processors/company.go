package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/sources"
)

// workdayShortCodes maps Workday tenant slugs to canonical company
// names. Tenants not listed fall back to a title-cased slug.
var workdayShortCodes = map[string]string{
	"nvidia":     "NVIDIA",
	"salesforce": "Salesforce",
	"adobe":      "Adobe",
	"vmware":     "VMware",
	"workday":    "Workday",
	"paypal":     "PayPal",
	"intuit":     "Intuit",
	"cba":        "Commonwealth Bank",
	"telstra":    "Telstra",
	"wfargo":     "Wells Fargo",
	"jpmc":       "JPMorgan Chase",
	"gs":         "Goldman Sachs",
}

// CompanyProcessor enriches one company record in a single pass and, for
// job-board URLs, hands the URL to source discovery.
type CompanyProcessor struct {
	queue       interfaces.QueueService
	registry    *sources.Registry
	companyInfo *CompanyInfo
	logger      arbor.ILogger
}

func NewCompanyProcessor(queue interfaces.QueueService, registry *sources.Registry, companyInfo *CompanyInfo, logger arbor.ILogger) *CompanyProcessor {
	return &CompanyProcessor{
		queue:       queue,
		registry:    registry,
		companyInfo: companyInfo,
		logger:      logger,
	}
}

func (cp *CompanyProcessor) Type() models.ItemType {
	return models.ItemTypeCompany
}

func (cp *CompanyProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	name := cp.disambiguate(item)
	if name == "" {
		return fmt.Errorf("company item %s carries no company name", item.ID)
	}

	company, boardLeads, err := cp.companyInfo.FetchCompanyInfo(ctx, name, item.URL, "")
	if err != nil {
		return fmt.Errorf("enrich company %q: %w", name, err)
	}

	// A job-board URL on a company item is a discovery lead, not a
	// website; so are board URLs the enrichment search turned up. Each
	// distinct lead gets one SOURCE_DISCOVERY child.
	leads := boardLeads
	if item.URL != "" && isJobBoardLead(ctx, cp.registry, item.URL) {
		leads = append([]string{item.URL}, leads...)
	}
	seen := make(map[string]bool)
	for _, lead := range leads {
		fp := common.URLFingerprint(lead)
		if seen[fp] {
			continue
		}
		seen[fp] = true

		child := &models.QueueItem{
			Type:        models.ItemTypeSourceDiscovery,
			URL:         lead,
			CompanyName: company.Name,
			CompanyID:   company.ID,
		}
		if _, err := cp.queue.SpawnItemSafely(ctx, item, child); err != nil {
			cp.logger.Warn().
				Err(err).
				Str("company_id", company.ID).
				Str("url", lead).
				Msg("Failed to spawn discovery child")
		}
	}

	data, _ := json.Marshal(company)
	return cp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusSuccess,
		fmt.Sprintf("company %s enriched (%s)", company.ID, company.DataQuality), data, "", "")
}

// disambiguate resolves the subject name: Workday tenant slugs map
// through the short-code table, everything else uses the given name
func (cp *CompanyProcessor) disambiguate(item *models.QueueItem) string {
	if tenant, ok := sources.WorkdayTenant(item.URL); ok {
		if canonical, known := workdayShortCodes[tenant]; known {
			return canonical
		}
		if item.CompanyName != "" {
			return item.CompanyName
		}
		return titleCaseSlug(tenant)
	}
	return item.CompanyName
}

func titleCaseSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
