package sources

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

//go:embed platforms.yaml
var platformsYAML []byte

// PlatformPattern is one known ATS platform: how to recognize its
// board URLs and how to build a scrape config from the customer token
type PlatformPattern struct {
	Name         string            `yaml:"name"`
	HostPattern  string            `yaml:"host_pattern"`
	TokenPattern string            `yaml:"token_pattern"`
	APIURL       string            `yaml:"api_url"`
	Type         string            `yaml:"type"`
	ResponsePath string            `yaml:"response_path"`
	FollowDetail bool              `yaml:"follow_detail"`
	Fields       map[string]string `yaml:"fields"`

	hostRe  *regexp.Regexp
	tokenRe *regexp.Regexp
}

type singleListingPattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

type platformRegistry struct {
	Platforms        []*PlatformPattern      `yaml:"platforms"`
	SingleListing    []*singleListingPattern `yaml:"single_listing"`
	ATSProviderHosts []string                `yaml:"ats_provider_hosts"`
}

var (
	registryOnce sync.Once
	registry     *platformRegistry
	registryErr  error
)

func loadPlatformRegistry() (*platformRegistry, error) {
	registryOnce.Do(func() {
		var reg platformRegistry
		if err := yaml.Unmarshal(platformsYAML, &reg); err != nil {
			registryErr = fmt.Errorf("parse platform registry: %w", err)
			return
		}
		for _, p := range reg.Platforms {
			p.hostRe, registryErr = regexp.Compile(p.HostPattern)
			if registryErr != nil {
				return
			}
			p.tokenRe, registryErr = regexp.Compile(p.TokenPattern)
			if registryErr != nil {
				return
			}
		}
		for _, s := range reg.SingleListing {
			s.re, registryErr = regexp.Compile(s.Pattern)
			if registryErr != nil {
				return
			}
		}
		registry = &reg
	})
	return registry, registryErr
}

// workday boards are tenant+site+shard addressed, which the generic
// {token} template cannot express
var workdayRe = regexp.MustCompile(`https?://([a-z0-9-]+)\.(wd\d+)\.myworkdayjobs\.com/(?:[a-z]{2}-[A-Z]{2}/)?([A-Za-z0-9_-]+)`)

// WorkdayTenant extracts the tenant short code from a Workday board URL
func WorkdayTenant(rawURL string) (string, bool) {
	if m := workdayRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	return "", false
}

// DetectPlatform matches a URL against the pattern registry and returns
// the ready-to-validate config. Workday is matched structurally.
func DetectPlatform(rawURL string) (platform string, cfg *models.SourceConfig, ok bool) {
	if m := workdayRe.FindStringSubmatch(rawURL); m != nil {
		return "workday", workdayConfig(m[1], m[2], m[3]), true
	}

	reg, err := loadPlatformRegistry()
	if err != nil {
		return "", nil, false
	}

	host := common.ExtractHost(rawURL)
	for _, p := range reg.Platforms {
		if !p.hostRe.MatchString(host) {
			continue
		}
		tm := p.tokenRe.FindStringSubmatch(rawURL)
		if tm == nil {
			continue
		}
		token := tm[1]
		return p.Name, buildPlatformConfig(p, token), true
	}
	return "", nil, false
}

func buildPlatformConfig(p *PlatformPattern, token string) *models.SourceConfig {
	cfg := &models.SourceConfig{
		Type:         p.Type,
		URL:          strings.ReplaceAll(p.APIURL, "{token}", token),
		ResponsePath: p.ResponsePath,
		FollowDetail: p.FollowDetail,
		Platform:     p.Name,
		BoardToken:   token,
		Fields: models.FieldMap{
			Title:          p.Fields["title"],
			URL:            p.Fields["url"],
			Company:        p.Fields["company"],
			Location:       p.Fields["location"],
			Description:    p.Fields["description"],
			PostedDate:     p.Fields["posted_date"],
			Salary:         p.Fields["salary"],
			Tags:           p.Fields["tags"],
			Metadata:       p.Fields["metadata"],
			Departments:    p.Fields["departments"],
			Offices:        p.Fields["offices"],
			CompanyWebsite: p.Fields["company_website"],
		},
	}
	return cfg
}

func workdayConfig(tenant, shard, site string) *models.SourceConfig {
	base := fmt.Sprintf("https://%s.%s.myworkdayjobs.com", tenant, shard)
	return &models.SourceConfig{
		Type:         models.SourceTypeAPI,
		URL:          fmt.Sprintf("%s/wday/cxs/%s/%s/jobs", base, tenant, site),
		Method:       "POST",
		PostBody:     map[string]interface{}{"appliedFacets": map[string]interface{}{}, "limit": 20, "offset": 0, "searchText": ""},
		ResponsePath: "jobPostings",
		BaseURL:      fmt.Sprintf("%s/%s", base, site),
		FollowDetail: true,
		Platform:     "workday",
		BoardToken:   tenant,
		PageSize:     20,
		Fields: models.FieldMap{
			Title:      "title",
			URL:        "externalPath",
			Location:   "locationsText",
			PostedDate: "postedOn",
		},
	}
}

// MatchSingleListing reports whether the URL points at one aggregator
// listing rather than a scrapeable board
func MatchSingleListing(rawURL string) (name string, ok bool) {
	reg, err := loadPlatformRegistry()
	if err != nil {
		return "", false
	}
	for _, s := range reg.SingleListing {
		if s.re.MatchString(rawURL) {
			return s.Name, true
		}
	}
	return "", false
}

// IsATSProviderSite reports whether the URL is an ATS vendor's own site
// rather than a customer board. Only the bare vendor host counts; a
// customer subdomain like boards.greenhouse.io does not.
func IsATSProviderSite(rawURL string) bool {
	reg, err := loadPlatformRegistry()
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(common.ExtractHost(rawURL), "www.")
	for _, vendor := range reg.ATSProviderHosts {
		if host == vendor {
			return true
		}
	}
	return false
}

// jobsSubdomainRe powers the heuristic greenhouse probe: careers.acme.com
// and jobs.acme.io suggest the slug "acme"
var jobsSubdomainRe = regexp.MustCompile(`^(?:jobs|careers)\.([a-z0-9-]+)\.[a-z.]+$`)

// GuessBoardSlug extracts a probable board slug from a jobs/careers
// subdomain
func GuessBoardSlug(rawURL string) (string, bool) {
	host := common.ExtractHost(rawURL)
	m := jobsSubdomainRe.FindStringSubmatch(host)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var leverPostingRe = regexp.MustCompile(`jobs\.(?:eu\.)?lever\.co/([A-Za-z0-9_-]+)/[0-9a-f-]{36}`)

// LeverBoardFromPosting derives the board slug from a single Lever
// posting URL
func LeverBoardFromPosting(rawURL string) (string, bool) {
	m := leverPostingRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// GreenhouseProbeConfig builds the config used to live-test a guessed
// greenhouse slug
func GreenhouseProbeConfig(slug string) *models.SourceConfig {
	reg, err := loadPlatformRegistry()
	if err != nil {
		return nil
	}
	for _, p := range reg.Platforms {
		if p.Name == "greenhouse" {
			return buildPlatformConfig(p, slug)
		}
	}
	return nil
}
