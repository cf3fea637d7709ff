package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/models"
)

// Prefilter is the cheap structured gate run before any expensive
// analysis. Its one inviolable rule: missing data passes. A check only
// rejects on explicit evidence; checks whose inputs are absent are
// recorded as skipped, not failed.
type Prefilter struct {
	policy *models.PrefilterPolicy
	logger arbor.ILogger
}

func NewPrefilter(policy *models.PrefilterPolicy, logger arbor.ILogger) *Prefilter {
	return &Prefilter{policy: policy, logger: logger}
}

// Evaluate runs the checks in order and stops at the first rejection
func (f *Prefilter) Evaluate(p *models.Posting, isRemoteSource bool) models.FilterResult {
	result := models.FilterResult{Passed: true}

	checks := []struct {
		name string
		run  func(*models.Posting, bool) (performed bool, reason string)
	}{
		{"title", f.checkTitle},
		{"freshness", f.checkFreshness},
		{"work_arrangement", f.checkArrangement},
		{"employment_type", f.checkEmploymentType},
		{"salary", f.checkSalary},
		{"technology", f.checkTechnology},
	}

	for _, check := range checks {
		performed, reason := check.run(p, isRemoteSource)
		if performed {
			result.ChecksPerformed = append(result.ChecksPerformed, check.name)
		} else {
			result.ChecksSkipped = append(result.ChecksSkipped, check.name)
		}
		if reason != "" {
			result.Passed = false
			result.Reason = reason
			f.logger.Debug().
				Str("title", p.Title).
				Str("check", check.name).
				Str("reason", reason).
				Msg("Posting rejected by pre-filter")
			return result
		}
	}

	return result
}

func (f *Prefilter) checkTitle(p *models.Posting, _ bool) (bool, string) {
	if p.Title == "" {
		return false, ""
	}
	pol := f.policy.Title
	if len(pol.ExcludedKeywords) == 0 && len(pol.RequiredKeywords) == 0 {
		return false, ""
	}

	lower := strings.ToLower(p.Title)
	for _, kw := range pol.ExcludedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, fmt.Sprintf("title contains excluded keyword %q", kw)
		}
	}

	if len(pol.RequiredKeywords) > 0 {
		for _, kw := range pol.RequiredKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true, ""
			}
		}
		return true, "title matches no required keyword"
	}

	return true, ""
}

func (f *Prefilter) checkFreshness(p *models.Posting, _ bool) (bool, string) {
	maxAge := f.policy.Freshness.MaxAgeDays
	if maxAge <= 0 || p.PostedDate == "" {
		return false, ""
	}

	posted, err := time.Parse(time.RFC3339, p.PostedDate)
	if err != nil {
		// Unparseable dates are no evidence either way
		return false, ""
	}

	ageDays := int(time.Since(posted).Hours() / 24)
	if ageDays > maxAge {
		return true, fmt.Sprintf("posting is %d days old (max %d)", ageDays, maxAge)
	}
	return true, ""
}

func (f *Prefilter) checkArrangement(p *models.Posting, isRemoteSource bool) (bool, string) {
	pol := f.policy.WorkArrangement
	arrangement := InferArrangement(p, isRemoteSource, pol.RemoteKeywords)

	if arrangement == ArrangementUnknown && !(pol.TreatUnknownAsOnsite && p.Location != "") {
		return false, ""
	}

	switch arrangement {
	case ArrangementRemote:
		if !pol.AllowRemote {
			return true, "remote positions are not allowed"
		}
	case ArrangementHybrid:
		if !pol.AllowHybrid {
			return true, "hybrid positions are not allowed"
		}
	case ArrangementOnsite:
		if !pol.AllowOnsite {
			return true, "onsite positions are not allowed"
		}
	}

	// Location rule for positions that require being somewhere
	needsPresence := arrangement == ArrangementHybrid || arrangement == ArrangementOnsite ||
		(arrangement == ArrangementUnknown && pol.TreatUnknownAsOnsite)
	if needsPresence && !pol.WillRelocate && pol.UserLocation != "" && p.Location != "" {
		if city, _ := splitCityState(p.Location); city != "" && !LocationsMatch(p.Location, pol.UserLocation) {
			return true, fmt.Sprintf("position requires presence in %s", p.Location)
		}
	}

	// Timezone guard for distributed work
	if pol.MaxTimezoneDiffHours > 0 && (arrangement == ArrangementRemote || arrangement == ArrangementHybrid) {
		if diff, ok := TimezoneDiffHours(p.Location, pol.UserLocation); ok && diff > pol.MaxTimezoneDiffHours {
			return true, fmt.Sprintf("timezone differs by %.1f hours (max %.1f)", diff, pol.MaxTimezoneDiffHours)
		}
	}

	return true, ""
}

func (f *Prefilter) checkEmploymentType(p *models.Posting, _ bool) (bool, string) {
	allowed := f.policy.EmploymentType.Allowed
	if len(allowed) == 0 || p.EmploymentType == "" {
		return false, ""
	}

	normalized := NormalizeEmploymentType(p.EmploymentType)
	for _, a := range allowed {
		if NormalizeEmploymentType(a) == normalized {
			return true, ""
		}
	}
	return true, fmt.Sprintf("employment type %q is not allowed", normalized)
}

func (f *Prefilter) checkSalary(p *models.Posting, _ bool) (bool, string) {
	min := f.policy.Salary.Minimum
	if min <= 0 {
		return false, ""
	}

	salary, ok := ExtractSalary(p)
	if !ok {
		return false, ""
	}
	if salary < min {
		return true, fmt.Sprintf("salary %.0f is below minimum %.0f", salary, min)
	}
	return true, ""
}

func (f *Prefilter) checkTechnology(p *models.Posting, _ bool) (bool, string) {
	rejected := f.policy.Technology.Rejected
	if len(rejected) == 0 || len(p.Tags) == 0 {
		return false, ""
	}

	tagSet := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		tagSet[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, r := range rejected {
		if tagSet[strings.ToLower(r)] {
			return true, fmt.Sprintf("tagged with rejected technology %q", r)
		}
	}
	return true, ""
}

// NormalizeEmploymentType folds publisher variants into the canonical
// full-time / part-time / contract set
func NormalizeEmploymentType(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	lower = strings.NewReplacer("_", "-", " ", "-").Replace(lower)

	switch {
	case strings.Contains(lower, "full"):
		return "full-time"
	case strings.Contains(lower, "part"):
		return "part-time"
	case strings.Contains(lower, "contract"),
		strings.Contains(lower, "freelance"),
		strings.Contains(lower, "temporary"):
		return "contract"
	default:
		return lower
	}
}
