package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

var defaultCommissionIndicators = []string{
	"commission only",
	"commission-only",
	"100% commission",
	"multi-level marketing",
	"mlm",
	"unlimited earning potential",
}

// StrikeEngine is the two-tier filter behind the JOB pipeline's filter
// stage. Tier 1 rules hard-reject on their own; tier 2 rules accumulate
// weighted strikes and the posting fails only when the total crosses
// the threshold.
type StrikeEngine struct {
	match  *models.MatchPolicy
	title  models.TitlePolicy
	logger arbor.ILogger
}

func NewStrikeEngine(match *models.MatchPolicy, title models.TitlePolicy, logger arbor.ILogger) *StrikeEngine {
	return &StrikeEngine{match: match, title: title, logger: logger}
}

// Evaluate runs both tiers and returns the full audit trail
func (e *StrikeEngine) Evaluate(p *models.Posting) models.FilterResult {
	pol := e.match.StrikeEngine
	result := models.FilterResult{
		Passed:          true,
		StrikeThreshold: strikeThreshold(pol),
	}

	if reason := e.tier1(p, &result); reason != "" {
		result.Passed = false
		result.HardReject = true
		result.Reason = reason
		e.logger.Debug().
			Str("title", p.Title).
			Str("reason", reason).
			Msg("Posting hard-rejected")
		return result
	}

	if reason := e.tier2(p, &result); reason != "" {
		result.Passed = false
		result.HardReject = true
		result.Reason = reason
		return result
	}

	if result.StrikeTotal >= result.StrikeThreshold {
		result.Passed = false
		result.Reason = fmt.Sprintf("accumulated %.1f strikes (threshold %.1f)",
			result.StrikeTotal, result.StrikeThreshold)
		e.logger.Debug().
			Str("title", p.Title).
			Float64("strikes", result.StrikeTotal).
			Msg("Posting rejected on strike total")
	}

	return result
}

// tier1 returns a non-empty reason on hard reject; stop-list and
// timezone findings land as strikes instead
func (e *StrikeEngine) tier1(p *models.Posting, result *models.FilterResult) string {
	pol := e.match.StrikeEngine
	titleLower := strings.ToLower(p.Title)

	if len(e.title.RequiredKeywords) > 0 && p.Title != "" {
		found := false
		for _, kw := range e.title.RequiredKeywords {
			if strings.Contains(titleLower, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return "title matches no required keyword"
		}
	}

	for _, tok := range e.match.Seniority.Rejected {
		if containsToken(titleLower, tok) {
			return fmt.Sprintf("title contains rejected seniority token %q", tok)
		}
	}

	e.applyStopList(p, result)

	indicators := pol.CommissionIndicators
	if len(indicators) == 0 {
		indicators = defaultCommissionIndicators
	}
	descLower := strings.ToLower(p.Description)
	for _, ind := range indicators {
		if strings.Contains(descLower, strings.ToLower(ind)) {
			return fmt.Sprintf("commission/MLM indicator %q in description", ind)
		}
	}

	if reason := e.applyLocationPolicy(p, result); reason != "" {
		return reason
	}

	rejectDays := pol.RejectDays
	if rejectDays <= 0 {
		rejectDays = 7
	}
	if age, ok := postingAgeDays(p); ok && age > rejectDays {
		return fmt.Sprintf("posting is %d days old (reject after %d)", age, rejectDays)
	}

	return ""
}

func (e *StrikeEngine) applyStopList(p *models.Posting, result *models.FilterResult) {
	stop := e.match.StopList
	points := stop.Points
	if points <= 0 {
		points = 2
	}

	for _, company := range stop.Companies {
		if common.CompanyNamesMatch(p.Company, company) {
			addStrike(result, "stop_list", company, "stop-listed company", p.Company, points)
			return
		}
	}

	haystack := strings.ToLower(p.Title + " " + p.Description)
	for _, kw := range stop.Keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			addStrike(result, "stop_list", kw, "stop-listed keyword", "", points)
			return
		}
	}

	host := common.ExtractHost(p.URL)
	for _, domain := range stop.Domains {
		if common.HostMatchesDomain(host, domain) {
			addStrike(result, "stop_list", domain, "stop-listed domain", host, points)
			return
		}
	}
}

// applyLocationPolicy re-runs the arrangement rules with strike-grade
// timezone handling: a hard cap violation rejects, anything softer adds
// strikes. Every finding, rejecting or not, lands as a work_location
// strike so the audit trail names what went wrong.
func (e *StrikeEngine) applyLocationPolicy(p *models.Posting, result *models.FilterResult) string {
	pol := e.match.WorkArrangement
	arrangement := InferArrangement(p, false, pol.RemoteKeywords)

	reject := func(name, reason string) string {
		addStrike(result, "work_location", name, reason, p.Location, 1)
		return reason
	}

	switch arrangement {
	case ArrangementRemote:
		if !pol.AllowRemote {
			return reject("arrangement", "remote positions are not allowed")
		}
	case ArrangementHybrid:
		if !pol.AllowHybrid {
			return reject("arrangement", "hybrid positions are not allowed")
		}
	case ArrangementOnsite:
		if !pol.AllowOnsite {
			return reject("arrangement", "onsite positions are not allowed")
		}
	case ArrangementUnknown:
		if !pol.TreatUnknownAsOnsite {
			return ""
		}
		arrangement = ArrangementOnsite
		if !pol.AllowOnsite {
			return reject("arrangement", "onsite positions are not allowed")
		}
	}

	if arrangement != ArrangementRemote && !pol.WillRelocate && pol.UserLocation != "" && p.Location != "" {
		if city, _ := splitCityState(p.Location); city != "" && !LocationsMatch(p.Location, pol.UserLocation) {
			return reject("presence", fmt.Sprintf("position requires presence in %s", p.Location))
		}
	}

	if pol.MaxTimezoneDiffHours > 0 {
		if diff, ok := TimezoneDiffHours(p.Location, pol.UserLocation); ok && diff > pol.MaxTimezoneDiffHours {
			if arrangement == ArrangementRemote {
				addStrike(result, "work_location", "timezone",
					fmt.Sprintf("timezone differs by %.1f hours", diff), p.Location, 1)
			} else {
				return reject("timezone",
					fmt.Sprintf("timezone differs by %.1f hours (max %.1f)", diff, pol.MaxTimezoneDiffHours))
			}
		}
	}

	return ""
}

// tier2 accumulates strikes; a non-empty return promotes to hard reject
// (fail-ranked technology)
func (e *StrikeEngine) tier2(p *models.Posting, result *models.FilterResult) string {
	pol := e.match.StrikeEngine
	if !pol.Enabled {
		return ""
	}

	if pol.SalaryStrikeFloor > 0 {
		if salary, ok := ExtractSalary(p); ok && salary < pol.SalaryStrikeFloor {
			addStrike(result, "salary", "below_preferred",
				fmt.Sprintf("salary %.0f below preferred %.0f", salary, pol.SalaryStrikeFloor),
				p.Salary, orDefault(pol.SalaryStrikePoints, 1))
		}
	}

	titleLower := strings.ToLower(p.Title)
	for token, points := range pol.SeniorityStrikes {
		if containsToken(titleLower, token) {
			addStrike(result, "seniority", token, "seniority token in title", p.Title, points)
		}
	}

	if reason := e.applyTechnologyRanks(p, result); reason != "" {
		return reason
	}

	if pol.MinDescriptionLength > 0 && p.Description != "" && len(p.Description) < pol.MinDescriptionLength {
		addStrike(result, "quality", "short_description",
			fmt.Sprintf("description is %d chars (min %d)", len(p.Description), pol.MinDescriptionLength),
			"", orDefault(pol.QualityStrikePoints, 1))
	}
	descLower := strings.ToLower(p.Description)
	for _, buzz := range pol.Buzzwords {
		if strings.Contains(descLower, strings.ToLower(buzz)) {
			addStrike(result, "quality", buzz, "buzzword in description", "",
				orDefault(pol.BuzzwordStrikePoints, 0.5))
		}
	}

	strikeDays := pol.StrikeDays
	if strikeDays <= 0 {
		strikeDays = 1
	}
	if age, ok := postingAgeDays(p); ok && age > strikeDays {
		addStrike(result, "age", "stale",
			fmt.Sprintf("posting is %d days old (strike after %d)", age, strikeDays),
			p.PostedDate, orDefault(pol.AgeStrikePoints, 1))
	}

	return ""
}

func (e *StrikeEngine) applyTechnologyRanks(p *models.Posting, result *models.FilterResult) string {
	pol := e.match.StrikeEngine
	if len(pol.TechnologyRanks) == 0 {
		return ""
	}

	haystack := strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Tags, " "))
	for tag, rank := range pol.TechnologyRanks {
		if !containsTechToken(haystack, strings.ToLower(tag)) {
			continue
		}
		switch rank {
		case "fail":
			return fmt.Sprintf("fail-ranked technology %q present", tag)
		case "strike":
			addStrike(result, "technology", tag, "strike-ranked technology present", "",
				orDefault(pol.TechnologyStrikePoints, 1))
		}
	}
	return ""
}

func addStrike(result *models.FilterResult, category, name, reason, detail string, points float64) {
	result.Strikes = append(result.Strikes, models.Strike{
		Category: category,
		Name:     name,
		Reason:   reason,
		Detail:   detail,
		Points:   points,
	})
	result.StrikeTotal += points
}

func strikeThreshold(pol models.StrikeEnginePolicy) float64 {
	if pol.StrikeThreshold > 0 {
		return pol.StrikeThreshold
	}
	return 3
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// postingAgeDays parses the normalized posted date; unparseable dates
// carry no age evidence
func postingAgeDays(p *models.Posting) (int, bool) {
	if p.PostedDate == "" {
		return 0, false
	}
	posted, err := time.Parse(time.RFC3339, p.PostedDate)
	if err != nil {
		return 0, false
	}
	return int(time.Since(posted).Hours() / 24), true
}

var tokenReCache sync.Map

// containsToken matches a token on word boundaries, case-insensitive
func containsToken(text, token string) bool {
	cached, ok := tokenReCache.Load(token)
	if !ok {
		cached = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
		tokenReCache.Store(token, cached)
	}
	return cached.(*regexp.Regexp).FindStringIndex(text) != nil
}

var goTokenRe = regexp.MustCompile(`(?i)\bgo\b`)
var goToMarketRe = regexp.MustCompile(`(?i)\bgo[ -]to[ -]market\b`)

// containsTechToken is containsToken with the one carve-out the tag
// "go" needs: occurrences inside "go to market" do not count
func containsTechToken(text, token string) bool {
	if token != "go" {
		return containsToken(text, token)
	}

	stripped := goToMarketRe.ReplaceAllString(text, "")
	return goTokenRe.FindStringIndex(stripped) != nil
}
