package scoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/filter"
	"github.com/ternarybob/prospect/internal/models"
)

const baseScore = 50.0

// Engine is the deterministic scorer behind the analyze stage. It
// starts every posting at 50, walks the category rules, and clamps the
// final score to [0, 100]. Any category may short-circuit with a hard
// reject.
type Engine struct {
	policy *models.MatchPolicy
	logger arbor.ILogger
}

func NewEngine(policy *models.MatchPolicy, logger arbor.ILogger) *Engine {
	return &Engine{policy: policy, logger: logger}
}

// Score evaluates one posting against the match policy. The company
// record is optional; company-signal scoring is skipped without it.
func (e *Engine) Score(p *models.Posting, company *models.Company) models.ScoreBreakdown {
	b := models.ScoreBreakdown{BaseScore: baseScore, Passed: true}
	score := baseScore

	categories := []func(*models.Posting, *models.Company, *models.ScoreBreakdown) (float64, string){
		e.scoreSeniority,
		e.scoreLocation,
		e.scoreTechnology,
		e.scoreSalary,
		e.scoreExperience,
		e.scoreSkills,
		e.scoreFreshness,
		e.scoreRoleFit,
		e.scoreCompany,
	}

	for _, category := range categories {
		points, reject := category(p, company, &b)
		score += points
		if reject != "" {
			b.Passed = false
			b.RejectionReason = reject
			b.FinalScore = 0
			e.logger.Debug().
				Str("title", p.Title).
				Str("reason", reject).
				Msg("Posting hard-rejected by scoring")
			return b
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	b.FinalScore = score
	b.Passed = score >= e.policy.MinScore
	if !b.Passed {
		b.RejectionReason = fmt.Sprintf("score %.1f below minimum %.1f", score, e.policy.MinScore)
	}

	e.logger.Debug().
		Str("title", p.Title).
		Float64("score", score).
		Bool("passed", b.Passed).
		Msg("Posting scored")

	return b
}

func adjust(b *models.ScoreBreakdown, category, reason string, points float64) float64 {
	b.Adjustments = append(b.Adjustments, models.ScoreAdjustment{
		Category: category,
		Reason:   reason,
		Points:   points,
	})
	return points
}

func (e *Engine) scoreSeniority(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Seniority
	titleLower := strings.ToLower(p.Title)

	for _, tok := range pol.Rejected {
		if containsToken(titleLower, tok) {
			adjust(b, "seniority", fmt.Sprintf("rejected seniority %q", tok), -100)
			return -100, fmt.Sprintf("title contains rejected seniority token %q", tok)
		}
	}
	for _, tok := range pol.Preferred {
		if containsToken(titleLower, tok) {
			bonus := pol.PreferredBonus
			if bonus == 0 {
				bonus = 10
			}
			return adjust(b, "seniority", fmt.Sprintf("preferred seniority %q", tok), bonus), ""
		}
	}
	return 0, ""
}

func (e *Engine) scoreLocation(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Location
	wa := e.policy.WorkArrangement
	arrangement := filter.InferArrangement(p, false, wa.RemoteKeywords)

	var total float64

	switch arrangement {
	case filter.ArrangementRemote:
		if !wa.AllowRemote {
			return total, "remote positions are not allowed"
		}
		total += adjust(b, "location", "remote position", pol.RemoteBonus)
		return total, ""

	case filter.ArrangementHybrid, filter.ArrangementOnsite:
		allowed := (arrangement == filter.ArrangementHybrid && wa.AllowHybrid) ||
			(arrangement == filter.ArrangementOnsite && wa.AllowOnsite)
		if !allowed {
			return total, fmt.Sprintf("%s positions are not allowed", arrangement)
		}

		sameCity := pol.UserCity != "" && filter.LocationsMatch(p.Location, pol.UserCity)
		if !sameCity && !wa.WillRelocate && p.Location != "" {
			penalty := pol.RelocationPenalty
			if penalty <= -100 {
				adjust(b, "location", "relocation required", penalty)
				return total + penalty, "position requires relocation"
			}
			if penalty != 0 {
				total += adjust(b, "location", "relocation required", penalty)
			}
		}

		if diff, ok := filter.TimezoneDiffHours(p.Location, pol.UserTimezone); ok {
			if pol.MaxTimezoneDiffHours > 0 && diff > pol.MaxTimezoneDiffHours {
				return total, fmt.Sprintf("timezone differs by %.1f hours (max %.1f)", diff, pol.MaxTimezoneDiffHours)
			}
			if pol.PerHourPenalty != 0 && diff > 0 {
				total += adjust(b, "location",
					fmt.Sprintf("timezone offset %.1f hours", diff), pol.PerHourPenalty*diff)
			}
		}

		if arrangement == filter.ArrangementHybrid && sameCity && pol.HybridSameCityBonus != 0 {
			total += adjust(b, "location", "hybrid in home city", pol.HybridSameCityBonus)
		}
	}

	return total, ""
}

func (e *Engine) scoreTechnology(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Technology
	haystack := strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Tags, " "))

	for _, tech := range pol.Rejected {
		if containsToken(haystack, tech) {
			adjust(b, "technology", fmt.Sprintf("rejected technology %q", tech), -100)
			return -100, fmt.Sprintf("rejected technology %q present", tech)
		}
	}

	var total float64
	requiredFound := false
	for _, tech := range pol.Required {
		if containsToken(haystack, tech) {
			requiredFound = true
			total += adjust(b, "technology", fmt.Sprintf("required technology %q", tech), orDefault(pol.RequiredBonus, 5))
		}
	}
	// Penalty fields carry their sign in config; defaults are negative
	if len(pol.Required) > 0 && !requiredFound {
		total += adjust(b, "technology", "no required technology present", orDefault(pol.MissingAllReqPenalty, -5))
	}
	for _, tech := range pol.Preferred {
		if containsToken(haystack, tech) {
			total += adjust(b, "technology", fmt.Sprintf("preferred technology %q", tech), orDefault(pol.PreferredBonus, 3))
		}
	}
	for _, tech := range pol.Disliked {
		if containsToken(haystack, tech) {
			total += adjust(b, "technology", fmt.Sprintf("disliked technology %q", tech), orDefault(pol.DislikedPenalty, -3))
		}
	}

	return total, ""
}

func (e *Engine) scoreSalary(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Salary
	var total float64

	salary, ok := filter.ExtractSalary(p)
	if ok {
		if pol.Minimum > 0 && salary < pol.Minimum {
			adjust(b, "salary", fmt.Sprintf("salary %.0f below minimum %.0f", salary, pol.Minimum), -100)
			return -100, fmt.Sprintf("salary %.0f is below minimum %.0f", salary, pol.Minimum)
		}
		if pol.Target > 0 {
			if salary < pol.Target {
				// Penalty scales with the shortfall, capped
				shortfall := (pol.Target - salary) / pol.Target
				penalty := -shortfall * 20
				cap := pol.BelowTargetCap
				if cap == 0 {
					cap = -15
				}
				if penalty < cap {
					penalty = cap
				}
				total += adjust(b, "salary", fmt.Sprintf("salary %.0f below target %.0f", salary, pol.Target), penalty)
			} else {
				total += adjust(b, "salary", "salary meets target", orDefault(pol.MeetsTargetBonus, 5))
			}
		}
	}

	descLower := strings.ToLower(p.Description)
	if pol.EquityBonus != 0 && (strings.Contains(descLower, "equity") || strings.Contains(descLower, "stock options")) {
		total += adjust(b, "salary", "equity offered", pol.EquityBonus)
	}
	if pol.ContractPenalty != 0 && filter.NormalizeEmploymentType(p.EmploymentType) == "contract" {
		total += adjust(b, "salary", "contract position", pol.ContractPenalty)
	}

	return total, ""
}

var yearsRequiredRe = regexp.MustCompile(`(?i)(\d{1,2})\s*\+?\s*years?`)

func (e *Engine) scoreExperience(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Experience
	if pol.UserYears <= 0 {
		return 0, ""
	}

	jobMin, ok := minYearsRequired(p.Description)
	if !ok {
		return 0, ""
	}

	var total float64
	switch {
	case jobMin > pol.UserYears+3:
		total += adjust(b, "experience",
			fmt.Sprintf("requires %d years, user has %d", jobMin, pol.UserYears), -30)
	case jobMin > pol.UserYears:
		total += adjust(b, "experience",
			fmt.Sprintf("requires %d years, user has %d", jobMin, pol.UserYears),
			float64(-(jobMin-pol.UserYears)*5))
	default:
		if pol.MaxRequired > 0 && jobMin > pol.MaxRequired {
			total += adjust(b, "experience",
				fmt.Sprintf("requires %d years (preferred max %d)", jobMin, pol.MaxRequired), -5)
		}
		if over := pol.UserYears - jobMin; over > 5 && pol.OverqualifiedPerYear != 0 {
			penalty := pol.OverqualifiedPerYear * float64(over-5)
			if pol.OverqualifiedCap != 0 && penalty < pol.OverqualifiedCap {
				penalty = pol.OverqualifiedCap
			}
			total += adjust(b, "experience",
				fmt.Sprintf("overqualified by %d years", over), penalty)
		}
	}

	return total, ""
}

// minYearsRequired returns the smallest years figure mentioned, which
// is the closest proxy for the hard requirement
func minYearsRequired(description string) (int, bool) {
	matches := yearsRequiredRe.FindAllStringSubmatch(description, -1)
	if len(matches) == 0 {
		return 0, false
	}
	min := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == 0 || n > 30 {
			continue
		}
		if min == 0 || n < min {
			min = n
		}
	}
	return min, min > 0
}

func (e *Engine) scoreSkills(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	if len(e.policy.Skills) == 0 || p.Description == "" {
		return 0, ""
	}

	descLower := strings.ToLower(p.Description)
	matched := 0
	for _, skill := range e.policy.Skills {
		if containsToken(descLower, skill) {
			matched++
		}
	}
	if matched == 0 {
		return 0, ""
	}

	points := float64(matched) * 2
	if points > 10 {
		points = 10
	}
	return adjust(b, "skills", fmt.Sprintf("%d user skills mentioned", matched), points), ""
}

func (e *Engine) scoreFreshness(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Freshness
	if p.PostedDate == "" {
		return 0, ""
	}
	posted, err := time.Parse(time.RFC3339, p.PostedDate)
	if err != nil {
		return 0, ""
	}
	ageDays := int(time.Since(posted).Hours() / 24)

	var total float64
	switch {
	case pol.VeryStaleDays > 0 && ageDays > pol.VeryStaleDays:
		total += adjust(b, "freshness", fmt.Sprintf("posting is %d days old", ageDays), pol.VeryStalePenalty)
	case pol.StaleDays > 0 && ageDays > pol.StaleDays:
		total += adjust(b, "freshness", fmt.Sprintf("posting is %d days old", ageDays), pol.StalePenalty)
	case pol.FreshDays > 0 && ageDays <= pol.FreshDays:
		total += adjust(b, "freshness", fmt.Sprintf("posting is %d days old", ageDays), pol.FreshBonus)
	}

	if pol.RepostPenalty != 0 && strings.Contains(strings.ToLower(p.Description), "repost") {
		total += adjust(b, "freshness", "posting appears to be a repost", pol.RepostPenalty)
	}

	return total, ""
}

var roleFamilies = []struct {
	name   string
	tokens []string
}{
	{"backend", []string{"backend", "back-end", "back end"}},
	{"ml_ai", []string{"machine learning", "ml engineer", " ai ", "artificial intelligence", "llm"}},
	{"devops_sre", []string{"devops", "sre", "site reliability", "platform engineer", "infrastructure"}},
	{"data", []string{"data engineer", "data platform", "data pipeline"}},
	{"security", []string{"security engineer", "appsec", "application security"}},
	{"lead", []string{"staff", "principal", "tech lead", "lead engineer"}},
}

var clearanceRe = regexp.MustCompile(`(?i)(security clearance|ts/sci|top secret)`)

func (e *Engine) scoreRoleFit(p *models.Posting, _ *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.RoleFit
	haystack := strings.ToLower(" " + p.Title + " " + p.Description + " ")

	if pol.ClearanceHardReject && clearanceRe.MatchString(haystack) {
		adjust(b, "role_fit", "security clearance required", -100)
		return -100, "position requires a security clearance"
	}

	bonuses := map[string]float64{
		"backend":    pol.BackendBonus,
		"ml_ai":      pol.MLAIBonus,
		"devops_sre": pol.DevOpsSREBonus,
		"data":       pol.DataBonus,
		"security":   pol.SecurityBonus,
		"lead":       pol.LeadBonus,
	}

	var total float64
	backendish := false
	for _, family := range roleFamilies {
		bonus := bonuses[family.name]
		if bonus == 0 {
			continue
		}
		for _, tok := range family.tokens {
			if strings.Contains(haystack, tok) {
				total += adjust(b, "role_fit", family.name+" role", bonus)
				if family.name == "backend" || family.name == "devops_sre" || family.name == "data" {
					backendish = true
				}
				break
			}
		}
	}

	if pol.FrontendPenalty != 0 && !backendish &&
		(strings.Contains(haystack, "frontend") || strings.Contains(haystack, "front-end")) {
		total += adjust(b, "role_fit", "frontend-only role", pol.FrontendPenalty)
	}
	if pol.ConsultingPenalty != 0 &&
		(strings.Contains(haystack, "consulting") || strings.Contains(haystack, "consultancy")) {
		total += adjust(b, "role_fit", "consulting role", pol.ConsultingPenalty)
	}
	if pol.ManagementPenalty != 0 && containsToken(haystack, "engineering manager") {
		total += adjust(b, "role_fit", "management role", pol.ManagementPenalty)
	}

	return total, ""
}

func (e *Engine) scoreCompany(p *models.Posting, company *models.Company, b *models.ScoreBreakdown) (float64, string) {
	pol := e.policy.Company
	if company == nil {
		return 0, ""
	}

	var total float64
	if pol.RemoteFirstBonus != 0 && company.IsRemoteFirst {
		total += adjust(b, "company", "remote-first company", pol.RemoteFirstBonus)
	}
	if pol.AIMLFocusBonus != 0 {
		industry := strings.ToLower(company.Industry)
		if strings.Contains(industry, "ai") || strings.Contains(industry, "machine learning") {
			total += adjust(b, "company", "AI/ML focused company", pol.AIMLFocusBonus)
		}
	}
	if pol.PreferredCityOfficeBonus != 0 && e.policy.Location.UserCity != "" &&
		filter.LocationsMatch(company.Headquarters, e.policy.Location.UserCity) {
		total += adjust(b, "company", "office in preferred city", pol.PreferredCityOfficeBonus)
	}
	if adj, ok := pol.TierAdjustments[company.Tier]; ok && adj != 0 {
		total += adjust(b, "company", fmt.Sprintf("company tier %s", company.Tier), adj)
	}

	return total, ""
}

var tokenReCache sync.Map

func containsToken(text, token string) bool {
	cached, ok := tokenReCache.Load(token)
	if !ok {
		cached = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
		tokenReCache.Store(token, cached)
	}
	return cached.(*regexp.Regexp).FindStringIndex(text) != nil
}

func orDefault(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}
