package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

func baseMatchPolicy() *models.MatchPolicy {
	return &models.MatchPolicy{
		WorkArrangement: models.WorkArrangementPolicy{
			AllowRemote: true,
			AllowHybrid: true,
			AllowOnsite: true,
		},
		StrikeEngine: models.StrikeEnginePolicy{
			Enabled:         true,
			StrikeThreshold: 3,
			RejectDays:      7,
			StrikeDays:      1,
		},
	}
}

func freshDate() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newEngine(pol *models.MatchPolicy) *StrikeEngine {
	return NewStrikeEngine(pol, models.TitlePolicy{}, common.GetLogger())
}

func TestStrikeEnginePassesCleanPosting(t *testing.T) {
	result := newEngine(baseMatchPolicy()).Evaluate(&models.Posting{
		Title:       "Senior Go Engineer",
		Description: "Build backend services with Go and Postgres",
		PostedDate:  freshDate(),
	})
	assert.True(t, result.Passed)
	assert.Zero(t, result.StrikeTotal)
}

func TestStrikeEngineRejectedSeniority(t *testing.T) {
	pol := baseMatchPolicy()
	pol.Seniority.Rejected = []string{"intern", "junior"}

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Software Engineering Intern",
		PostedDate: freshDate(),
	})
	assert.False(t, result.Passed)
	assert.True(t, result.HardReject)

	// Token matching is word-bounded: "internal" is not "intern"
	result = newEngine(pol).Evaluate(&models.Posting{
		Title:      "Engineer, Internal Tools",
		PostedDate: freshDate(),
	})
	assert.True(t, result.Passed)
}

func TestStrikeEngineCommissionIndicator(t *testing.T) {
	result := newEngine(baseMatchPolicy()).Evaluate(&models.Posting{
		Title:       "Sales Engineer",
		Description: "This is a commission only position with unlimited upside",
		PostedDate:  freshDate(),
	})
	assert.False(t, result.Passed)
	assert.True(t, result.HardReject)
}

func TestStrikeEngineAgeHardReject(t *testing.T) {
	result := newEngine(baseMatchPolicy()).Evaluate(&models.Posting{
		Title:      "Go Engineer",
		PostedDate: time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339),
	})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "days old")
}

func TestStrikeEngineAccumulation(t *testing.T) {
	pol := baseMatchPolicy()
	pol.StrikeEngine.SalaryStrikeFloor = 180000
	pol.StrikeEngine.SalaryStrikePoints = 1.5
	pol.StrikeEngine.SeniorityStrikes = map[string]float64{"mid-level": 1}
	pol.StrikeEngine.Buzzwords = []string{"rockstar"}
	pol.StrikeEngine.BuzzwordStrikePoints = 1

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:       "Mid-Level Go Engineer",
		Description: "We want a rockstar developer",
		Salary:      "$120k",
		PostedDate:  freshDate(),
	})

	assert.False(t, result.Passed)
	assert.False(t, result.HardReject)
	assert.Equal(t, 3.5, result.StrikeTotal)
	assert.Len(t, result.Strikes, 3)
}

func TestStrikeEngineUnderThresholdPasses(t *testing.T) {
	pol := baseMatchPolicy()
	pol.StrikeEngine.SalaryStrikeFloor = 180000
	pol.StrikeEngine.SalaryStrikePoints = 1.5

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Senior Go Engineer",
		Salary:     "$150k",
		PostedDate: freshDate(),
	})
	assert.True(t, result.Passed)
	assert.Equal(t, 1.5, result.StrikeTotal)
}

func TestStrikeEngineTechnologyRanks(t *testing.T) {
	pol := baseMatchPolicy()
	pol.StrikeEngine.TechnologyRanks = map[string]string{
		"php":  "fail",
		"java": "strike",
	}
	pol.StrikeEngine.TechnologyStrikePoints = 1

	t.Run("fail rank hard-rejects", func(t *testing.T) {
		result := newEngine(pol).Evaluate(&models.Posting{
			Title:       "Backend Engineer",
			Description: "Our stack is PHP and Laravel",
			PostedDate:  freshDate(),
		})
		assert.False(t, result.Passed)
		assert.True(t, result.HardReject)
	})

	t.Run("strike rank accumulates", func(t *testing.T) {
		result := newEngine(pol).Evaluate(&models.Posting{
			Title:       "Backend Engineer",
			Description: "Mostly Go with some Java services",
			PostedDate:  freshDate(),
		})
		assert.True(t, result.Passed)
		assert.Equal(t, 1.0, result.StrikeTotal)
	})
}

func TestGoTokenSkipsGoToMarket(t *testing.T) {
	pol := baseMatchPolicy()
	pol.StrikeEngine.TechnologyRanks = map[string]string{"go": "strike"}

	t.Run("go to market does not count", func(t *testing.T) {
		result := newEngine(pol).Evaluate(&models.Posting{
			Title:       "Product Marketing Manager",
			Description: "Own our go-to-market strategy and go to market plans",
			PostedDate:  freshDate(),
		})
		assert.Zero(t, result.StrikeTotal)
	})

	t.Run("real go mention counts", func(t *testing.T) {
		result := newEngine(pol).Evaluate(&models.Posting{
			Title:       "Backend Engineer",
			Description: "Services written in Go, deployed on Kubernetes",
			PostedDate:  freshDate(),
		})
		assert.Equal(t, 1.0, result.StrikeTotal)
	})
}

func TestStrikeEngineOnsiteRejectRecordsWorkLocationStrike(t *testing.T) {
	pol := baseMatchPolicy()
	pol.WorkArrangement.AllowOnsite = false

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Senior Sales Manager",
		Location:   "New York, NY (On-site)",
		PostedDate: freshDate(),
	})

	assert.False(t, result.Passed)
	assert.True(t, result.HardReject)
	assert.Equal(t, "onsite positions are not allowed", result.Reason)

	categories := make([]string, 0, len(result.Strikes))
	for _, s := range result.Strikes {
		categories = append(categories, s.Category)
	}
	assert.Contains(t, categories, "work_location",
		"rejected arrangement must leave an auditable strike")
}

func TestStrikeEnginePresenceRejectRecordsWorkLocationStrike(t *testing.T) {
	pol := baseMatchPolicy()
	pol.WorkArrangement.UserLocation = "Denver, CO"

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Go Engineer",
		Location:   "Boston, MA (On-site)",
		PostedDate: freshDate(),
	})

	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "requires presence")
	assert.NotEmpty(t, result.Strikes)
	assert.Equal(t, "work_location", result.Strikes[0].Category)
	assert.Equal(t, "presence", result.Strikes[0].Name)
}

func TestStrikeEngineRemoteTimezoneIsStrikeNotReject(t *testing.T) {
	pol := baseMatchPolicy()
	pol.WorkArrangement.UserLocation = "America/Denver"
	pol.WorkArrangement.MaxTimezoneDiffHours = 8

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Go Engineer",
		Location:   "Sydney, Australia",
		IsRemote:   true,
		PostedDate: freshDate(),
	})

	// Remote postings survive a timezone mismatch but carry the strike
	assert.True(t, result.Passed)
	assert.False(t, result.HardReject)
	assert.Len(t, result.Strikes, 1)
	assert.Equal(t, "work_location", result.Strikes[0].Category)
	assert.Equal(t, "timezone", result.Strikes[0].Name)
}

func TestStopListIsStrikeNotReject(t *testing.T) {
	pol := baseMatchPolicy()
	pol.StopList = models.StopList{
		Companies: []string{"Evil Corp"},
		Points:    2,
	}

	result := newEngine(pol).Evaluate(&models.Posting{
		Title:      "Go Engineer",
		Company:    "Evil Corp Inc",
		PostedDate: freshDate(),
	})

	// Stop-list alone stays under the threshold
	assert.True(t, result.Passed)
	assert.Equal(t, 2.0, result.StrikeTotal)
	assert.Equal(t, "stop_list", result.Strikes[0].Category)
}
