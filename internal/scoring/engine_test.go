package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

func scoringPolicy() *models.MatchPolicy {
	return &models.MatchPolicy{
		MinScore: 50,
		WorkArrangement: models.WorkArrangementPolicy{
			AllowRemote: true,
			AllowHybrid: true,
			AllowOnsite: false,
		},
		Location: models.LocationScoring{
			UserTimezone: "America/Denver",
			UserCity:     "Denver",
			RemoteBonus:  5,
		},
		Seniority: models.SeniorityPolicy{
			Preferred:      []string{"senior", "staff"},
			Rejected:       []string{"intern"},
			PreferredBonus: 10,
		},
		Technology: models.TechnologyScoring{
			Required:      []string{"go"},
			Preferred:     []string{"kubernetes"},
			Disliked:      []string{"wordpress"},
			Rejected:      []string{"cobol"},
			RequiredBonus: 10,
		},
		Salary: models.SalaryScoring{
			Minimum:          100000,
			Target:           180000,
			MeetsTargetBonus: 5,
			EquityBonus:      3,
		},
	}
}

func newTestEngine(pol *models.MatchPolicy) *Engine {
	return NewEngine(pol, common.GetLogger())
}

func fresh() string { return time.Now().UTC().Format(time.RFC3339) }

func TestScoreStrongMatch(t *testing.T) {
	b := newTestEngine(scoringPolicy()).Score(&models.Posting{
		Title:       "Senior Go Engineer",
		Description: "Remote role building Go services on Kubernetes. Equity included. 185,000 USD.",
		Location:    "Remote",
		Salary:      "$185,000",
		PostedDate:  fresh(),
	}, nil)

	assert.True(t, b.Passed)
	assert.Greater(t, b.FinalScore, 50.0)
	assert.Equal(t, 50.0, b.BaseScore)
	assert.NotEmpty(t, b.Adjustments)
}

func TestScoreHardRejects(t *testing.T) {
	engine := newTestEngine(scoringPolicy())

	t.Run("rejected seniority", func(t *testing.T) {
		b := engine.Score(&models.Posting{Title: "Engineering Intern", PostedDate: fresh()}, nil)
		assert.False(t, b.Passed)
		assert.Contains(t, b.RejectionReason, "intern")
		assert.Zero(t, b.FinalScore)
	})

	t.Run("rejected technology", func(t *testing.T) {
		b := engine.Score(&models.Posting{
			Title:       "Senior Engineer",
			Description: "Maintain our COBOL mainframe",
			PostedDate:  fresh(),
		}, nil)
		assert.False(t, b.Passed)
		assert.Contains(t, b.RejectionReason, "cobol")
	})

	t.Run("salary below minimum", func(t *testing.T) {
		b := engine.Score(&models.Posting{
			Title:      "Senior Go Engineer",
			Location:   "Remote",
			Salary:     "$80k",
			PostedDate: fresh(),
		}, nil)
		assert.False(t, b.Passed)
		assert.Contains(t, b.RejectionReason, "below minimum")
	})

	t.Run("onsite not allowed", func(t *testing.T) {
		b := engine.Score(&models.Posting{
			Title:    "Senior Go Engineer",
			Location: "New York, NY",
			Metadata: map[string]string{"Location Type": "On-site"},
		}, nil)
		assert.False(t, b.Passed)
	})
}

func TestScoreClamping(t *testing.T) {
	pol := scoringPolicy()
	pol.MinScore = 0
	pol.Location.RemoteBonus = 500

	b := newTestEngine(pol).Score(&models.Posting{
		Title:    "Senior Go Engineer",
		Location: "Remote",
	}, nil)

	assert.Equal(t, 100.0, b.FinalScore)
}

func TestScoreBelowThresholdSkipped(t *testing.T) {
	pol := scoringPolicy()
	pol.MinScore = 90

	b := newTestEngine(pol).Score(&models.Posting{
		Title:    "Engineer",
		Location: "Remote",
	}, nil)

	assert.False(t, b.Passed)
	assert.Contains(t, b.RejectionReason, "below minimum")
	assert.NotZero(t, b.FinalScore)
}

func TestScoreCompanySignals(t *testing.T) {
	pol := scoringPolicy()
	pol.Company = models.CompanyScoring{
		RemoteFirstBonus: 5,
		AIMLFocusBonus:   5,
		TierAdjustments:  map[string]float64{"S": 10, "D": -10},
	}

	company := &models.Company{
		Name:          "Acme",
		IsRemoteFirst: true,
		Industry:      "AI infrastructure",
		Tier:          "S",
	}

	withCompany := newTestEngine(pol).Score(&models.Posting{
		Title:    "Senior Go Engineer",
		Location: "Remote",
	}, company)
	without := newTestEngine(pol).Score(&models.Posting{
		Title:    "Senior Go Engineer",
		Location: "Remote",
	}, nil)

	assert.Equal(t, withCompany.FinalScore, without.FinalScore+20)
}

func TestScoreExperience(t *testing.T) {
	pol := scoringPolicy()
	pol.Experience = models.ExperienceScoring{UserYears: 8}
	engine := newTestEngine(pol)

	tooSenior := engine.Score(&models.Posting{
		Title:       "Senior Go Engineer",
		Location:    "Remote",
		Description: "Requires 15+ years of experience",
	}, nil)
	fine := engine.Score(&models.Posting{
		Title:       "Senior Go Engineer",
		Location:    "Remote",
		Description: "Requires 5+ years of experience",
	}, nil)

	assert.Equal(t, fine.FinalScore-30, tooSenior.FinalScore)
}

func TestMinYearsRequired(t *testing.T) {
	n, ok := minYearsRequired("You have 5+ years of Go and 10 years total")
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = minYearsRequired("No experience requirements listed")
	assert.False(t, ok)
}

func TestScoreClearanceHardReject(t *testing.T) {
	pol := scoringPolicy()
	pol.RoleFit.ClearanceHardReject = true

	b := newTestEngine(pol).Score(&models.Posting{
		Title:       "Senior Go Engineer",
		Location:    "Remote",
		Description: "Active TS/SCI security clearance required",
	}, nil)

	assert.False(t, b.Passed)
	assert.Contains(t, b.RejectionReason, "clearance")
}
