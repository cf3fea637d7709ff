package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/models"
)

func testPrefilter(pol *models.PrefilterPolicy) *Prefilter {
	return NewPrefilter(pol, common.GetLogger())
}

func TestPrefilterMissingDataPasses(t *testing.T) {
	pol := &models.PrefilterPolicy{
		Title:     models.TitlePolicy{RequiredKeywords: []string{"engineer"}},
		Freshness: models.FreshnessPolicy{MaxAgeDays: 7},
		Salary:    models.SalaryPolicy{Minimum: 150000},
		WorkArrangement: models.WorkArrangementPolicy{
			AllowRemote: true,
		},
		EmploymentType: models.EmploymentTypePolicy{Allowed: []string{"full-time"}},
		Technology:     models.TechnologyPolicy{Rejected: []string{"php"}},
	}

	// A posting with nothing but a URL gives no check any evidence
	result := testPrefilter(pol).Evaluate(&models.Posting{URL: "https://x.example.com/1"}, false)

	assert.True(t, result.Passed)
	assert.Empty(t, result.ChecksPerformed)
	assert.Len(t, result.ChecksSkipped, 6)
}

func TestPrefilterTitleChecks(t *testing.T) {
	pol := &models.PrefilterPolicy{
		Title: models.TitlePolicy{
			RequiredKeywords: []string{"engineer", "developer"},
			ExcludedKeywords: []string{"staffing"},
		},
	}
	f := testPrefilter(pol)

	rejected := f.Evaluate(&models.Posting{Title: "Senior Product Manager"}, false)
	assert.False(t, rejected.Passed)
	assert.Contains(t, rejected.Reason, "required keyword")

	excluded := f.Evaluate(&models.Posting{Title: "Staffing Engineer"}, false)
	assert.False(t, excluded.Passed)
	assert.Contains(t, excluded.Reason, "staffing")

	passed := f.Evaluate(&models.Posting{Title: "Backend Developer"}, false)
	assert.True(t, passed.Passed)
	assert.Contains(t, passed.ChecksPerformed, "title")
}

func TestPrefilterFreshness(t *testing.T) {
	pol := &models.PrefilterPolicy{Freshness: models.FreshnessPolicy{MaxAgeDays: 7}}
	f := testPrefilter(pol)

	old := time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339)
	result := f.Evaluate(&models.Posting{Title: "x", PostedDate: old}, false)
	assert.False(t, result.Passed)

	// Unparseable date is skipped, not failed
	result = f.Evaluate(&models.Posting{Title: "x", PostedDate: "sometime in spring"}, false)
	assert.True(t, result.Passed)
	assert.Contains(t, result.ChecksSkipped, "freshness")
}

func TestPrefilterArrangement(t *testing.T) {
	pol := &models.PrefilterPolicy{
		WorkArrangement: models.WorkArrangementPolicy{
			AllowRemote:  true,
			AllowHybrid:  false,
			AllowOnsite:  false,
			UserLocation: "Denver, CO",
		},
	}
	f := testPrefilter(pol)

	t.Run("remote source forces remote", func(t *testing.T) {
		result := f.Evaluate(&models.Posting{Title: "x", Location: "New York, NY"}, true)
		assert.True(t, result.Passed)
	})

	t.Run("hybrid disallowed", func(t *testing.T) {
		result := f.Evaluate(&models.Posting{Title: "x", Location: "Hybrid - New York"}, false)
		assert.False(t, result.Passed)
	})

	t.Run("onsite elsewhere rejected", func(t *testing.T) {
		pol := &models.PrefilterPolicy{
			WorkArrangement: models.WorkArrangementPolicy{
				AllowRemote:  true,
				AllowOnsite:  true,
				UserLocation: "Denver, CO",
			},
		}
		result := testPrefilter(pol).Evaluate(&models.Posting{
			Title:    "x",
			Location: "New York, NY",
			Metadata: map[string]string{"Location Type": "On-site"},
		}, false)
		assert.False(t, result.Passed)
	})

	t.Run("li tag in description", func(t *testing.T) {
		result := f.Evaluate(&models.Posting{
			Title:       "x",
			Description: "Great role #LI-Hybrid apply now",
		}, false)
		assert.False(t, result.Passed)
	})

	t.Run("unknown passes", func(t *testing.T) {
		result := f.Evaluate(&models.Posting{Title: "x"}, false)
		assert.True(t, result.Passed)
		assert.Contains(t, result.ChecksSkipped, "work_arrangement")
	})
}

func TestPrefilterSalaryFloor(t *testing.T) {
	pol := &models.PrefilterPolicy{Salary: models.SalaryPolicy{Minimum: 150000}}
	f := testPrefilter(pol)

	result := f.Evaluate(&models.Posting{Title: "x", Salary: "$100k - $120k"}, false)
	assert.False(t, result.Passed)

	result = f.Evaluate(&models.Posting{Title: "x", SalaryMax: 180000}, false)
	assert.True(t, result.Passed)
	assert.Contains(t, result.ChecksPerformed, "salary")
}

func TestPrefilterTechnology(t *testing.T) {
	pol := &models.PrefilterPolicy{Technology: models.TechnologyPolicy{Rejected: []string{"PHP"}}}
	f := testPrefilter(pol)

	result := f.Evaluate(&models.Posting{Title: "x", Tags: []string{"php", "mysql"}}, false)
	assert.False(t, result.Passed)

	result = f.Evaluate(&models.Posting{Title: "x", Tags: []string{"go"}}, false)
	assert.True(t, result.Passed)
}

func TestNormalizeEmploymentType(t *testing.T) {
	assert.Equal(t, "full-time", NormalizeEmploymentType("Full Time"))
	assert.Equal(t, "full-time", NormalizeEmploymentType("FULL_TIME"))
	assert.Equal(t, "part-time", NormalizeEmploymentType("part time"))
	assert.Equal(t, "contract", NormalizeEmploymentType("Freelance"))
	assert.Equal(t, "contract", NormalizeEmploymentType("Temporary"))
}

func TestParseSalaryString(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		found bool
	}{
		{"$150k", 150000, true},
		{"$100,000 - $150,000", 150000, true},
		{"100,000", 100000, true},
		{"120,000k", 0, false},
		{"competitive", 0, false},
		{"", 0, false},
		{"$35/hr", 0, false},
		{"up to 90k USD", 90000, true},
	}
	for _, tt := range tests {
		got, found := ParseSalaryString(tt.in)
		assert.Equal(t, tt.found, found, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLocationsMatch(t *testing.T) {
	assert.True(t, LocationsMatch("Denver, Colorado", "Denver, CO"))
	assert.True(t, LocationsMatch("denver", "Denver, CO"))
	assert.False(t, LocationsMatch("Portland, OR", "Portland, ME"))
	assert.False(t, LocationsMatch("", "Denver, CO"))
	assert.False(t, LocationsMatch("New York, NY", "Denver, CO"))
}
