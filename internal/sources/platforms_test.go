package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	t.Run("greenhouse", func(t *testing.T) {
		platform, cfg, ok := DetectPlatform("https://boards.greenhouse.io/acmecorp")
		require.True(t, ok)
		assert.Equal(t, "greenhouse", platform)
		assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acmecorp/jobs?content=true", cfg.URL)
		assert.Equal(t, "jobs", cfg.ResponsePath)
		assert.Equal(t, "acmecorp", cfg.BoardToken)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("lever", func(t *testing.T) {
		platform, cfg, ok := DetectPlatform("https://jobs.lever.co/acme")
		require.True(t, ok)
		assert.Equal(t, "lever", platform)
		assert.Contains(t, cfg.URL, "api.lever.co/v0/postings/acme")
	})

	t.Run("ashby", func(t *testing.T) {
		platform, _, ok := DetectPlatform("https://jobs.ashbyhq.com/acme")
		require.True(t, ok)
		assert.Equal(t, "ashby", platform)
	})

	t.Run("workday", func(t *testing.T) {
		platform, cfg, ok := DetectPlatform("https://acme.wd5.myworkdayjobs.com/External")
		require.True(t, ok)
		assert.Equal(t, "workday", platform)
		assert.Equal(t, "https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External/jobs", cfg.URL)
		assert.Equal(t, "POST", cfg.Method)
		assert.Equal(t, "jobPostings", cfg.ResponsePath)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("workday with locale segment", func(t *testing.T) {
		_, cfg, ok := DetectPlatform("https://acme.wd1.myworkdayjobs.com/en-US/Careers")
		require.True(t, ok)
		assert.Contains(t, cfg.URL, "/wday/cxs/acme/Careers/jobs")
	})

	t.Run("no match", func(t *testing.T) {
		_, _, ok := DetectPlatform("https://acme.com/careers")
		assert.False(t, ok)
	})
}

func TestMatchSingleListing(t *testing.T) {
	name, ok := MatchSingleListing("https://remoteok.com/remote-jobs/remote-backend-engineer-acme-123456")
	assert.True(t, ok)
	assert.Equal(t, "remoteok", name)

	_, ok = MatchSingleListing("https://remoteok.com/remote-backend-jobs")
	assert.False(t, ok)

	name, ok = MatchSingleListing("https://jobicy.com/jobs/98765")
	assert.True(t, ok)
	assert.Equal(t, "jobicy", name)
}

func TestIsATSProviderSite(t *testing.T) {
	assert.True(t, IsATSProviderSite("https://www.greenhouse.com/careers"))
	assert.True(t, IsATSProviderSite("https://greenhouse.io/about"))

	// Customer boards are not vendor sites
	assert.False(t, IsATSProviderSite("https://boards.greenhouse.io/acme"))
	assert.False(t, IsATSProviderSite("https://acme.recruitee.com"))
}

func TestGuessBoardSlug(t *testing.T) {
	slug, ok := GuessBoardSlug("https://careers.acme.com/openings")
	assert.True(t, ok)
	assert.Equal(t, "acme", slug)

	slug, ok = GuessBoardSlug("https://jobs.widget-co.io")
	assert.True(t, ok)
	assert.Equal(t, "widget-co", slug)

	_, ok = GuessBoardSlug("https://acme.com/jobs")
	assert.False(t, ok)
}

func TestLeverBoardFromPosting(t *testing.T) {
	slug, ok := LeverBoardFromPosting("https://jobs.lever.co/acme/4a1b2c3d-1111-2222-3333-444455556666")
	assert.True(t, ok)
	assert.Equal(t, "acme", slug)

	_, ok = LeverBoardFromPosting("https://jobs.lever.co/acme")
	assert.False(t, ok)
}
