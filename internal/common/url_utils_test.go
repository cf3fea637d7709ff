package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLFingerprintCanonicalization(t *testing.T) {
	base := URLFingerprint("https://boards.greenhouse.io/acme/jobs/42")

	same := []string{
		"http://boards.greenhouse.io/acme/jobs/42",
		"https://www.boards.greenhouse.io/acme/jobs/42",
		"https://BOARDS.greenhouse.io/acme/jobs/42/",
		"https://boards.greenhouse.io/acme/jobs/42?utm_source=newsletter&utm_campaign=feb",
		"https://boards.greenhouse.io/acme/jobs/42?gh_src=abc123&ref=hn",
	}
	for _, u := range same {
		assert.Equal(t, base, URLFingerprint(u), u)
	}

	different := []string{
		"https://boards.greenhouse.io/acme/jobs/43",
		"https://boards.greenhouse.io/acme/jobs/42?page=2",
		"https://jobs.lever.co/acme/jobs/42",
	}
	for _, u := range different {
		assert.NotEqual(t, base, URLFingerprint(u), u)
	}

	assert.Len(t, base, 32)
	assert.NotEmpty(t, URLFingerprint("::not a url::"), "unparseable input still fingerprints")
}

func TestExtractHost(t *testing.T) {
	assert.Equal(t, "remoteok.com", ExtractHost("https://www.remoteok.com/remote-dev-jobs"))
	assert.Equal(t, "boards.greenhouse.io", ExtractHost("  https://boards.greenhouse.io/acme "))
	assert.Empty(t, ExtractHost("::bad::"))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://a.example/jobs", JoinURL("https://a.example/", "jobs"))
	assert.Equal(t, "https://a.example/jobs", JoinURL("https://a.example", "/jobs"))
	assert.Equal(t, "https://b.example/x", JoinURL("https://a.example", "https://b.example/x"))
	assert.Equal(t, "https://a.example", JoinURL("https://a.example", ""))
}

func TestHostMatchesDomain(t *testing.T) {
	assert.True(t, HostMatchesDomain("jobs.example.com", "example.com"))
	assert.True(t, HostMatchesDomain("www.example.com", "example.com"))
	assert.False(t, HostMatchesDomain("notexample.com", "example.com"))
}

func TestIsSearchEngineURL(t *testing.T) {
	assert.True(t, IsSearchEngineURL("https://www.google.com/search?q=acme"))
	assert.False(t, IsSearchEngineURL("https://acme.example.com"))
	assert.False(t, IsSearchEngineURL(""))
}
