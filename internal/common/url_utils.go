package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// searchEngineHosts are hosts that must never be accepted as a company
// website; a search-result URL leaking into a company record is a data bug.
var searchEngineHosts = []string{
	"google.com", "bing.com", "duckduckgo.com", "search.yahoo.com",
	"baidu.com", "yandex.com",
}

// ExtractHost returns the lowercase hostname of a URL without the www prefix
func ExtractHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// JoinURL joins a base URL and a possibly relative path with exactly one
// slash between them. Absolute inputs are returned unchanged.
func JoinURL(base, ref string) string {
	if ref == "" {
		return base
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return base + ref
}

// IsSearchEngineURL reports whether the URL points at a search engine
func IsSearchEngineURL(rawURL string) bool {
	host := ExtractHost(rawURL)
	if host == "" {
		return false
	}
	for _, engine := range searchEngineHosts {
		if HostMatchesDomain(host, engine) {
			return true
		}
	}
	return false
}

// HostMatchesDomain reports whether host equals domain or is one of its
// sub-domains ("jobs.example.com" matches "example.com", "notexample.com"
// does not).
func HostMatchesDomain(host, domain string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// URLFingerprint computes a stable fingerprint for duplicate detection.
// Scheme, trailing slashes and tracking query params do not change identity.
func URLFingerprint(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		sum := sha256.Sum256([]byte(rawURL))
		return hex.EncodeToString(sum[:16])
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	path := strings.TrimRight(u.EscapedPath(), "/")

	q := u.Query()
	for _, param := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref", "gh_src"} {
		q.Del(param)
	}
	canonical := host + path
	if encoded := q.Encode(); encoded != "" {
		canonical += "?" + encoded
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}
