package scraper

import (
	"strings"
)

// blockedMarkers are body fragments that identify an anti-bot or
// challenge page masquerading as a 200 response
var blockedMarkers = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"challenge-platform",
	"cf-browser-verification",
	"just a moment",
	"robot",
	"access denied",
	"rate limit",
	"too many requests",
	"403 forbidden",
	"please verify",
}

// detectBlockedBody inspects a body that failed to parse as the expected
// format. Returns the matched marker when the body looks like an HTML
// challenge page, or "" when it is just an empty result.
func detectBlockedBody(body string) string {
	lower := strings.ToLower(body)

	looksHTML := strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<!doctype") ||
		strings.Contains(lower, "<body")
	if !looksHTML {
		return ""
	}

	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

// BodyLooksBlocked reports whether a fetched body is an anti-bot or
// challenge page, returning the disable reason when it is. Exposed for
// callers that categorize fetch outcomes outside a scrape run.
func BodyLooksBlocked(body string) (string, bool) {
	marker := detectBlockedBody(body)
	if marker == "" {
		return "", false
	}
	return blockedReasonForMarker(marker), true
}

// blockedReasonForMarker maps a detected marker to a human-readable
// disable reason
func blockedReasonForMarker(marker string) string {
	switch marker {
	case "just a moment", "cf-browser-verification", "challenge-platform":
		return "Cloudflare waiting page detected"
	case "captcha", "recaptcha", "hcaptcha":
		return "CAPTCHA challenge detected"
	case "rate limit", "too many requests":
		return "Rate limited by endpoint"
	case "access denied", "403 forbidden":
		return "Access denied by endpoint"
	default:
		return "Anti-bot response detected: " + marker
	}
}

// tagsForMarker maps a marker to source health tags
func tagsForMarker(marker string) []string {
	switch marker {
	case "rate limit", "too many requests":
		return []string{"rate_limited"}
	default:
		return []string{"anti_bot"}
	}
}
