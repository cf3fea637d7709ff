package filter

import (
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/prospect/internal/models"
)

// Work arrangements inferred from posting evidence
const (
	ArrangementRemote  = "remote"
	ArrangementHybrid  = "hybrid"
	ArrangementOnsite  = "onsite"
	ArrangementUnknown = "unknown"
)

var defaultRemoteKeywords = []string{"remote", "anywhere", "worldwide", "distributed", "work from home"}

var liTagRe = regexp.MustCompile(`(?i)#LI-(remote|hybrid|onsite)`)

var onsiteTokens = []string{"on-site", "onsite", "in office", "in-office", "office based", "office-based"}

// InferArrangement derives the work arrangement from the posting.
// Evidence is checked strongest-first; absence of all evidence yields
// unknown, never onsite.
func InferArrangement(p *models.Posting, isRemoteSource bool, remoteKeywords []string) string {
	if isRemoteSource || p.IsRemote {
		return ArrangementRemote
	}

	if len(remoteKeywords) == 0 {
		remoteKeywords = defaultRemoteKeywords
	}

	fields := []string{
		p.Metadata["Location Type"],
		p.Location,
	}
	fields = append(fields, p.Offices...)

	for _, field := range fields {
		lower := strings.ToLower(field)
		if lower == "" {
			continue
		}
		for _, kw := range remoteKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return ArrangementRemote
			}
		}
		if strings.Contains(lower, "hybrid") {
			return ArrangementHybrid
		}
		for _, tok := range onsiteTokens {
			if strings.Contains(lower, tok) {
				return ArrangementOnsite
			}
		}
	}

	if m := liTagRe.FindStringSubmatch(p.Description); m != nil {
		return strings.ToLower(m[1])
	}

	return ArrangementUnknown
}

// usStateCodes normalizes full state names so "California" and "CA"
// compare equal
var usStateCodes = map[string]string{
	"alabama": "al", "alaska": "ak", "arizona": "az", "arkansas": "ar",
	"california": "ca", "colorado": "co", "connecticut": "ct",
	"delaware": "de", "florida": "fl", "georgia": "ga", "hawaii": "hi",
	"idaho": "id", "illinois": "il", "indiana": "in", "iowa": "ia",
	"kansas": "ks", "kentucky": "ky", "louisiana": "la", "maine": "me",
	"maryland": "md", "massachusetts": "ma", "michigan": "mi",
	"minnesota": "mn", "mississippi": "ms", "missouri": "mo",
	"montana": "mt", "nebraska": "ne", "nevada": "nv",
	"new hampshire": "nh", "new jersey": "nj", "new mexico": "nm",
	"new york": "ny", "north carolina": "nc", "north dakota": "nd",
	"ohio": "oh", "oklahoma": "ok", "oregon": "or", "pennsylvania": "pa",
	"rhode island": "ri", "south carolina": "sc", "south dakota": "sd",
	"tennessee": "tn", "texas": "tx", "utah": "ut", "vermont": "vt",
	"virginia": "va", "washington": "wa", "west virginia": "wv",
	"wisconsin": "wi", "wyoming": "wy",
}

// LocationsMatch applies loose city+state matching: the city segments
// must match, and when both sides carry a state it must match after
// state-code normalization. Empty input never matches.
func LocationsMatch(postingLocation, userLocation string) bool {
	pCity, pState := splitCityState(postingLocation)
	uCity, uState := splitCityState(userLocation)
	if pCity == "" || uCity == "" {
		return false
	}
	if pCity != uCity {
		return false
	}
	if pState != "" && uState != "" && pState != uState {
		return false
	}
	return true
}

func splitCityState(location string) (city, state string) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(location)), ",")
	if len(parts) == 0 {
		return "", ""
	}
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		state = strings.TrimSpace(parts[1])
		if code, ok := usStateCodes[state]; ok {
			state = code
		}
	}
	return city, state
}

// cityZones maps major cities to IANA zones for the timezone guard.
// Postings from cities outside this table simply skip the check.
var cityZones = map[string]string{
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"los angeles":   "America/Los_Angeles",
	"portland":      "America/Los_Angeles",
	"denver":        "America/Denver",
	"austin":        "America/Chicago",
	"chicago":       "America/Chicago",
	"dallas":        "America/Chicago",
	"houston":       "America/Chicago",
	"new york":      "America/New_York",
	"boston":        "America/New_York",
	"atlanta":       "America/New_York",
	"miami":         "America/New_York",
	"toronto":       "America/Toronto",
	"vancouver":     "America/Vancouver",
	"london":        "Europe/London",
	"dublin":        "Europe/Dublin",
	"paris":         "Europe/Paris",
	"berlin":        "Europe/Berlin",
	"amsterdam":     "Europe/Amsterdam",
	"stockholm":     "Europe/Stockholm",
	"madrid":        "Europe/Madrid",
	"lisbon":        "Europe/Lisbon",
	"warsaw":        "Europe/Warsaw",
	"kyiv":          "Europe/Kyiv",
	"tel aviv":      "Asia/Jerusalem",
	"dubai":         "Asia/Dubai",
	"bangalore":     "Asia/Kolkata",
	"bengaluru":     "Asia/Kolkata",
	"singapore":     "Asia/Singapore",
	"tokyo":         "Asia/Tokyo",
	"sydney":        "Australia/Sydney",
	"melbourne":     "Australia/Melbourne",
	"brisbane":      "Australia/Brisbane",
	"perth":         "Australia/Perth",
	"auckland":      "Pacific/Auckland",
	"sao paulo":     "America/Sao_Paulo",
	"buenos aires":  "America/Argentina/Buenos_Aires",
	"mexico city":   "America/Mexico_City",
}

// TimezoneDiffHours computes the absolute offset difference between the
// posting's city and the user's zone. The second return is false when
// either side cannot be resolved.
func TimezoneDiffHours(postingLocation, userZone string) (float64, bool) {
	if userZone == "" {
		return 0, false
	}
	city, _ := splitCityState(postingLocation)
	zoneName, ok := cityZones[city]
	if !ok {
		return 0, false
	}

	cityLoc, err := time.LoadLocation(zoneName)
	if err != nil {
		return 0, false
	}
	userLoc, err := time.LoadLocation(userZone)
	if err != nil {
		return 0, false
	}

	now := time.Now()
	_, cityOffset := now.In(cityLoc).Zone()
	_, userOffset := now.In(userLoc).Zone()

	diff := float64(cityOffset-userOffset) / 3600.0
	if diff < 0 {
		diff = -diff
	}
	return diff, true
}
