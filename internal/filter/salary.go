package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/prospect/internal/models"
)

// salaryTokenRe captures money-looking tokens: $100k, 100,000, 150k,
// $120,500.50. Group 1 is the number, group 2 the k suffix.
var salaryTokenRe = regexp.MustCompile(`(?i)\$?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(k)?`)

// ExtractSalary resolves a posting's annual salary, preferring the
// structured fields over free-text parsing. Returns the highest figure
// found; ok is false when no usable number exists.
func ExtractSalary(p *models.Posting) (float64, bool) {
	if p.SalaryMax > 0 {
		return p.SalaryMax, true
	}
	if p.SalaryMin > 0 {
		return p.SalaryMin, true
	}
	return ParseSalaryString(p.Salary)
}

// ParseSalaryString parses free-text salary ("$100k", "100,000 - 150,000",
// "150k"). Comma-grouped numbers with a k suffix ("120,000k") are
// malformed and ignored. Figures under 1,000 after scaling are treated
// as non-annual (hourly rates) and skipped.
func ParseSalaryString(s string) (float64, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}

	var best float64
	found := false
	for _, m := range salaryTokenRe.FindAllStringSubmatch(s, -1) {
		numStr, hasK := m[1], m[2] != ""
		grouped := strings.Contains(numStr, ",")
		if grouped && hasK {
			continue
		}

		v, err := strconv.ParseFloat(strings.ReplaceAll(numStr, ",", ""), 64)
		if err != nil {
			continue
		}
		if hasK {
			v *= 1000
		}
		if v < 1000 {
			continue
		}
		if v > best {
			best = v
			found = true
		}
	}
	return best, found
}
