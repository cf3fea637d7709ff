package common

import (
	"regexp"
	"strings"
)

// legalSuffixes are trailing company-name tokens that carry no identity
var legalSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "co": true, "corp": true,
	"gmbh": true, "ag": true, "pty": true, "holdings": true,
	"group": true, "limited": true,
}

var domainSuffixRe = regexp.MustCompile(`\.(io|com|ai|app|dev|co|net|org)$`)
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeCompanyName reduces a company name to its identity core:
// lowercase, trailing legal and domain suffixes removed, punctuation
// collapsed to single spaces. "Acme Inc." and "ACME" both normalize
// to "acme".
func NormalizeCompanyName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = domainSuffixRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// Strip trailing legal suffix tokens; "pty ltd" falls out of the
	// loop stripping "ltd" then "pty".
	for {
		idx := strings.LastIndex(s, " ")
		if idx < 0 {
			break
		}
		last := s[idx+1:]
		if !legalSuffixes[last] {
			break
		}
		s = strings.TrimSpace(s[:idx])
	}

	return s
}

// CompanyNamesMatch applies the fuzzy company-match rule: exact match
// after normalization, or word-boundary containment in either direction
// when the shorter side has at least 3 characters (so "AI" can never
// claim "RAIL").
func CompanyNamesMatch(a, b string) bool {
	na := NormalizeCompanyName(a)
	nb := NormalizeCompanyName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 3 {
		return false
	}

	return containsWord(longer, shorter)
}

// containsWord reports whether needle appears in haystack on word
// boundaries
func containsWord(haystack, needle string) bool {
	words := strings.Fields(haystack)
	needleWords := strings.Fields(needle)
	if len(needleWords) == 0 {
		return false
	}

	for i := 0; i+len(needleWords) <= len(words); i++ {
		match := true
		for j, nw := range needleWords {
			if words[i+j] != nw {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
