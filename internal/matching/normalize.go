package matching

import (
	"regexp"
	"strings"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nonLetters    = regexp.MustCompile(`[^a-z]+`)
	nonWord       = regexp.MustCompile(`[^a-z0-9]+`)
)

// districtNoise are words that carry no identity in a district name ("Springfield Unified
// School District No. 4" and "Springfield USD" both reduce to "springfield").
var districtNoise = map[string]struct{}{
	"school": {}, "schools": {}, "district": {}, "districts": {}, "public": {}, "unified": {},
	"independent": {}, "community": {}, "consolidated": {}, "central": {}, "unit": {},
	"city": {}, "county": {}, "area": {}, "regional": {}, "township": {}, "borough": {},
	"union": {}, "reorganized": {}, "municipal": {}, "parish": {}, "board": {}, "system": {},
	"corporation": {}, "elementary": {}, "high": {}, "exempted": {}, "village": {},
	"supervisory": {}, "charter": {}, "academy": {}, "no": {}, "re": {}, "the": {}, "of": {},
	"isd": {}, "usd": {}, "cusd": {}, "sd": {}, "csd": {}, "ccsd": {},
}

// districtWords reduces a district name to its identifying words.
func districtWords(name string) []string {
	s := strings.ToLower(name)
	s = parenthetical.ReplaceAllString(s, " ")
	s = nonLetters.ReplaceAllString(s, " ")

	out := make([]string, 0, 4)
	for _, word := range strings.Fields(s) {
		if _, noise := districtNoise[word]; noise {
			continue
		}
		out = append(out, word)
	}
	return out
}

// textWords splits free text (title, location) into lower-case letter-only words.
func textWords(text string) []string {
	s := nonLetters.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(s)
}

// phrase normalises text for keyword matching: lower-case alphanumeric tokens joined by
// single spaces and padded so whole-word containment is a substring check.
func phrase(text string) string {
	s := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

// emailDomain returns the lower-cased domain part of an address, or "".
func emailDomain(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// sameOrSubdomain reports whether domain equals parent or is one of its subdomains.
func sameOrSubdomain(domain, parent string) bool {
	if domain == "" || parent == "" {
		return false
	}
	return domain == parent || strings.HasSuffix(domain, "."+parent)
}
