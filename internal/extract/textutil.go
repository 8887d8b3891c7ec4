// internal/extract/textutil.go
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// defaultNoisePatterns are text fragments that mark page chrome rather
// than song entries. Matching is case-insensitive on the whole field.
var defaultNoisePatterns = []string{
	`advertisement`,
	`sponsored`,
	`subscribe`,
	`sign up`,
	`newsletter`,
	`cookie`,
	`privacy policy`,
	`terms of service`,
	`read more`,
	`load more`,
	`share this`,
}

var markupResidue = regexp.MustCompile(`[<>{}]|&[a-z]+;`)

// CleanText normalizes extracted text: unicode NFC, collapsed whitespace,
// stripped leading list numbering and surrounding quotes.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = trimListNumber(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// trimListNumber removes a leading "12." or "12)" ranking prefix.
func trimListNumber(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	if s[i] == '.' || s[i] == ')' {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// LeadingRank parses a "12." or "12)" prefix into a rank, or 0 when absent.
func LeadingRank(s string) int {
	s = strings.TrimSpace(s)
	rank := 0
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		rank = rank*10 + int(s[i]-'0')
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return 0
	}
	return rank
}

// noiseMatcher compiles the configured noise patterns into one matcher.
type noiseMatcher struct {
	res []*regexp.Regexp
}

func newNoiseMatcher(patterns []string) *noiseMatcher {
	if len(patterns) == 0 {
		patterns = defaultNoisePatterns
	}
	m := &noiseMatcher{}
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue // a bad noise pattern never blocks extraction
		}
		m.res = append(m.res, re)
	}
	return m
}

func (m *noiseMatcher) IsNoise(s string) bool {
	for _, re := range m.res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// HasMarkupResidue reports whether the text still carries HTML fragments.
func HasMarkupResidue(s string) bool {
	return markupResidue.MatchString(s)
}

// LetterRatio returns the proportion of letters and spaces in the text,
// used as a plausibility signal for song titles and artist names.
func LetterRatio(s string) float64 {
	if s == "" {
		return 0
	}
	letters := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) || unicode.IsSpace(r) || r == '\'' || r == '-' {
			letters++
		}
	}
	return float64(letters) / float64(total)
}
