// internal/dispatch/urlinfo.go
package dispatch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/valeran/chartex/internal/template"
)

// ContentType classifies what kind of song list a URL most likely points
// at. The classification only tunes expectations; it never gates
// extraction.
type ContentType string

const (
	ContentChart   ContentType = "chart"
	ContentList    ContentType = "list"
	ContentReview  ContentType = "review"
	ContentArticle ContentType = "article"
)

// URLInfo carries everything the dispatcher derives from the URL alone.
type URLInfo struct {
	Domain      string
	Path        string
	ContentType ContentType

	// ExpectedCount is the estimated list size. CountKnown separates a
	// real signal (chart name, explicit number) from the fallback guess;
	// only known counts tighten a template's acceptance range.
	ExpectedCount int
	CountKnown    bool
}

var trailingNumber = regexp.MustCompile(`(?:^|[-_/])(\d{1,4})(?:$|[-_/.])`)

// AnalyzeURL derives the domain, content type and an expected item count
// from URL tokens. Numbered chart names carry their own count; otherwise
// the content type supplies a rough default.
func AnalyzeURL(rawURL string) URLInfo {
	info := URLInfo{ContentType: ContentArticle, ExpectedCount: 20}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return info
	}
	info.Domain = template.NormalizeDomain(u.Host)
	info.Path = u.Path

	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "hot-100"):
		info.ContentType = ContentChart
		info.ExpectedCount = 100
		info.CountKnown = true
	case strings.Contains(path, "billboard-200"):
		info.ContentType = ContentChart
		info.ExpectedCount = 200
		info.CountKnown = true
	case strings.Contains(path, "chart"):
		info.ContentType = ContentChart
		info.ExpectedCount = 50
	case strings.Contains(path, "best") || strings.Contains(path, "top"):
		info.ContentType = ContentList
		info.ExpectedCount = 50
	case strings.Contains(path, "review"):
		info.ContentType = ContentReview
		info.ExpectedCount = 12
	case strings.Contains(path, "list"):
		info.ContentType = ContentList
		info.ExpectedCount = 25
	}

	// An explicit number in the path ("best-songs-of-2024-top-75") beats
	// the content-type default.
	if n := pathNumber(path); n > 0 {
		info.ExpectedCount = n
		info.CountKnown = true
	}
	return info
}

// pathNumber finds a plausible list size embedded in the path. Years and
// tiny numbers are ignored.
func pathNumber(path string) int {
	for _, m := range trailingNumber.FindAllStringSubmatch(path, -1) {
		n := 0
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		if n >= 5 && n <= 500 && !(n >= 1900 && n <= 2100) {
			return n
		}
	}
	return 0
}

// ExpectedRange widens a point estimate into an acceptance range. Lists
// routinely ship a few items short or long of their advertised size.
func ExpectedRange(count int) template.CountRange {
	if count <= 0 {
		return template.CountRange{Min: 1, Max: 500}
	}
	min := count - count/4
	if min < 1 {
		min = 1
	}
	return template.CountRange{Min: min, Max: count + count/4}
}
