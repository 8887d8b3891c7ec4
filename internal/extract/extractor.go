// internal/extract/extractor.go

// Package extract runs a template's extraction rules against a page model
// and produces scored extraction attempts. Extraction never raises on
// malformed content: unparseable items are skipped and a wholly missing
// container is the only extraction-level failure.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/template"
)

// Limits bounds field validity. Values outside the bounds reject the
// candidate, not the attempt.
type Limits struct {
	TitleMin  int `yaml:"title_min" json:"title_min"`
	TitleMax  int `yaml:"title_max" json:"title_max"`
	ArtistMin int `yaml:"artist_min" json:"artist_min"`
	ArtistMax int `yaml:"artist_max" json:"artist_max"`

	// NoisePatterns override the built-in page-chrome matchers.
	NoisePatterns []string `yaml:"noise_patterns,omitempty" json:"noise_patterns,omitempty"`

	// MinConfidence is the aggregate acceptance threshold.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		TitleMin:      2,
		TitleMax:      200,
		ArtistMin:     1,
		ArtistMax:     100,
		MinConfidence: 0.5,
	}
}

// Scorer assigns confidence to candidates and whole attempts. Scoring must
// be deterministic and pure so identical inputs reproduce identical scores.
type Scorer interface {
	ScoreCandidate(c *Candidate) float64
	ScoreAttempt(candidates []Candidate, expected template.CountRange) float64
}

// Extractor applies templates to page models.
type Extractor struct {
	limits Limits
	noise  *noiseMatcher
	scorer Scorer
}

// New creates an extractor. Zero-valued limits fields fall back to the
// defaults.
func New(limits Limits, scorer Scorer) *Extractor {
	defaults := DefaultLimits()
	if limits.TitleMin <= 0 {
		limits.TitleMin = defaults.TitleMin
	}
	if limits.TitleMax <= 0 {
		limits.TitleMax = defaults.TitleMax
	}
	if limits.ArtistMin <= 0 {
		limits.ArtistMin = defaults.ArtistMin
	}
	if limits.ArtistMax <= 0 {
		limits.ArtistMax = defaults.ArtistMax
	}
	if limits.MinConfidence <= 0 {
		limits.MinConfidence = defaults.MinConfidence
	}
	return &Extractor{
		limits: limits,
		noise:  newNoiseMatcher(limits.NoisePatterns),
		scorer: scorer,
	}
}

// Extract runs one (page, template) extraction and returns the scored
// attempt. The only errors are a nil template and a structurally invalid
// page model; template mismatch is reported through the attempt status.
func (e *Extractor) Extract(page *pagemodel.Page, tmpl *template.Template) (*Attempt, error) {
	if tmpl == nil {
		return nil, ErrNilTemplate
	}
	if err := page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}

	started := time.Now()
	attempt := &Attempt{
		URL:             page.URL,
		TemplateName:    tmpl.Name,
		TemplateVersion: tmpl.Version,
		StartedAt:       started,
	}

	container := page.Root.FindFirst(tmpl.Container.Matches)
	if container == nil {
		attempt.Status = StatusFailed
		attempt.Reason = ReasonNoContainer
		attempt.Duration = time.Since(started)
		return attempt, nil
	}

	items := enumerateItems(container, tmpl.ItemPattern)
	titleStrategies := compileRules(tmpl.TitleRules)
	artistStrategies := compileRules(tmpl.ArtistRules)

	seen := make(map[string]bool)
	for _, item := range items {
		c, ok := e.extractItem(item, titleStrategies, artistStrategies, tmpl.MetadataFields)
		if !ok {
			continue
		}
		key := strings.ToLower(c.Title) + "\x00" + strings.ToLower(c.Artist)
		if seen[key] {
			continue
		}
		seen[key] = true
		if c.Rank == 0 {
			c.Rank = len(attempt.Candidates) + 1
		}
		attempt.Candidates = append(attempt.Candidates, c)
	}

	for i := range attempt.Candidates {
		attempt.Candidates[i].Confidence = e.scorer.ScoreCandidate(&attempt.Candidates[i])
	}
	attempt.Confidence = e.scorer.ScoreAttempt(attempt.Candidates, tmpl.ExpectedCount)
	e.finalize(attempt, tmpl.ExpectedCount)
	attempt.Duration = time.Since(started)
	return attempt, nil
}

// enumerateItems collects item nodes under the container in document
// order; document order is significant because it encodes rank.
func enumerateItems(container *pagemodel.Node, pattern template.Selector) []*pagemodel.Node {
	var items []*pagemodel.Node
	container.Walk(func(n *pagemodel.Node) bool {
		if n != container && pattern.Matches(n) {
			items = append(items, n)
			return false // an item's subtree never nests further items
		}
		return true
	})
	return items
}

// extractItem applies the field strategies to one item node. Returning
// ok=false skips the item without affecting the rest of the attempt.
func (e *Extractor) extractItem(item *pagemodel.Node, titleStrategies, artistStrategies []fieldStrategy, metadataFields []string) (Candidate, bool) {
	raw := item.Text()

	title, titleStrategy := e.extractField(item, titleStrategies, e.limits.TitleMin, e.limits.TitleMax)
	if title == "" {
		return Candidate{}, false
	}
	artist, artistStrategy := e.extractField(item, artistStrategies, e.limits.ArtistMin, e.limits.ArtistMax)
	if artist == "" {
		return Candidate{}, false
	}
	if e.noise.IsNoise(title) || e.noise.IsNoise(artist) {
		return Candidate{}, false
	}

	return Candidate{
		Title:          title,
		Artist:         artist,
		Rank:           LeadingRank(raw),
		Metadata:       extractMetadata(item, metadataFields),
		TitleStrategy:  titleStrategy,
		ArtistStrategy: artistStrategy,
		RawText:        raw,
		Structure:      discovery.Classify(raw),
	}, true
}

// extractField tries the strategies in priority order; the first producing
// a non-empty, length-valid string wins.
func (e *Extractor) extractField(item *pagemodel.Node, strategies []fieldStrategy, minLen, maxLen int) (string, string) {
	for _, strategy := range strategies {
		value, ok := strategy.TryExtract(item)
		if !ok {
			continue
		}
		value = CleanText(value)
		n := len([]rune(value))
		if n < minLen || n > maxLen {
			continue
		}
		return value, strategy.Name()
	}
	return "", ""
}

// extractMetadata fills the template's metadata fields best-effort from
// attributes or labeled text parts. Missing fields are simply absent.
func extractMetadata(item *pagemodel.Node, fields []string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	var meta map[string]string
	parts := textParts(item)
	for _, field := range fields {
		value := item.Attr(field)
		if value == "" {
			value = item.Attr("data-" + field)
		}
		if value == "" {
			value = labeledValue(parts, field)
		}
		if value == "" {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[field] = value
	}
	return meta
}

// labeledValue scans text parts for a "Field: value" label.
func labeledValue(parts []string, field string) string {
	prefix := strings.ToLower(strings.ReplaceAll(field, "_", " ")) + ":"
	for _, part := range parts {
		lower := strings.ToLower(part)
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(part[len(prefix):])
		}
	}
	return ""
}

// finalize derives the attempt status per the acceptance rules: success
// needs an in-range count and confidence above threshold; a positive but
// out-of-range count or marginal confidence is partial; everything else
// fails.
func (e *Extractor) finalize(attempt *Attempt, expected template.CountRange) {
	n := len(attempt.Candidates)
	if n == 0 {
		attempt.Status = StatusFailed
		attempt.Reason = ReasonNoItems
		return
	}

	inRange := expected.Contains(n)
	conf := attempt.Confidence
	min := e.limits.MinConfidence

	switch {
	case inRange && conf >= min:
		attempt.Status = StatusSuccess
		attempt.Reason = ReasonNone
	case conf < min/2:
		attempt.Status = StatusFailed
		attempt.Reason = ReasonLowConfidence
	case !inRange:
		attempt.Status = StatusPartial
		attempt.Reason = ReasonCountMismatch
	default:
		attempt.Status = StatusPartial
		attempt.Reason = ReasonLowConfidence
	}
}

// MinConfidence exposes the configured acceptance threshold.
func (e *Extractor) MinConfidence() float64 {
	return e.limits.MinConfidence
}
