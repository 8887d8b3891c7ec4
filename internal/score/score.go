// internal/score/score.go

// Package score assigns confidence values to extracted candidates and to
// whole extraction attempts. Scoring is deterministic and pure: the same
// candidate, weights and historical beliefs always produce the same score,
// which keeps extraction runs reproducible in tests.
package score

import (
	"math"

	"github.com/valeran/chartex/internal/extract"
	"github.com/valeran/chartex/internal/template"
)

// PatternIndex supplies historical confidence for candidates whose raw
// text matches a learned pattern signature. The optimizer implements it;
// a nil index means no prior evidence.
type PatternIndex interface {
	HistoricalConfidence(rawText string) (float64, bool)
}

// Weights balances the three per-candidate signals. They are expected to
// sum to 1; NewScorer normalizes them if they do not.
type Weights struct {
	Strategy    float64 `yaml:"strategy" json:"strategy"`
	TextQuality float64 `yaml:"text_quality" json:"text_quality"`
	History     float64 `yaml:"history" json:"history"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Strategy: 0.4, TextQuality: 0.4, History: 0.2}
}

// strategyTrust ranks extraction strategies by reliability: a dedicated
// attribute is near-certain, a heading very likely, a regular-expression
// capture reasonable, and positional sibling text a last resort.
var strategyTrust = map[string]float64{
	extract.StrategyAttr:    1.0,
	extract.StrategyHeading: 0.9,
	extract.StrategyRegex:   0.75,
	extract.StrategySibling: 0.6,
}

// neutralHistory is used when no learned pattern matches the candidate.
const neutralHistory = 0.5

// countPenaltyScale controls how hard an out-of-range candidate count
// drags the aggregate down, per unit of relative distance from the
// nearest bound.
const countPenaltyScale = 0.5

// Scorer implements extract.Scorer.
type Scorer struct {
	weights  Weights
	patterns PatternIndex
}

// NewScorer creates a scorer. patterns may be nil.
func NewScorer(weights Weights, patterns PatternIndex) *Scorer {
	total := weights.Strategy + weights.TextQuality + weights.History
	if total <= 0 {
		weights = DefaultWeights()
	} else if math.Abs(total-1) > 1e-9 {
		weights.Strategy /= total
		weights.TextQuality /= total
		weights.History /= total
	}
	return &Scorer{weights: weights, patterns: patterns}
}

// ScoreCandidate combines strategy trust, text quality and historical
// pattern confidence into one [0,1] score.
func (s *Scorer) ScoreCandidate(c *extract.Candidate) float64 {
	strategy := (trustFor(c.TitleStrategy) + trustFor(c.ArtistStrategy)) / 2
	quality := (textQuality(c.Title) + textQuality(c.Artist)) / 2

	history := neutralHistory
	if s.patterns != nil {
		if conf, ok := s.patterns.HistoricalConfidence(c.RawText); ok {
			history = conf
		}
	}

	score := s.weights.Strategy*strategy + s.weights.TextQuality*quality + s.weights.History*history
	return clamp01(score)
}

// ScoreAttempt aggregates candidate scores into an attempt confidence: the
// mean of the candidate scores, penalized in proportion to how far the
// candidate count falls outside the expected range.
func (s *Scorer) ScoreAttempt(candidates []extract.Candidate, expected template.CountRange) float64 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for i := range candidates {
		sum += candidates[i].Confidence
	}
	mean := sum / float64(len(candidates))
	return clamp01(mean * countFactor(len(candidates), expected))
}

// countFactor is 1 inside the range and decays with the relative distance
// from the nearest bound outside it.
func countFactor(n int, expected template.CountRange) float64 {
	if expected.Contains(n) || expected.Max == 0 {
		return 1
	}
	var rel float64
	switch {
	case n < expected.Min && expected.Min > 0:
		rel = float64(expected.Min-n) / float64(expected.Min)
	case n > expected.Max:
		rel = float64(n-expected.Max) / float64(expected.Max)
	}
	factor := 1 - countPenaltyScale*rel
	if factor < 0 {
		return 0
	}
	return factor
}

func trustFor(strategy string) float64 {
	if t, ok := strategyTrust[strategy]; ok {
		return t
	}
	return 0.2 // field extracted by an unknown path; barely trusted
}

// textQuality scores plausibility of one field value: no residual markup,
// no noise match handled upstream, and a mostly-alphabetic character set.
func textQuality(s string) float64 {
	if s == "" {
		return 0
	}
	quality := 1.0
	if extract.HasMarkupResidue(s) {
		quality -= 0.4
	}
	if ratio := extract.LetterRatio(s); ratio < 0.5 {
		quality -= 0.3
	} else if ratio < 0.7 {
		quality -= 0.1
	}
	return clamp01(quality)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
