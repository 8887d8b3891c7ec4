// internal/discovery/pattern.go
package discovery

import (
	"time"

	"github.com/google/uuid"
)

// PatternState tracks the lifecycle of a learned pattern.
type PatternState string

const (
	// PatternCandidate patterns were proposed by discovery but are not yet
	// trusted for production extraction.
	PatternCandidate PatternState = "candidate"

	// PatternActive patterns crossed the promotion threshold and may be
	// synthesized into production templates.
	PatternActive PatternState = "active"

	// PatternRetired patterns fell below the confidence floor. They are
	// excluded from selection but kept for audit, never deleted.
	PatternRetired PatternState = "retired"
)

// Pattern is a learned, probabilistically trusted extraction rule, distinct
// from a curated Template. Its confidence is a Beta-distributed belief:
// Alpha counts confirming observations, Beta disconfirming ones, and the
// point estimate is the distribution mean. Only the optimizer mutates the
// belief; discovery only creates patterns.
type Pattern struct {
	ID          string       `json:"id"`
	Signature   string       `json:"signature"`
	Structure   string       `json:"structure"`
	Pattern     string       `json:"pattern"`
	TitleGroup  int          `json:"title_group"`
	ArtistGroup int          `json:"artist_group"`
	State       PatternState `json:"state"`
	Promoted    bool         `json:"promoted,omitempty"`
	Domain      string       `json:"domain"`
	Alpha       float64      `json:"alpha"`
	Beta        float64      `json:"beta"`
	Confirms    int          `json:"confirms"`
	Disconfirms int          `json:"disconfirms"`
	// Recent holds the rolling outcome window that drives boost and
	// penalty decisions, newest last.
	Recent    []bool    `json:"recent,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
}

// NewPattern creates a candidate pattern with a neutral prior. The prior is
// expressed as a symmetric Beta(2,2) so the initial confidence is 0.5 and
// early observations move the estimate without saturating it.
func NewPattern(sig Signature, structure, domain string) *Pattern {
	return &Pattern{
		ID:          uuid.NewString(),
		Signature:   sig.Name,
		Structure:   structure,
		Pattern:     sig.Pattern,
		TitleGroup:  sig.TitleGroup,
		ArtistGroup: sig.ArtistGroup,
		State:       PatternCandidate,
		Domain:      domain,
		Alpha:       2,
		Beta:        2,
		FirstSeen:   time.Now().UTC(),
	}
}

// Confidence is the mean of the Beta belief, always within [0,1].
func (p *Pattern) Confidence() float64 {
	total := p.Alpha + p.Beta
	if total <= 0 {
		return 0.5
	}
	return p.Alpha / total
}

// Observations is the number of recorded trials beyond the prior.
func (p *Pattern) Observations() int {
	return p.Confirms + p.Disconfirms
}

// Selectable reports whether the pattern may participate in ranking.
func (p *Pattern) Selectable() bool {
	return p.State != PatternRetired
}
