// internal/discovery/discovery.go

// Package discovery inspects successful extractions for recurring
// title/artist shapes that no existing pattern accounts for, and proposes
// them as candidate patterns for the learning loop.
package discovery

import (
	"sort"
	"strings"
	"sync"
)

// Observation is one extracted item handed to the discovery engine. The
// dispatcher converts candidate records into observations so this package
// stays independent of the extractor's types.
type Observation struct {
	Domain    string
	RawText   string
	Title     string
	Artist    string
	Structure string
}

// Structure classifiers for observations.
const (
	StructureNumberedList   = "numbered_list"
	StructureQuotedTitle    = "quoted_title"
	StructureHeadingSibling = "heading_sibling"
	StructurePlain          = "plain"
)

// Engine mines observations for recurring shapes. A shape becomes a
// pattern proposal once it has been seen MinObservations times.
type Engine struct {
	mu              sync.Mutex
	signatures      []Signature
	minObservations int
	seen            map[string]*shapeTally // signature name -> tally
}

type shapeTally struct {
	sig       Signature
	structure string
	domain    string
	count     int
	proposed  bool
}

// NewEngine creates a discovery engine with the built-in signature corpus.
// minObservations below 1 falls back to the default of 5.
func NewEngine(minObservations int) *Engine {
	if minObservations < 1 {
		minObservations = 5
	}
	return &Engine{
		signatures:      DefaultSignatures(),
		minObservations: minObservations,
		seen:            make(map[string]*shapeTally),
	}
}

// AddSignature appends a separator signature to the corpus. Invalid
// patterns are rejected silently; discovery is best-effort by design.
func (e *Engine) AddSignature(sig Signature) {
	if err := sig.Compile(); err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signatures = append(e.signatures, sig)
}

// Signatures returns a copy of the current signature corpus in priority
// order.
func (e *Engine) Signatures() []Signature {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Signature, len(e.signatures))
	copy(out, e.signatures)
	return out
}

// Classify determines the structural shape of a raw item line.
func Classify(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch {
	case leadingNumber(trimmed):
		return StructureNumberedList
	case strings.HasPrefix(trimmed, `"`):
		return StructureQuotedTitle
	default:
		return StructurePlain
	}
}

func leadingNumber(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')')
}

// Discover feeds a batch of observations to the engine and returns any new
// pattern proposals that crossed the observation threshold. Shapes already
// attributable to a known signature (per the known set) are skipped; tallies
// accumulate across calls so shapes recurring over many attempts still
// surface.
func (e *Engine) Discover(observations []Observation, known map[string]bool) []*Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, obs := range observations {
		text := strings.TrimSpace(obs.RawText)
		if text == "" {
			continue
		}
		for _, sig := range e.signatures {
			if known[sig.Name] {
				continue
			}
			if _, _, ok := sig.Match(text); !ok {
				continue
			}
			tally := e.seen[sig.Name]
			if tally == nil {
				tally = &shapeTally{sig: sig, structure: obs.Structure, domain: obs.Domain}
				e.seen[sig.Name] = tally
			}
			tally.count++
			break // first matching signature wins; they are ordered by priority
		}
	}

	var proposals []*Pattern
	for _, tally := range e.seen {
		if tally.proposed || tally.count < e.minObservations {
			continue
		}
		tally.proposed = true
		proposals = append(proposals, NewPattern(tally.sig, tally.structure, tally.domain))
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].Signature < proposals[j].Signature })
	return proposals
}
