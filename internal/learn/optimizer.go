// internal/learn/optimizer.go

// Package learn tracks extraction outcomes and adjusts pattern trust over
// time. Every attempt is treated as a Bernoulli trial against the
// confidence threshold; each pattern carries a Beta-distributed belief
// whose mean is its point-estimate confidence. Patterns are boosted on
// sustained success, penalized on sustained failure and retired, never
// deleted, when confidence stays below the floor.
package learn

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/store"
)

// Thresholds configures the optimizer's decision points. All values are
// overridable through configuration.
type Thresholds struct {
	Boost         float64 `yaml:"boost" json:"boost"`
	Penalize      float64 `yaml:"penalize" json:"penalize"`
	RetireFloor   float64 `yaml:"retire_floor" json:"retire_floor"`
	RetireMinObs  int     `yaml:"retire_min_obs" json:"retire_min_obs"`
	Promote       float64 `yaml:"promote" json:"promote"`
	PromoteMinObs int     `yaml:"promote_min_obs" json:"promote_min_obs"`
	Window        int     `yaml:"window" json:"window"`
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Boost:         0.9,
		Penalize:      0.3,
		RetireFloor:   0.2,
		RetireMinObs:  10,
		Promote:       0.75,
		PromoteMinObs: 5,
		Window:        10,
	}
}

// boostBonus and penaltyBonus are the extra pseudo-observations applied
// when a rolling window crosses the boost or penalize threshold. Bounded
// additions keep the belief inside [0,1] by construction.
const (
	boostBonus   = 1.0
	penaltyBonus = 1.0
)

// Optimizer owns all learned mutable state: pattern beliefs and
// performance records. Mutations happen under per-key locks; reads of
// unrelated keys never block.
type Optimizer struct {
	thresholds Thresholds

	mu       sync.RWMutex
	patterns map[string]*discovery.Pattern
	records  map[string]*PerformanceRecord
	regexes  map[string]*regexp.Regexp // pattern ID -> compiled signature

	recordLocks  *keyedMutex
	patternLocks *keyedMutex

	persist  store.Store
	degraded bool
	degOnce  sync.Once
}

// NewOptimizer creates an optimizer. persist may be nil for stateless
// operation.
func NewOptimizer(thresholds Thresholds, persist store.Store) *Optimizer {
	defaults := DefaultThresholds()
	if thresholds.Boost <= 0 {
		thresholds.Boost = defaults.Boost
	}
	if thresholds.Penalize <= 0 {
		thresholds.Penalize = defaults.Penalize
	}
	if thresholds.RetireFloor <= 0 {
		thresholds.RetireFloor = defaults.RetireFloor
	}
	if thresholds.RetireMinObs <= 0 {
		thresholds.RetireMinObs = defaults.RetireMinObs
	}
	if thresholds.Promote <= 0 {
		thresholds.Promote = defaults.Promote
	}
	if thresholds.PromoteMinObs <= 0 {
		thresholds.PromoteMinObs = defaults.PromoteMinObs
	}
	if thresholds.Window <= 0 {
		thresholds.Window = defaults.Window
	}
	return &Optimizer{
		thresholds:   thresholds,
		patterns:     make(map[string]*discovery.Pattern),
		records:      make(map[string]*PerformanceRecord),
		regexes:      make(map[string]*regexp.Regexp),
		recordLocks:  newKeyedMutex(),
		patternLocks: newKeyedMutex(),
		persist:      persist,
	}
}

// LoadPersisted restores patterns and performance records from the store.
// Absent history is no prior evidence, never an error.
func (o *Optimizer) LoadPersisted(ctx context.Context) error {
	if o.persist == nil {
		return nil
	}
	err := o.persist.List(ctx, store.KindPattern, func(key string, data []byte) error {
		var p discovery.Pattern
		if err := json.Unmarshal(data, &p); err != nil {
			return nil // skip corrupt records
		}
		o.registerPattern(&p)
		return nil
	})
	if err != nil {
		o.markDegraded(err)
		return nil
	}
	err = o.persist.List(ctx, store.KindPerformance, func(key string, data []byte) error {
		var r PerformanceRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil
		}
		o.mu.Lock()
		o.records[recordKey(r.Domain, r.Subject)] = &r
		o.mu.Unlock()
		return nil
	})
	if err != nil {
		o.markDegraded(err)
	}
	return nil
}

// AddPattern registers a newly discovered pattern and persists it.
func (o *Optimizer) AddPattern(p *discovery.Pattern) {
	if p == nil {
		return
	}
	o.mu.Lock()
	o.patterns[p.ID] = p
	if re, err := regexp.Compile(p.Pattern); err == nil {
		o.regexes[p.ID] = re
	}
	clone := clonePattern(p)
	o.mu.Unlock()

	o.savePattern(clone)
}

func (o *Optimizer) registerPattern(p *discovery.Pattern) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.patterns[p.ID] = p
	if re, err := regexp.Compile(p.Pattern); err == nil {
		o.regexes[p.ID] = re
	}
}

// Patterns returns a snapshot of all known patterns, retired included.
func (o *Optimizer) Patterns() []*discovery.Pattern {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*discovery.Pattern, 0, len(o.patterns))
	for _, p := range o.patterns {
		out = append(out, clonePattern(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KnownSignatures returns the signature names already represented by a
// live pattern, used by discovery to skip shapes that are already covered.
func (o *Optimizer) KnownSignatures() map[string]bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	known := make(map[string]bool, len(o.patterns))
	for _, p := range o.patterns {
		known[p.Signature] = true
	}
	return known
}

// RecordOutcome folds one attempt outcome into the (domain, subject)
// performance record. The per-key lock serializes read-modify-write
// sequences for the same key; the field mutation itself happens under the
// map lock so concurrent readers never observe a half-updated record.
func (o *Optimizer) RecordOutcome(ctx context.Context, domain, subject string, success bool, confidence float64, latency time.Duration) {
	key := recordKey(domain, subject)
	unlock := o.recordLocks.Lock(key)
	defer unlock()

	o.mu.Lock()
	rec, ok := o.records[key]
	if !ok {
		rec = &PerformanceRecord{Domain: domain, Subject: subject}
		o.records[key] = rec
	}
	rec.observe(success, confidence, latency, o.thresholds.Window)
	clone := cloneRecord(rec)
	o.mu.Unlock()

	o.saveRecord(ctx, clone)
}

// Record returns a copy of the performance record, or nil when no
// evidence exists yet.
func (o *Optimizer) Record(domain, subject string) *PerformanceRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.records[recordKey(domain, subject)]
	if !ok {
		return nil
	}
	return cloneRecord(rec)
}

// MatchingPatterns returns the IDs of selectable patterns whose signature
// matches the raw item text, so the dispatcher can attribute an attempt
// outcome to the patterns that shaped it.
func (o *Optimizer) MatchingPatterns(rawText string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var ids []string
	for id, p := range o.patterns {
		if !p.Selectable() {
			continue
		}
		if re, ok := o.regexes[id]; ok && re.MatchString(rawText) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ObservePattern performs the Bayesian belief update for one pattern after
// an attempt it participated in. A success raises Alpha, a failure raises
// Beta; boost and penalty derive from the rolling outcome window and add
// bounded pseudo-counts, so the confidence estimate never leaves [0,1].
// It reports whether this observation retired the pattern.
func (o *Optimizer) ObservePattern(ctx context.Context, patternID string, success bool) (retired bool) {
	unlock := o.patternLocks.Lock(patternID)
	defer unlock()

	o.mu.Lock()
	p, ok := o.patterns[patternID]
	if !ok || p.State == discovery.PatternRetired {
		o.mu.Unlock()
		return false
	}

	if success {
		p.Alpha++
		p.Confirms++
	} else {
		p.Beta++
		p.Disconfirms++
	}
	p.Recent = append(p.Recent, success)
	if len(p.Recent) > o.thresholds.Window {
		p.Recent = p.Recent[len(p.Recent)-o.thresholds.Window:]
	}

	if len(p.Recent) >= o.thresholds.Window {
		rate := recentRate(p.Recent)
		if rate >= o.thresholds.Boost {
			p.Alpha += boostBonus
		} else if rate <= o.thresholds.Penalize {
			p.Beta += penaltyBonus
		}
	}

	if p.Observations() >= o.thresholds.RetireMinObs && p.Confidence() < o.thresholds.RetireFloor {
		p.State = discovery.PatternRetired
		retired = true
	} else if p.State == discovery.PatternCandidate &&
		p.Observations() >= o.thresholds.PromoteMinObs &&
		p.Confidence() >= o.thresholds.Promote {
		p.State = discovery.PatternActive
	}

	clone := clonePattern(p)
	o.mu.Unlock()

	o.savePattern(clone)
	return retired
}

// Promotable returns active patterns eligible for production template
// synthesis.
func (o *Optimizer) Promotable() []*discovery.Pattern {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*discovery.Pattern
	for _, p := range o.patterns {
		if p.State == discovery.PatternActive && !p.Promoted {
			out = append(out, clonePattern(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkPromoted records that a pattern has been synthesized into a
// template; it stays active for historical scoring but is not re-promoted.
func (o *Optimizer) MarkPromoted(patternID string) {
	unlock := o.patternLocks.Lock(patternID)
	defer unlock()

	o.mu.Lock()
	p, ok := o.patterns[patternID]
	if !ok {
		o.mu.Unlock()
		return
	}
	p.Promoted = true
	clone := clonePattern(p)
	o.mu.Unlock()

	o.savePattern(clone)
}

// HistoricalConfidence implements score.PatternIndex: when the raw item
// text matches the signature of a non-retired pattern, its belief mean is
// fed back into candidate scoring.
func (o *Optimizer) HistoricalConfidence(rawText string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	best := 0.0
	found := false
	for id, p := range o.patterns {
		if !p.Selectable() {
			continue
		}
		re, ok := o.regexes[id]
		if !ok || !re.MatchString(rawText) {
			continue
		}
		if conf := p.Confidence(); !found || conf > best {
			best = conf
			found = true
		}
	}
	return best, found
}

// Rank orders template names for a domain: domain-specific historical
// confidence first, global confidence second, registration order as the
// final tiebreaker. Names without evidence sort after names with strong
// evidence but before known-bad ones.
func (o *Optimizer) Rank(domain string, names []string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	type ranked struct {
		name    string
		domain  float64
		global  float64
		initial int
	}
	scored := make([]ranked, 0, len(names))
	for i, name := range names {
		r := ranked{name: name, domain: o.prefScoreLocked(domain, name), global: o.globalScoreLocked(name), initial: i}
		scored = append(scored, r)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].domain != scored[j].domain {
			return scored[i].domain > scored[j].domain
		}
		if scored[i].global != scored[j].global {
			return scored[i].global > scored[j].global
		}
		return scored[i].initial < scored[j].initial
	})

	out := make([]string, len(scored))
	for i, r := range scored {
		out[i] = r.name
	}
	return out
}

// prefScoreLocked blends success rate and confidence for one domain.
// Unknown (domain, subject) pairs score the neutral 0.5.
func (o *Optimizer) prefScoreLocked(domain, subject string) float64 {
	rec, ok := o.records[recordKey(domain, subject)]
	if !ok || rec.Attempts() == 0 {
		return 0.5
	}
	return 0.7*rec.SuccessRate() + 0.3*rec.AvgConfidence
}

// globalScoreLocked averages the subject's preference score across all
// domains with evidence.
func (o *Optimizer) globalScoreLocked(subject string) float64 {
	sum := 0.0
	n := 0
	for _, rec := range o.records {
		if rec.Subject != subject || rec.Attempts() == 0 {
			continue
		}
		sum += 0.7*rec.SuccessRate() + 0.3*rec.AvgConfidence
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// Degraded reports whether the optimizer has fallen back to stateless
// in-memory operation after a persistence failure.
func (o *Optimizer) Degraded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.degraded
}

// MarkUnavailable records an externally detected persistence failure, such
// as the backing store refusing to open at startup. Health and metrics
// then report the degraded state instead of a silent memory fallback.
func (o *Optimizer) MarkUnavailable(err error) {
	o.markDegraded(err)
}

func (o *Optimizer) markDegraded(err error) {
	o.mu.Lock()
	o.degraded = true
	o.mu.Unlock()
	o.degOnce.Do(func() {
		log.Printf("learn: persistence unavailable, continuing stateless: %v", err)
	})
}

// savePattern and saveRecord take detached clones made under the map
// lock, so the store write never touches shared state.
func (o *Optimizer) savePattern(p *discovery.Pattern) {
	if o.persist == nil {
		return
	}
	if err := o.persist.Save(context.Background(), store.KindPattern, p.ID, p); err != nil {
		o.markDegraded(err)
	}
}

func (o *Optimizer) saveRecord(ctx context.Context, rec *PerformanceRecord) {
	if o.persist == nil {
		return
	}
	if err := o.persist.Save(ctx, store.KindPerformance, recordKey(rec.Domain, rec.Subject), rec); err != nil {
		o.markDegraded(err)
	}
}

func clonePattern(p *discovery.Pattern) *discovery.Pattern {
	clone := *p
	clone.Recent = append([]bool(nil), p.Recent...)
	return &clone
}

func cloneRecord(r *PerformanceRecord) *PerformanceRecord {
	clone := *r
	clone.Recent = append([]bool(nil), r.Recent...)
	return &clone
}

func recentRate(recent []bool) float64 {
	ok := 0
	for _, s := range recent {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(recent))
}
