// internal/dispatch/dispatcher.go

// Package dispatch orchestrates one extraction request end to end:
// template selection, extraction, scoring, learning feedback and bounded
// retry with alternate templates. Each request moves through an explicit
// state machine; a terminal state is reached exactly once.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/extract"
	"github.com/valeran/chartex/internal/learn"
	"github.com/valeran/chartex/internal/monitoring"
	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/score"
	"github.com/valeran/chartex/internal/template"
)

// State is a dispatch request's position in its lifecycle.
type State string

const (
	StatePending          State = "pending"
	StateTemplateSelected State = "template_selected"
	StateExtracting       State = "extracting"
	StateScored           State = "scored"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Record is one accepted song entry in a result.
type Record struct {
	Title      string            `json:"title"`
	Artist     string            `json:"artist,omitempty"`
	Rank       int               `json:"rank,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Result is the terminal envelope for one extraction request. It is
// returned even on failure so callers always see what was tried.
type Result struct {
	URL           string          `json:"url"`
	Domain        string          `json:"domain"`
	Method        string          `json:"method"`
	Records       []Record        `json:"records"`
	Confidence    float64         `json:"confidence"`
	Status        extract.Status  `json:"status"`
	Reason        extract.Reason  `json:"reason,omitempty"`
	ContentType   ContentType     `json:"content_type"`
	ExpectedCount int             `json:"expected_count"`
	ActualCount   int             `json:"actual_count"`
	Attempts      int             `json:"attempts"`
	ExecutionTime time.Duration   `json:"execution_time"`
	Timestamp     time.Time       `json:"timestamp"`
	Errors        []string        `json:"errors,omitempty"`
}

// Options are per-request overrides; nil fields keep the engine defaults.
type Options struct {
	MinConfidence  *float64
	MaxRetries     *int
	AllowDiscovery *bool
}

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	Templates *template.Store
	Optimizer *learn.Optimizer
	Discovery *discovery.Engine
	Weights   score.Weights
	Limits    extract.Limits

	// MaxRetries bounds alternate-template attempts after the first.
	MaxRetries int

	// AllowDiscovery enables pattern mining on successful attempts.
	AllowDiscovery bool

	// AutoPromote turns active patterns into production templates without
	// operator intervention.
	AutoPromote bool

	Metrics *monitoring.Metrics
}

// Engine is the extraction dispatcher. It is safe for concurrent use; all
// mutable learned state lives in the optimizer and template store.
type Engine struct {
	templates *template.Store
	optimizer *learn.Optimizer
	discovery *discovery.Engine
	weights   score.Weights
	limits    extract.Limits

	maxRetries     int
	allowDiscovery bool
	autoPromote    bool

	metrics *monitoring.Metrics
}

// NewEngine creates a dispatcher. Templates and Optimizer are required;
// Discovery and Metrics may be nil.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Templates == nil {
		return nil, fmt.Errorf("template store cannot be nil")
	}
	if opts.Optimizer == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Engine{
		templates:      opts.Templates,
		optimizer:      opts.Optimizer,
		discovery:      opts.Discovery,
		weights:        opts.Weights,
		limits:         opts.Limits,
		maxRetries:     opts.MaxRetries,
		allowDiscovery: opts.AllowDiscovery,
		autoPromote:    opts.AutoPromote,
		metrics:        opts.Metrics,
	}, nil
}

// Extract runs the full pipeline for one page model. The context aborts
// the request between attempts; a started attempt always completes so
// learned state stays consistent.
func (e *Engine) Extract(ctx context.Context, page *pagemodel.Page, opts Options) (*Result, error) {
	if page == nil {
		return nil, extract.ErrInvalidPage
	}

	started := time.Now()
	info := AnalyzeURL(page.URL)

	result := &Result{
		URL:           page.URL,
		Domain:        info.Domain,
		ContentType:   info.ContentType,
		ExpectedCount: info.ExpectedCount,
		Timestamp:     started.UTC(),
	}

	limits := e.limits
	if opts.MinConfidence != nil {
		limits.MinConfidence = *opts.MinConfidence
	}
	retries := e.maxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		retries = *opts.MaxRetries
	}
	discoveryOn := e.allowDiscovery
	if opts.AllowDiscovery != nil {
		discoveryOn = *opts.AllowDiscovery
	}

	extractor := extract.New(limits, score.NewScorer(e.weights, e.optimizer))
	candidates := e.candidateTemplates(info.Domain)

	state := StatePending
	var best *extract.Attempt
	wasDegraded := e.optimizer.Degraded()

	for i, tmpl := range candidates {
		if i > retries {
			break
		}
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if i > 0 {
			e.metrics.ObserveRetry()
		}

		state = StateTemplateSelected
		attemptTmpl := e.adjustExpectations(tmpl, info)

		state = StateExtracting
		attempt, err := extractor.Extract(page, attemptTmpl)
		if err != nil {
			// Only a structurally invalid page reaches here; no template
			// can recover from that.
			return nil, err
		}
		state = StateScored
		result.Attempts++

		e.recordOutcome(ctx, info.Domain, attempt)
		if attempt.Status != extract.StatusFailed && discoveryOn {
			e.mineObservations(info.Domain, attempt)
		}
		if e.autoPromote {
			e.promoteReady(info.Domain)
		}

		if best == nil || betterAttempt(attempt, best) {
			best = attempt
		}
		if attempt.Succeeded() {
			break
		}
		if attempt.Status == extract.StatusPartial && attempt.Reason == extract.ReasonLowConfidence {
			// A marginal partial with records is usually as good as this
			// page gets; alternates rarely beat it. Mismatches keep trying.
			break
		}
	}

	if !wasDegraded && e.optimizer.Degraded() {
		e.metrics.ObservePersistenceError()
	}

	e.fillResult(result, best, state)
	result.ExecutionTime = time.Since(started)
	return result, nil
}

// candidateTemplates returns the templates to try, domain-resolved first,
// then the remaining templates in learned-preference order.
func (e *Engine) candidateTemplates(domain string) []*template.Template {
	resolved := e.templates.Resolve(domain)

	var names []string
	for _, t := range e.templates.All() {
		if t.Name != resolved.Name {
			names = append(names, t.Name)
		}
	}
	ranked := e.optimizer.Rank(domain, names)

	out := []*template.Template{resolved}
	for _, name := range ranked {
		if t, ok := e.templates.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// adjustExpectations narrows a template's expected count using the
// URL-derived estimate. Only a confident estimate (named chart, explicit
// number in the path) tightens the range; the fallback guess never turns
// a clean extraction into a count mismatch.
func (e *Engine) adjustExpectations(tmpl *template.Template, info URLInfo) *template.Template {
	if !info.CountKnown {
		return tmpl
	}
	urlRange := ExpectedRange(info.ExpectedCount)
	current := tmpl.ExpectedCount
	if current.Max == 0 || (current.Min <= urlRange.Min && urlRange.Max <= current.Max) {
		adjusted := tmpl.Clone()
		adjusted.ExpectedCount = urlRange
		return adjusted
	}
	return tmpl
}

// recordOutcome feeds the attempt into the learning loop: the template's
// performance record, plus a belief update for every pattern whose
// signature matched an extracted item.
func (e *Engine) recordOutcome(ctx context.Context, domain string, attempt *extract.Attempt) {
	success := attempt.Succeeded()
	e.optimizer.RecordOutcome(ctx, domain, attempt.TemplateName, success, attempt.Confidence, attempt.Duration)
	e.metrics.ObserveAttempt(attempt.TemplateName, string(attempt.Status), attempt.Confidence, attempt.Duration, len(attempt.Candidates))

	for i := range attempt.Candidates {
		for _, id := range e.optimizer.MatchingPatterns(attempt.Candidates[i].RawText) {
			if e.optimizer.ObservePattern(ctx, id, success) {
				e.metrics.ObserveRetirement()
				log.Printf("dispatch: retired pattern %s for %s", id, domain)
			}
		}
	}
}

// mineObservations hands the attempt's accepted items to the discovery
// engine and registers any proposals it produces.
func (e *Engine) mineObservations(domain string, attempt *extract.Attempt) {
	if e.discovery == nil {
		return
	}
	obs := make([]discovery.Observation, 0, len(attempt.Candidates))
	for i := range attempt.Candidates {
		c := &attempt.Candidates[i]
		obs = append(obs, discovery.Observation{
			Domain:    domain,
			RawText:   c.RawText,
			Title:     c.Title,
			Artist:    c.Artist,
			Structure: c.Structure,
		})
	}
	proposals := e.discovery.Discover(obs, e.optimizer.KnownSignatures())
	for _, p := range proposals {
		e.optimizer.AddPattern(p)
		log.Printf("dispatch: discovered candidate pattern %s (%s) on %s", p.Signature, p.ID, domain)
	}
	e.metrics.ObserveDiscovery(len(proposals))
}

// promoteReady synthesizes production templates from patterns that
// crossed the promotion threshold for this domain.
func (e *Engine) promoteReady(domain string) {
	for _, p := range e.optimizer.Promotable() {
		if p.Domain != domain {
			continue
		}
		tmpl, err := e.templates.Promote(p, domain)
		if err != nil {
			log.Printf("dispatch: promotion of pattern %s failed: %v", p.ID, err)
			continue
		}
		e.optimizer.MarkPromoted(p.ID)
		e.metrics.ObservePromotion()
		log.Printf("dispatch: promoted pattern %s into template %s for %s", p.ID, tmpl.Name, domain)
	}
}

// betterAttempt prefers success over partial over failed, then higher
// confidence, then more records.
func betterAttempt(a, b *extract.Attempt) bool {
	if rank := statusRank(a.Status) - statusRank(b.Status); rank != 0 {
		return rank > 0
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return len(a.Candidates) > len(b.Candidates)
}

func statusRank(s extract.Status) int {
	switch s {
	case extract.StatusSuccess:
		return 2
	case extract.StatusPartial:
		return 1
	default:
		return 0
	}
}

// fillResult copies the best attempt into the result envelope and settles
// the terminal state.
func (e *Engine) fillResult(result *Result, best *extract.Attempt, state State) {
	if best == nil {
		// No attempt ran, so no extraction diagnosis applies; the errors
		// slice carries the cause instead.
		result.Status = extract.StatusFailed
		result.Reason = extract.ReasonNone
		if state == StatePending {
			result.Errors = append(result.Errors, "no template attempted")
		}
		return
	}

	result.Method = best.TemplateName
	result.Confidence = best.Confidence
	result.Status = best.Status
	result.Reason = best.Reason
	result.ActualCount = len(best.Candidates)
	result.Records = make([]Record, 0, len(best.Candidates))
	for i := range best.Candidates {
		c := &best.Candidates[i]
		result.Records = append(result.Records, Record{
			Title:      c.Title,
			Artist:     c.Artist,
			Rank:       c.Rank,
			Metadata:   c.Metadata,
			Confidence: c.Confidence,
		})
	}
}
