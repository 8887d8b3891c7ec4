// pkg/api/api.go

// Package api is the public entry point: it assembles the template store,
// learning optimizer, discovery engine and dispatcher from one
// configuration and exposes extraction over URLs or raw HTML.
package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/valeran/chartex/internal/config"
	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/dispatch"
	"github.com/valeran/chartex/internal/fetch"
	"github.com/valeran/chartex/internal/learn"
	"github.com/valeran/chartex/internal/monitoring"
	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/store"
	"github.com/valeran/chartex/internal/template"
)

// Engine bundles every collaborator needed to serve extraction requests.
// Create one per process; it is safe for concurrent use.
type Engine struct {
	cfg        *config.Config
	store      store.Store
	templates  *template.Store
	optimizer  *learn.Optimizer
	dispatcher *dispatch.Engine
	metrics    *monitoring.Metrics

	httpFetcher    fetch.Fetcher
	browserFetcher fetch.Fetcher
}

// New assembles an engine from configuration, opening the persistence
// backend and restoring learned state. A failing backend degrades to
// in-memory operation rather than refusing to start.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	persist, openErr := cfg.OpenStore()
	if openErr != nil {
		// Learned state is an accelerant, not a prerequisite, but the
		// failure must be visible through health and metrics.
		log.Printf("api: %s backend unavailable, falling back to memory: %v", cfg.Storage.Backend, openErr)
		persist = store.NewMemoryStore()
	}

	templates := template.NewStore(persist)
	if cfg.TemplatesFile != "" {
		if err := templates.LoadFile(cfg.TemplatesFile); err != nil {
			return nil, fmt.Errorf("failed to load templates file: %w", err)
		}
	}
	if err := templates.LoadPersisted(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore templates: %w", err)
	}

	optimizer := learn.NewOptimizer(cfg.Learning.Thresholds, persist)
	if openErr != nil {
		optimizer.MarkUnavailable(openErr)
	}
	if err := optimizer.LoadPersisted(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore learned state: %w", err)
	}

	metrics := monitoring.NewMetrics(nil)
	if openErr != nil {
		metrics.ObservePersistenceError()
	}
	dispatcher, err := dispatch.NewEngine(dispatch.EngineOptions{
		Templates:      templates,
		Optimizer:      optimizer,
		Discovery:      discovery.NewEngine(cfg.Learning.DiscoveryMinObservations),
		Weights:        cfg.Scoring.Weights,
		Limits:         cfg.Extraction.Limits,
		MaxRetries:     cfg.Extraction.MaxRetries,
		AllowDiscovery: cfg.Extraction.AllowDiscovery == nil || *cfg.Extraction.AllowDiscovery,
		AutoPromote:    cfg.Learning.AutoPromote,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		store:       persist,
		templates:   templates,
		optimizer:   optimizer,
		dispatcher:  dispatcher,
		metrics:     metrics,
		httpFetcher: fetch.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent),
	}
	if cfg.Fetch.Browser.Enabled {
		e.browserFetcher = fetch.NewBrowserFetcher(cfg.Fetch.Browser.Headless, cfg.Fetch.Browser.Timeout, cfg.Fetch.UserAgent)
	}
	return e, nil
}

// ExtractURL fetches the URL and runs the extraction pipeline on it. The
// browser fetcher is used when enabled; the resolved template's
// navigation hints drive it.
func (e *Engine) ExtractURL(ctx context.Context, url string, opts Options) (*Result, error) {
	info := dispatch.AnalyzeURL(url)
	nav := e.templates.Resolve(info.Domain).Navigation

	fetcher := e.httpFetcher
	if e.browserFetcher != nil {
		fetcher = e.browserFetcher
	}
	page, err := fetcher.Fetch(ctx, url, nav)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return e.dispatcher.Extract(ctx, page, opts)
}

// ExtractHTML runs the pipeline on HTML the caller already has, with url
// providing domain and expectation context.
func (e *Engine) ExtractHTML(ctx context.Context, url, html string, opts Options) (*Result, error) {
	page, err := pagemodel.FromHTML(url, html)
	if err != nil {
		return nil, fmt.Errorf("failed to build page model: %w", err)
	}
	return e.dispatcher.Extract(ctx, page, opts)
}

// ExtractPage runs the pipeline on a prebuilt page model.
func (e *Engine) ExtractPage(ctx context.Context, page *pagemodel.Page, opts Options) (*Result, error) {
	return e.dispatcher.Extract(ctx, page, opts)
}

// Templates returns the latest version of every registered template.
func (e *Engine) Templates() []*template.Template {
	return e.templates.All()
}

// Patterns returns every learned pattern, retired included.
func (e *Engine) Patterns() []*discovery.Pattern {
	return e.optimizer.Patterns()
}

// Degraded reports whether persistence has failed and the engine is
// running stateless.
func (e *Engine) Degraded() bool {
	return e.optimizer.Degraded()
}

// Metrics exposes the engine's Prometheus collectors, for mounting the
// scrape endpoint.
func (e *Engine) Metrics() *monitoring.Metrics {
	return e.metrics
}

// Prune removes learned records older than the configured retention
// horizon and returns how many were dropped.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -e.cfg.Storage.RetentionDays)
	total := 0
	for _, kind := range []store.Kind{store.KindPattern, store.KindPerformance} {
		n, err := e.store.Prune(ctx, kind, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune of %s failed: %w", kind, err)
		}
		total += n
	}
	return total, nil
}

// Close releases the persistence backend.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
