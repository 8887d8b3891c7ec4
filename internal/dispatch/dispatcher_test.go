// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/extract"
	"github.com/valeran/chartex/internal/learn"
	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/score"
	"github.com/valeran/chartex/internal/template"
)

func newTestEngine(t *testing.T, autoPromote bool) *Engine {
	t.Helper()
	eng, err := NewEngine(EngineOptions{
		Templates:      template.NewStore(nil),
		Optimizer:      learn.NewOptimizer(learn.DefaultThresholds(), nil),
		Discovery:      discovery.NewEngine(3),
		Weights:        score.DefaultWeights(),
		Limits:         extract.DefaultLimits(),
		MaxRetries:     3,
		AllowDiscovery: true,
		AutoPromote:    autoPromote,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng
}

func listPage(url string, items ...string) *pagemodel.Page {
	list := &pagemodel.Node{Role: pagemodel.RoleList}
	for _, name := range items {
		list.Children = append(list.Children, &pagemodel.Node{Role: pagemodel.RoleListItem, Name: name})
	}
	return &pagemodel.Page{
		URL: url,
		Root: &pagemodel.Node{
			Role: pagemodel.RoleDocument,
			Children: []*pagemodel.Node{{
				Role:     pagemodel.RoleMain,
				Children: []*pagemodel.Node{list},
			}},
		},
	}
}

func TestExtractEndToEnd(t *testing.T) {
	eng := newTestEngine(t, false)
	page := listPage("https://songblog.example/page",
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
		"3. Third Song - Third Artist",
	)

	result, err := eng.Extract(context.Background(), page, Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if result.Status != extract.StatusSuccess {
		t.Fatalf("status = %s (reason %s), want success", result.Status, result.Reason)
	}
	if result.Method != template.GenericName {
		t.Errorf("method = %s, want generic for unmapped domain", result.Method)
	}
	if result.ActualCount != 3 || len(result.Records) != 3 {
		t.Fatalf("records = %d (actual %d), want 3", len(result.Records), result.ActualCount)
	}
	if result.Records[0].Title != "First Song" || result.Records[0].Artist != "First Artist" {
		t.Errorf("first record = %+v", result.Records[0])
	}
	if result.Records[2].Rank != 3 {
		t.Errorf("third record rank = %d, want 3", result.Records[2].Rank)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 on first-template success", result.Attempts)
	}
	if result.Domain != "songblog.example" {
		t.Errorf("domain = %s", result.Domain)
	}
	if result.ExecutionTime <= 0 {
		t.Error("execution time not recorded")
	}
}

func TestExtractRetriesAlternateTemplates(t *testing.T) {
	eng := newTestEngine(t, false)

	// No main container: the generic template (and both main-based
	// builtins) miss, the card-layout template matches.
	cards := &pagemodel.Node{
		Role:  pagemodel.RoleGeneric,
		Attrs: map[string]string{"class": "song-list"},
		Children: []*pagemodel.Node{
			{Role: pagemodel.RoleListItem, Name: "Alpha Song - Alpha Artist"},
			{Role: pagemodel.RoleListItem, Name: "Beta Song - Beta Artist"},
			{Role: pagemodel.RoleListItem, Name: "Gamma Song - Gamma Artist"},
			{Role: pagemodel.RoleListItem, Name: "Delta Song - Delta Artist"},
			{Role: pagemodel.RoleListItem, Name: "Epsilon Song - Epsilon Artist"},
			{Role: pagemodel.RoleListItem, Name: "Zeta Song - Zeta Artist"},
			{Role: pagemodel.RoleListItem, Name: "Eta Song - Eta Artist"},
			{Role: pagemodel.RoleListItem, Name: "Theta Song - Theta Artist"},
			{Role: pagemodel.RoleListItem, Name: "Iota Song - Iota Artist"},
			{Role: pagemodel.RoleListItem, Name: "Kappa Song - Kappa Artist"},
		},
	}
	page := &pagemodel.Page{
		URL: "https://cards.example/page",
		Root: &pagemodel.Node{
			Role:     pagemodel.RoleDocument,
			Children: []*pagemodel.Node{cards},
		},
	}

	result, err := eng.Extract(context.Background(), page, Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Status != extract.StatusSuccess {
		t.Fatalf("status = %s (reason %s), want success via alternate template", result.Status, result.Reason)
	}
	if result.Method != "complex_js_style" {
		t.Errorf("method = %s, want complex_js_style", result.Method)
	}
	if result.Attempts < 2 {
		t.Errorf("attempts = %d, want at least 2 (first template must miss)", result.Attempts)
	}
}

func TestExtractAllTemplatesFail(t *testing.T) {
	eng := newTestEngine(t, false)
	page := &pagemodel.Page{
		URL: "https://empty.example/page",
		Root: &pagemodel.Node{
			Role:     pagemodel.RoleDocument,
			Children: []*pagemodel.Node{{Role: pagemodel.RoleText, Name: "nothing to see"}},
		},
	}

	result, err := eng.Extract(context.Background(), page, Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Status != extract.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Attempts != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", result.Attempts)
	}
	if len(result.Records) != 0 {
		t.Errorf("records = %d, want 0", len(result.Records))
	}
}

func TestExtractDeterministicAcrossRuns(t *testing.T) {
	eng := newTestEngine(t, false)
	url := "https://songblog.example/page"
	items := []string{
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
		"3. Third Song - Third Artist",
	}

	first, err := eng.Extract(context.Background(), listPage(url, items...), Options{})
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	second, err := eng.Extract(context.Background(), listPage(url, items...), Options{})
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}

	if first.Status != second.Status || first.Confidence != second.Confidence {
		t.Errorf("repeat run diverged: %s/%v then %s/%v",
			first.Status, first.Confidence, second.Status, second.Confidence)
	}
	if len(first.Records) != len(second.Records) {
		t.Fatalf("record counts diverged: %d then %d", len(first.Records), len(second.Records))
	}
	for i := range first.Records {
		a, b := first.Records[i], second.Records[i]
		if a.Title != b.Title || a.Artist != b.Artist || a.Rank != b.Rank || a.Confidence != b.Confidence {
			t.Errorf("record %d diverged: %+v vs %+v", i, a, b)
		}
	}
}

func TestExtractMinConfidenceOverride(t *testing.T) {
	eng := newTestEngine(t, false)
	page := listPage("https://songblog.example/page",
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
		"3. Third Song - Third Artist",
	)

	strict := 0.95
	result, err := eng.Extract(context.Background(), page, Options{MinConfidence: &strict})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Status == extract.StatusSuccess {
		t.Errorf("status = success under min confidence %v, want partial or failed", strict)
	}
}

func TestExtractRecordsPerformance(t *testing.T) {
	eng := newTestEngine(t, false)
	page := listPage("https://songblog.example/page",
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
	)

	if _, err := eng.Extract(context.Background(), page, Options{}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	rec := eng.optimizer.Record("songblog.example", template.GenericName)
	if rec == nil {
		t.Fatal("no performance record after extraction")
	}
	if rec.Successes != 1 {
		t.Errorf("successes = %d, want 1", rec.Successes)
	}
}

func TestExtractDiscoversPatterns(t *testing.T) {
	eng := newTestEngine(t, false)
	page := listPage("https://songblog.example/page",
		`"Song One" by Artist One`,
		`"Song Two" by Artist Two`,
		`"Song Three" by Artist Three`,
	)

	if _, err := eng.Extract(context.Background(), page, Options{}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	patterns := eng.optimizer.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("patterns after discovery = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Signature != "quoted_title_by_artist" {
		t.Errorf("discovered signature = %s", p.Signature)
	}
	if p.State != discovery.PatternCandidate {
		t.Errorf("discovered state = %s, want candidate", p.State)
	}
	if p.Domain != "songblog.example" {
		t.Errorf("discovered domain = %s", p.Domain)
	}
}

func TestExtractDiscoveryDisabled(t *testing.T) {
	eng := newTestEngine(t, false)
	page := listPage("https://songblog.example/page",
		`"Song One" by Artist One`,
		`"Song Two" by Artist Two`,
		`"Song Three" by Artist Three`,
	)

	off := false
	if _, err := eng.Extract(context.Background(), page, Options{AllowDiscovery: &off}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := eng.optimizer.Patterns(); len(got) != 0 {
		t.Errorf("patterns with discovery disabled = %d, want 0", len(got))
	}
}

func TestExtractAutoPromotes(t *testing.T) {
	eng := newTestEngine(t, true)
	ctx := context.Background()

	sig := discovery.Signature{
		Name:        "quoted_title_by_artist",
		Pattern:     `^"(.+?)"\s+by\s+(.+)$`,
		TitleGroup:  1,
		ArtistGroup: 2,
	}
	p := discovery.NewPattern(sig, discovery.StructureQuotedTitle, "songblog.example")
	eng.optimizer.AddPattern(p)
	for i := 0; i < 20; i++ {
		eng.optimizer.ObservePattern(ctx, p.ID, true)
	}

	page := listPage("https://songblog.example/page",
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
	)
	if _, err := eng.Extract(ctx, page, Options{}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	promotedName := "learned_songblog_example_quoted_title_by_artist"
	if _, ok := eng.templates.Get(promotedName); !ok {
		t.Fatalf("promoted template %s not registered", promotedName)
	}
	if got := eng.templates.Resolve("songblog.example"); got.Name != promotedName {
		t.Errorf("domain resolves to %s, want promoted template", got.Name)
	}
	if got := eng.optimizer.Promotable(); len(got) != 0 {
		t.Errorf("pattern still promotable after promotion: %d", len(got))
	}
}

func TestExtractContextCancelled(t *testing.T) {
	eng := newTestEngine(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := listPage("https://songblog.example/page", "1. Song - Artist", "2. Other - Artist")
	result, err := eng.Extract(ctx, page, Options{})
	if err != nil {
		t.Fatalf("Extract returned hard error on cancellation: %v", err)
	}
	if result.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 when cancelled before the first attempt", result.Attempts)
	}
	if result.Status != extract.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	// No attempt ran, so no extraction diagnosis applies to the result.
	if result.Reason != extract.ReasonNone {
		t.Errorf("reason = %q, want empty when nothing was attempted", result.Reason)
	}
	if len(result.Errors) == 0 {
		t.Error("cancellation not surfaced in result errors")
	}
}

func TestExtractNilPage(t *testing.T) {
	eng := newTestEngine(t, false)
	if _, err := eng.Extract(context.Background(), nil, Options{}); err == nil {
		t.Error("Extract(nil page) returned no error")
	}
}

func TestExtractCountNarrowing(t *testing.T) {
	eng := newTestEngine(t, false)

	// A named chart URL promises 100 entries; a 3-item page is at best
	// partial with a count mismatch.
	page := listPage("https://charts.example/hot-100/",
		"1. First Song - First Artist",
		"2. Second Song - Second Artist",
		"3. Third Song - Third Artist",
	)

	result, err := eng.Extract(context.Background(), page, Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Status == extract.StatusSuccess {
		t.Errorf("status = success for 3 items on a hot-100 URL, want degraded")
	}
	if result.ExpectedCount != 100 {
		t.Errorf("expected count = %d, want 100", result.ExpectedCount)
	}
}

func TestBetterAttempt(t *testing.T) {
	now := time.Now()
	success := &extract.Attempt{Status: extract.StatusSuccess, Confidence: 0.6, StartedAt: now}
	partial := &extract.Attempt{Status: extract.StatusPartial, Confidence: 0.9, StartedAt: now}
	failed := &extract.Attempt{Status: extract.StatusFailed, Confidence: 0.9, StartedAt: now}

	if !betterAttempt(success, partial) {
		t.Error("success should beat higher-confidence partial")
	}
	if !betterAttempt(partial, failed) {
		t.Error("partial should beat failed")
	}
	if betterAttempt(failed, partial) {
		t.Error("failed should not beat partial")
	}
}
