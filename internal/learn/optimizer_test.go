// internal/learn/optimizer_test.go
package learn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/store"
)

func testPattern(domain string) *discovery.Pattern {
	sig := discovery.Signature{
		Name:        "quoted_title_by_artist",
		Pattern:     `^"(.+?)"\s+by\s+(.+)$`,
		TitleGroup:  1,
		ArtistGroup: 2,
	}
	return discovery.NewPattern(sig, discovery.StructureQuotedTitle, domain)
}

func TestRecordOutcome(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	o.RecordOutcome(ctx, "example.com", "generic", true, 0.8, 100*time.Millisecond)
	o.RecordOutcome(ctx, "example.com", "generic", false, 0.3, 200*time.Millisecond)

	rec := o.Record("example.com", "generic")
	if rec == nil {
		t.Fatal("no record after outcomes")
	}
	if rec.Successes != 1 || rec.Failures != 1 {
		t.Errorf("successes/failures = %d/%d, want 1/1", rec.Successes, rec.Failures)
	}
	if rec.SuccessRate() != 0.5 {
		t.Errorf("success rate = %v, want 0.5", rec.SuccessRate())
	}
	if rec.AvgConfidence < 0.54 || rec.AvgConfidence > 0.56 {
		t.Errorf("avg confidence = %v, want 0.55", rec.AvgConfidence)
	}
}

func TestRecordOutcomeFailureIncrementsByOne(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o.RecordOutcome(ctx, "example.com", "generic", false, 0.1, time.Millisecond)
		rec := o.Record("example.com", "generic")
		if rec.Failures != i+1 {
			t.Fatalf("after %d failures, record shows %d", i+1, rec.Failures)
		}
	}
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	const workers = 8
	const each = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				o.RecordOutcome(ctx, "example.com", "generic", true, 0.9, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	rec := o.Record("example.com", "generic")
	if rec.Successes != workers*each {
		t.Errorf("concurrent successes = %d, want %d (lost updates)", rec.Successes, workers*each)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)

	const writers = 4
	const each = 50

	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, got := range o.Patterns() {
					if c := got.Confidence(); c < 0 || c > 1 {
						t.Errorf("confidence %v escaped [0,1]", c)
						return
					}
				}
				o.HistoricalConfidence(`"Song" by Artist`)
				o.MatchingPatterns(`"Song" by Artist`)
				o.Record("example.com", "generic")
				o.Rank("example.com", []string{"generic", "billboard_style"})
				o.Promotable()
			}
		}()
	}

	var writersWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func() {
			defer writersWG.Done()
			for i := 0; i < each; i++ {
				o.ObservePattern(ctx, p.ID, true)
				o.RecordOutcome(ctx, "example.com", "generic", true, 0.9, time.Millisecond)
			}
		}()
	}
	writersWG.Wait()
	close(done)
	readers.Wait()

	rec := o.Record("example.com", "generic")
	if rec == nil || rec.Successes != writers*each {
		t.Errorf("record successes = %v, want %d", rec, writers*each)
	}
	got := o.Patterns()[0]
	if got.Observations() != writers*each {
		t.Errorf("pattern observations = %d, want %d", got.Observations(), writers*each)
	}
}

func TestObservePatternConfidenceBounds(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)

	// Heavy one-sided evidence, with boost bonuses, must stay within [0,1].
	for i := 0; i < 100; i++ {
		o.ObservePattern(ctx, p.ID, true)
	}
	got := o.Patterns()
	if len(got) != 1 {
		t.Fatalf("pattern count = %d", len(got))
	}
	if c := got[0].Confidence(); c < 0 || c > 1 {
		t.Errorf("confidence %v escaped [0,1]", c)
	}
	if c := got[0].Confidence(); c < 0.9 {
		t.Errorf("confidence after 100 successes = %v, want near 1", c)
	}
}

func TestBoostUsesRollingWindow(t *testing.T) {
	th := DefaultThresholds()
	// Keep the pattern alive through the early failures so the recovery
	// window can play out.
	th.RetireMinObs = 100
	o := NewOptimizer(th, nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)

	// A rough start followed by a full window of successes. The lifetime
	// confirm rate is only 0.5, but the rolling window reaches the boost
	// threshold once the failures age out.
	for i := 0; i < 10; i++ {
		o.ObservePattern(ctx, p.ID, false)
	}
	for i := 0; i < 10; i++ {
		o.ObservePattern(ctx, p.ID, true)
	}

	got := o.Patterns()[0]
	if got.State == discovery.PatternRetired {
		t.Fatal("pattern retired despite raised retirement floor")
	}
	// Prior 2 + 10 successes = 12; anything above proves boost bonuses
	// were applied off the window, not the lifetime rate.
	if got.Alpha <= 12 {
		t.Errorf("alpha = %v, want boost bonuses on top of 12", got.Alpha)
	}
	if n := len(got.Recent); n != th.Window {
		t.Errorf("rolling window length = %d, want %d", n, th.Window)
	}
}

func TestObservePatternPromotion(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)

	// 20 consecutive successes push the belief well above the 0.75
	// promotion threshold with enough observations behind it.
	for i := 0; i < 20; i++ {
		o.ObservePattern(ctx, p.ID, true)
	}

	promotable := o.Promotable()
	if len(promotable) != 1 {
		t.Fatalf("promotable patterns = %d, want 1", len(promotable))
	}
	if promotable[0].State != discovery.PatternActive {
		t.Errorf("state = %s, want active", promotable[0].State)
	}

	o.MarkPromoted(p.ID)
	if got := o.Promotable(); len(got) != 0 {
		t.Errorf("promotable after MarkPromoted = %d, want 0", len(got))
	}
}

func TestObservePatternRetirement(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)

	retired := false
	for i := 0; i < 30; i++ {
		if o.ObservePattern(ctx, p.ID, false) {
			retired = true
		}
	}
	if !retired {
		t.Fatal("pattern never retired under sustained failure")
	}

	got := o.Patterns()[0]
	if got.State != discovery.PatternRetired {
		t.Errorf("state = %s, want retired", got.State)
	}

	// Retired patterns are kept for audit and excluded from matching.
	if _, ok := o.HistoricalConfidence(`"Song" by Artist`); ok {
		t.Error("retired pattern still matched for historical confidence")
	}

	// Further observations must not resurrect it.
	o.ObservePattern(ctx, p.ID, true)
	if o.Patterns()[0].State != discovery.PatternRetired {
		t.Error("observation after retirement changed state")
	}
}

func TestHistoricalConfidence(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)
	for i := 0; i < 10; i++ {
		o.ObservePattern(ctx, p.ID, true)
	}

	conf, ok := o.HistoricalConfidence(`"Flowers" by Miley Cyrus`)
	if !ok {
		t.Fatal("no historical confidence for matching text")
	}
	if conf <= 0.5 {
		t.Errorf("confidence = %v, want above neutral after successes", conf)
	}

	if _, ok := o.HistoricalConfidence("plain text with no shape"); ok {
		t.Error("historical confidence reported for non-matching text")
	}
}

func TestMatchingPatterns(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	p := testPattern("example.com")
	o.AddPattern(p)

	ids := o.MatchingPatterns(`"Song" by Artist`)
	if len(ids) != 1 || ids[0] != p.ID {
		t.Errorf("MatchingPatterns = %v, want [%s]", ids, p.ID)
	}
	if ids := o.MatchingPatterns("no shape here"); len(ids) != 0 {
		t.Errorf("MatchingPatterns on plain text = %v, want empty", ids)
	}
}

func TestRankPrefersEvidence(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	ctx := context.Background()

	// strong_template consistently succeeds on this domain, weak_template
	// consistently fails.
	for i := 0; i < 10; i++ {
		o.RecordOutcome(ctx, "example.com", "strong_template", true, 0.9, time.Millisecond)
		o.RecordOutcome(ctx, "example.com", "weak_template", false, 0.2, time.Millisecond)
	}

	names := []string{"weak_template", "unseen_template", "strong_template"}
	ranked := o.Rank("example.com", names)

	if ranked[0] != "strong_template" {
		t.Errorf("ranked[0] = %s, want strong_template", ranked[0])
	}
	if ranked[2] != "weak_template" {
		t.Errorf("ranked[2] = %s, want weak_template (known bad sorts last)", ranked[2])
	}
	if ranked[1] != "unseen_template" {
		t.Errorf("ranked[1] = %s, want unseen_template (neutral in the middle)", ranked[1])
	}
}

func TestRankStableWithoutEvidence(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), nil)
	names := []string{"alpha", "beta", "gamma"}
	ranked := o.Rank("example.com", names)
	for i, name := range names {
		if ranked[i] != name {
			t.Errorf("rank without evidence reordered input: %v", ranked)
			break
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	o := NewOptimizer(DefaultThresholds(), mem)
	p := testPattern("example.com")
	o.AddPattern(p)
	for i := 0; i < 6; i++ {
		o.ObservePattern(ctx, p.ID, true)
	}
	o.RecordOutcome(ctx, "example.com", "generic", true, 0.8, time.Millisecond)

	restored := NewOptimizer(DefaultThresholds(), mem)
	if err := restored.LoadPersisted(ctx); err != nil {
		t.Fatalf("LoadPersisted failed: %v", err)
	}

	patterns := restored.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("restored %d patterns, want 1", len(patterns))
	}
	if patterns[0].Confirms != 6 {
		t.Errorf("restored confirms = %d, want 6", patterns[0].Confirms)
	}
	rec := restored.Record("example.com", "generic")
	if rec == nil || rec.Successes != 1 {
		t.Error("performance record not restored")
	}
}

func TestDegradedNeverFatal(t *testing.T) {
	o := NewOptimizer(DefaultThresholds(), failingStore{})
	ctx := context.Background()

	p := testPattern("example.com")
	o.AddPattern(p)
	o.RecordOutcome(ctx, "example.com", "generic", true, 0.8, time.Millisecond)
	o.ObservePattern(ctx, p.ID, true)

	if !o.Degraded() {
		t.Error("optimizer not marked degraded after persistence failures")
	}
	// In-memory state keeps working.
	if rec := o.Record("example.com", "generic"); rec == nil || rec.Successes != 1 {
		t.Error("in-memory record lost after degradation")
	}
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Load(context.Context, store.Kind, string, interface{}) error {
	return store.ErrUnavailable
}

func (failingStore) Save(context.Context, store.Kind, string, interface{}) error {
	return store.ErrUnavailable
}

func (failingStore) List(context.Context, store.Kind, func(string, []byte) error) error {
	return store.ErrUnavailable
}

func (failingStore) Delete(context.Context, store.Kind, string) error {
	return store.ErrUnavailable
}

func (failingStore) Prune(context.Context, store.Kind, time.Time) (int, error) {
	return 0, store.ErrUnavailable
}

func (failingStore) Close() error { return nil }
