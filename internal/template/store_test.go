// internal/template/store_test.go
package template

import (
	"context"
	"strings"
	"testing"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/store"
)

func TestNewStoreRegistersBuiltins(t *testing.T) {
	s := NewStore(nil)

	for _, name := range []string{"billboard_style", "editorial_style", "complex_js_style", GenericName} {
		if _, ok := s.Get(name); !ok {
			t.Errorf("builtin template %s not registered", name)
		}
	}
}

func TestResolve(t *testing.T) {
	s := NewStore(nil)

	tests := []struct {
		domain string
		want   string
	}{
		{"billboard.com", "billboard_style"},
		{"www.billboard.com", "billboard_style"},
		{"WWW.Billboard.COM", "billboard_style"},
		{"pitchfork.com", "editorial_style"},
		{"complex.com", "complex_js_style"},
		{"unknown-blog.example", GenericName},
		{"", GenericName},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			got := s.Resolve(tt.domain)
			if got == nil {
				t.Fatal("Resolve returned nil")
			}
			if got.Name != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.domain, got.Name, tt.want)
			}
		})
	}
}

func TestRegisterVersioning(t *testing.T) {
	s := NewStore(nil)

	tmpl := validTemplate()
	if err := s.Register(tmpl); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	got, _ := s.Get(tmpl.Name)
	if got.Version != 1 {
		t.Errorf("first registration version = %d, want 1", got.Version)
	}

	updated := validTemplate()
	updated.Description = "second take"
	if err := s.Register(updated); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	got, _ = s.Get(tmpl.Name)
	if got.Version != 2 {
		t.Errorf("re-registration version = %d, want 2", got.Version)
	}
	if got.Description != "second take" {
		t.Errorf("latest version description = %q", got.Description)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	s := NewStore(nil)
	bad := validTemplate()
	bad.ItemPattern = Selector{}
	if err := s.Register(bad); err == nil {
		t.Error("Register accepted template without item pattern")
	}
}

func TestRegisterCopiesInput(t *testing.T) {
	s := NewStore(nil)
	tmpl := validTemplate()
	if err := s.Register(tmpl); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tmpl.TitleRules[0].Pattern = "mutated"
	got, _ := s.Get(tmpl.Name)
	if got.TitleRules[0].Pattern == "mutated" {
		t.Error("caller mutation reached the stored template")
	}
}

func TestBind(t *testing.T) {
	s := NewStore(nil)

	if err := s.Bind("example.com", "billboard_style"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if got := s.Resolve("example.com"); got.Name != "billboard_style" {
		t.Errorf("after Bind, Resolve = %s", got.Name)
	}

	if err := s.Bind("example.com", "no_such_template"); err == nil {
		t.Error("Bind accepted unknown template name")
	}
}

func TestPromote(t *testing.T) {
	s := NewStore(nil)

	sig := discovery.Signature{
		Name:        "title_by_artist",
		Pattern:     `^"(.+?)"\s+by\s+(.+)$`,
		TitleGroup:  1,
		ArtistGroup: 2,
	}
	p := discovery.NewPattern(sig, discovery.StructureQuotedTitle, "musicblog.example")
	p.State = discovery.PatternActive

	tmpl, err := s.Promote(p, "musicblog.example")
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	if !strings.HasPrefix(tmpl.Name, "learned_") {
		t.Errorf("promoted template name = %q, want learned_ prefix", tmpl.Name)
	}
	if got := s.Resolve("musicblog.example"); got.Name != tmpl.Name {
		t.Errorf("domain not bound to promoted template: resolved %s", got.Name)
	}

	// The pattern's regex must be the top-priority rule.
	if len(tmpl.TitleRules) == 0 || tmpl.TitleRules[0].Pattern != sig.Pattern {
		t.Error("promoted template does not lead with the pattern regex")
	}
	if tmpl.TitleRules[0].Group != sig.TitleGroup {
		t.Errorf("title group = %d, want %d", tmpl.TitleRules[0].Group, sig.TitleGroup)
	}
	if tmpl.ArtistRules[0].Group != sig.ArtistGroup {
		t.Errorf("artist group = %d, want %d", tmpl.ArtistRules[0].Group, sig.ArtistGroup)
	}
}

func TestPromoteRejectsRetired(t *testing.T) {
	s := NewStore(nil)
	p := discovery.NewPattern(discovery.Signature{Name: "x", Pattern: `^(.+) - (.+)$`, TitleGroup: 1, ArtistGroup: 2}, discovery.StructurePlain, "a.example")
	p.State = discovery.PatternRetired

	if _, err := s.Promote(p, "a.example"); err == nil {
		t.Error("Promote accepted a retired pattern")
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"Billboard.com":     "billboard.com",
		"www.pitchfork.com": "pitchfork.com",
		"  npr.org  ":       "npr.org",
		"wwwsite.com":       "wwwsite.com",
	}
	for in, want := range tests {
		if got := NormalizeDomain(in); got != want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPersistRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	s := NewStore(mem)
	tmpl := validTemplate()
	if err := s.Register(tmpl); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	restored := NewStore(mem)
	if err := restored.LoadPersisted(ctx); err != nil {
		t.Fatalf("LoadPersisted failed: %v", err)
	}
	got, ok := restored.Get(tmpl.Name)
	if !ok {
		t.Fatal("registered template not restored from store")
	}
	if got.TitleRules[0].Pattern != tmpl.TitleRules[0].Pattern {
		t.Error("restored template lost its field rules")
	}
}
