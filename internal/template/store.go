// internal/template/store.go
package template

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/valeran/chartex/internal/discovery"
	"github.com/valeran/chartex/internal/store"
)

// Store holds named templates, their version history and the
// domain-to-template mapping. Reads never block writes on unrelated keys;
// the map-level RWMutex only guards the index itself and templates are
// immutable once registered.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Template   // name -> latest version
	versions  map[string][]*Template // name -> all versions, oldest first
	domains   map[string]string      // normalized domain -> template name

	persist store.Store // optional; nil means in-memory only
}

// NewStore creates a template store pre-loaded with the builtin templates
// and domain mappings. persist may be nil.
func NewStore(persist store.Store) *Store {
	s := &Store{
		templates: make(map[string]*Template),
		versions:  make(map[string][]*Template),
		domains:   make(map[string]string),
		persist:   persist,
	}
	for _, t := range BuiltinTemplates() {
		// Builtin templates are known-valid.
		_ = s.Register(t)
	}
	for domain, name := range BuiltinDomainMappings() {
		_ = s.Bind(domain, name)
	}
	return s
}

// Resolve returns the template mapped to the domain, falling back to the
// generic template when no mapping exists. Resolution always succeeds: the
// generic template is registered at construction and cannot be removed.
func (s *Store) Resolve(domain string) *Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.domains[NormalizeDomain(domain)]
	if ok {
		if t, ok := s.templates[name]; ok {
			return t
		}
	}
	return s.templates[GenericName]
}

// Get returns the latest version of a named template.
func (s *Store) Get(name string) (*Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	return t, ok
}

// All returns the latest version of every template.
func (s *Store) All() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out
}

// Register adds a template or versions an existing one. The stored copy is
// independent of the caller's; templates are never mutated in place.
func (s *Store) Register(t *Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	s.mu.Lock()
	stored := t.Clone()
	if prev, ok := s.templates[t.Name]; ok {
		stored.Version = prev.Version + 1
	} else if stored.Version == 0 {
		stored.Version = 1
	}
	s.templates[stored.Name] = stored
	s.versions[stored.Name] = append(s.versions[stored.Name], stored)
	s.mu.Unlock()

	s.persistTemplate(stored)
	return nil
}

// Bind maps a domain to a template name. Only explicit promotion or
// configuration updates the mapping.
func (s *Store) Bind(domain, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return fmt.Errorf("unknown template: %s", name)
	}
	s.domains[NormalizeDomain(domain)] = name
	return nil
}

// DomainsFor returns the domains currently bound to a template name.
func (s *Store) DomainsFor(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for domain, bound := range s.domains {
		if bound == name {
			out = append(out, domain)
		}
	}
	return out
}

// Promote synthesizes a production template from a learned pattern and
// binds it to the domain. The new template inherits the generic template's
// container and item criteria and replaces its field rules with the
// pattern's regular-expression signature at top priority.
func (s *Store) Promote(p *discovery.Pattern, domain string) (*Template, error) {
	if p == nil {
		return nil, fmt.Errorf("pattern cannot be nil")
	}
	if p.State == discovery.PatternRetired {
		return nil, fmt.Errorf("cannot promote retired pattern %s", p.ID)
	}

	base, ok := s.Get(GenericName)
	if !ok {
		return nil, fmt.Errorf("generic template missing")
	}

	t := base.Clone()
	t.Name = promotedName(p, domain)
	t.Version = 0
	t.Description = fmt.Sprintf("learned from pattern %s (%s)", p.Signature, p.ID)
	t.TitleRules = append([]FieldRule{{
		Strategy: "regex",
		Pattern:  p.Pattern,
		Group:    p.TitleGroup,
	}}, base.TitleRules...)
	t.ArtistRules = append([]FieldRule{{
		Strategy: "regex",
		Pattern:  p.Pattern,
		Group:    p.ArtistGroup,
	}}, base.ArtistRules...)

	if err := s.Register(t); err != nil {
		return nil, err
	}
	registered, _ := s.Get(t.Name)
	if err := s.Bind(domain, t.Name); err != nil {
		return nil, err
	}
	return registered, nil
}

// NormalizeDomain lowercases and strips a leading www prefix.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}

func promotedName(p *discovery.Pattern, domain string) string {
	d := strings.ReplaceAll(NormalizeDomain(domain), ".", "_")
	return fmt.Sprintf("learned_%s_%s", d, p.Signature)
}

func (s *Store) persistTemplate(t *Template) {
	if s.persist == nil {
		return
	}
	key := fmt.Sprintf("%s@%d", t.Name, t.Version)
	if err := s.persist.Save(context.Background(), store.KindTemplate, key, t); err != nil {
		// Degrade to in-memory operation; persistence failures are never
		// fatal to extraction.
		log.Printf("template %s not persisted: %v", key, err)
	}
}

// LoadPersisted restores previously registered templates and rebinds any
// domains recorded in the persisted copies. Absence of persisted state is
// not an error.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.List(ctx, store.KindTemplate, func(key string, data []byte) error {
		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			return nil // skip corrupt records
		}
		s.mu.Lock()
		if prev, ok := s.templates[t.Name]; !ok || t.Version > prev.Version {
			s.templates[t.Name] = &t
		}
		s.versions[t.Name] = append(s.versions[t.Name], &t)
		s.mu.Unlock()
		return nil
	})
}
