// internal/template/template.go

// Package template holds the curated extraction templates and the
// domain-to-template mapping. Templates are immutable reference data:
// registering a template under an existing name creates a new version
// rather than mutating the old one in place.
package template

import (
	"fmt"
	"strings"

	"github.com/valeran/chartex/internal/pagemodel"
)

// Common errors
var (
	ErrEmptyName        = fmt.Errorf("template name cannot be empty")
	ErrEmptyItemPattern = fmt.Errorf("template item pattern cannot be empty")
	ErrNoContainer      = fmt.Errorf("template container selector cannot be empty")
)

// GenericName is the name of the fallback template. It is registered at
// startup, always resolvable and can never be retired or unbound.
const GenericName = "generic"

// NavigationSpec describes how a fetch collaborator should reach the
// content before the page model is captured. The engine itself never acts
// on it; it is carried for the browser fetcher.
type NavigationSpec struct {
	WaitFor         string `yaml:"wait_for,omitempty" json:"wait_for,omitempty"`
	ScrollDiscovery bool   `yaml:"scroll_discovery,omitempty" json:"scroll_discovery,omitempty"`
}

// Selector matches page model nodes by role and, optionally, by substring
// of the accessible name or by attribute value.
type Selector struct {
	Role         pagemodel.Role `yaml:"role" json:"role"`
	NameContains string         `yaml:"name_contains,omitempty" json:"name_contains,omitempty"`
	Attr         string         `yaml:"attr,omitempty" json:"attr,omitempty"`
	AttrContains string         `yaml:"attr_contains,omitempty" json:"attr_contains,omitempty"`
}

// IsZero reports whether the selector matches nothing (no criteria set).
func (s Selector) IsZero() bool {
	return s.Role == "" && s.NameContains == "" && s.Attr == ""
}

// Matches reports whether the node satisfies every criterion of the
// selector. A zero-role selector matches any role.
func (s Selector) Matches(n *pagemodel.Node) bool {
	if n == nil {
		return false
	}
	if s.Role != "" && n.Role != s.Role {
		return false
	}
	if s.NameContains != "" && !strings.Contains(strings.ToLower(n.Name), strings.ToLower(s.NameContains)) {
		return false
	}
	if s.Attr != "" {
		val := n.Attr(s.Attr)
		if val == "" {
			return false
		}
		if s.AttrContains != "" && !strings.Contains(strings.ToLower(val), strings.ToLower(s.AttrContains)) {
			return false
		}
	}
	return true
}

// FieldRule is one extraction strategy configuration for a single field.
// Rules are data, not code: a template carries an ordered list per field and
// the extractor tries them in priority order until one yields a valid value.
type FieldRule struct {
	// Strategy is one of "attr", "heading", "sibling", "regex".
	Strategy string `yaml:"strategy" json:"strategy"`

	// Attr names the node attribute to read (strategy "attr").
	Attr string `yaml:"attr,omitempty" json:"attr,omitempty"`

	// Level restricts heading extraction to a heading level; 0 accepts any
	// (strategy "heading").
	Level int `yaml:"level,omitempty" json:"level,omitempty"`

	// Offset selects the nth text-bearing child, counting from 0
	// (strategy "sibling").
	Offset int `yaml:"offset,omitempty" json:"offset,omitempty"`

	// Pattern is a regular expression with a capture group applied to the
	// item's flattened text (strategy "regex").
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Group selects the capture group; defaults to 1.
	Group int `yaml:"group,omitempty" json:"group,omitempty"`
}

// CountRange bounds the sane number of extracted items, inclusive on both
// ends. An attempt whose item count falls outside the range is at best
// partial, never a success.
type CountRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether n falls within the inclusive range.
func (r CountRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// Template identifies one family of site layouts and the rules to extract
// song records from it.
type Template struct {
	Name           string         `yaml:"name" json:"name"`
	Version        int            `yaml:"version" json:"version"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	Navigation     NavigationSpec `yaml:"navigation,omitempty" json:"navigation,omitempty"`
	Container      Selector       `yaml:"container" json:"container"`
	ItemPattern    Selector       `yaml:"item_pattern" json:"item_pattern"`
	TitleRules     []FieldRule    `yaml:"title_rules" json:"title_rules"`
	ArtistRules    []FieldRule    `yaml:"artist_rules" json:"artist_rules"`
	MetadataFields []string       `yaml:"metadata_fields,omitempty" json:"metadata_fields,omitempty"`
	ExpectedCount  CountRange     `yaml:"expected_count" json:"expected_count"`
}

// Validate rejects structurally unusable templates. A template without an
// item pattern can never enumerate entries and is refused at registration.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.ItemPattern.IsZero() {
		return ErrEmptyItemPattern
	}
	if t.Container.IsZero() {
		return ErrNoContainer
	}
	if t.ExpectedCount.Min < 0 {
		return fmt.Errorf("expected count min must be non-negative, got %d", t.ExpectedCount.Min)
	}
	if t.ExpectedCount.Max > 0 && t.ExpectedCount.Max < t.ExpectedCount.Min {
		return fmt.Errorf("expected count max %d below min %d", t.ExpectedCount.Max, t.ExpectedCount.Min)
	}
	for i, rule := range append(append([]FieldRule{}, t.TitleRules...), t.ArtistRules...) {
		if err := validateFieldRule(rule); err != nil {
			return fmt.Errorf("field rule %d invalid: %w", i, err)
		}
	}
	return nil
}

func validateFieldRule(rule FieldRule) error {
	switch rule.Strategy {
	case "attr":
		if rule.Attr == "" {
			return fmt.Errorf("attr strategy requires attr name")
		}
	case "heading":
		if rule.Level < 0 || rule.Level > 6 {
			return fmt.Errorf("heading level out of range: %d", rule.Level)
		}
	case "sibling":
		if rule.Offset < 0 {
			return fmt.Errorf("sibling offset must be non-negative, got %d", rule.Offset)
		}
	case "regex":
		if rule.Pattern == "" {
			return fmt.Errorf("regex strategy requires pattern")
		}
	default:
		return fmt.Errorf("unknown strategy: %s", rule.Strategy)
	}
	return nil
}

// Clone returns a deep copy, used when versioning a registered template.
func (t *Template) Clone() *Template {
	out := *t
	out.TitleRules = append([]FieldRule(nil), t.TitleRules...)
	out.ArtistRules = append([]FieldRule(nil), t.ArtistRules...)
	out.MetadataFields = append([]string(nil), t.MetadataFields...)
	return &out
}
