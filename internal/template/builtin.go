// internal/template/builtin.go
package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/valeran/chartex/internal/pagemodel"
)

// BuiltinTemplates returns the curated startup template set. The families
// mirror the site archetypes seen in production: numbered chart pages,
// editorial long-form lists, JavaScript-rendered card layouts, and a
// generic fallback for unknown sites.
func BuiltinTemplates() []*Template {
	return []*Template{
		{
			Name:        "billboard_style",
			Description: "chart pages with long numbered lists",
			Navigation:  NavigationSpec{WaitFor: "ol li, ul li", ScrollDiscovery: true},
			Container:   Selector{Role: pagemodel.RoleMain},
			ItemPattern: Selector{Role: pagemodel.RoleListItem},
			TitleRules: []FieldRule{
				{Strategy: "attr", Attr: "data-title"},
				{Strategy: "heading", Level: 3},
				{Strategy: "regex", Pattern: `^\s*\d+[.)]?\s*(.+?)\s+[-\x{2013}]\s+.+$`, Group: 1},
				{Strategy: "regex", Pattern: `^(.+?)\s+[-\x{2013}]\s+.+$`, Group: 1},
			},
			ArtistRules: []FieldRule{
				{Strategy: "attr", Attr: "data-artist"},
				{Strategy: "sibling", Offset: 1},
				{Strategy: "regex", Pattern: `^\s*\d+[.)]?\s*.+?\s+[-\x{2013}]\s+(.+)$`, Group: 1},
				{Strategy: "regex", Pattern: `^.+?\s+[-\x{2013}]\s+(.+)$`, Group: 1},
			},
			MetadataFields: []string{"peak", "weeks", "last_week"},
			ExpectedCount:  CountRange{Min: 50, Max: 200},
		},
		{
			Name:        "editorial_style",
			Description: "article-style best-of lists with heading per entry",
			Navigation:  NavigationSpec{WaitFor: "article"},
			Container:   Selector{Role: pagemodel.RoleMain},
			ItemPattern: Selector{Role: pagemodel.RoleHeading},
			TitleRules: []FieldRule{
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?(.+?):\s+"(.+)"$`, Group: 2},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?"(.+?)"\s*(?:[-\x{2013}]|by)\s*.+$`, Group: 1},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?.+?\s+[-\x{2013}]\s+(.+)$`, Group: 1},
				{Strategy: "sibling", Offset: 0},
			},
			ArtistRules: []FieldRule{
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?(.+?):\s+".+"$`, Group: 1},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?".+?"\s*(?:[-\x{2013}]|by)\s*(.+)$`, Group: 1},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?(.+?)\s+[-\x{2013}]\s+.+$`, Group: 1},
				{Strategy: "sibling", Offset: 1},
			},
			MetadataFields: []string{"label", "album"},
			ExpectedCount:  CountRange{Min: 10, Max: 100},
		},
		{
			Name:        "complex_js_style",
			Description: "JavaScript-heavy card layouts, attribute-first extraction",
			Navigation:  NavigationSpec{WaitFor: "li", ScrollDiscovery: true},
			Container:   Selector{Role: pagemodel.RoleGeneric, Attr: "class", AttrContains: "list"},
			ItemPattern: Selector{Role: pagemodel.RoleListItem},
			TitleRules: []FieldRule{
				{Strategy: "attr", Attr: "data-title"},
				{Strategy: "attr", Attr: "aria-label"},
				{Strategy: "heading"},
				{Strategy: "regex", Pattern: `^(.+?)\s+[-\x{2013}]\s+.+$`, Group: 1},
			},
			ArtistRules: []FieldRule{
				{Strategy: "attr", Attr: "data-artist"},
				{Strategy: "sibling", Offset: 1},
				{Strategy: "regex", Pattern: `^.+?\s+[-\x{2013}]\s+(.+)$`, Group: 1},
			},
			ExpectedCount: CountRange{Min: 10, Max: 50},
		},
		{
			Name:        GenericName,
			Description: "fallback for unknown sites",
			Container:   Selector{Role: pagemodel.RoleMain},
			ItemPattern: Selector{Role: pagemodel.RoleListItem},
			TitleRules: []FieldRule{
				{Strategy: "attr", Attr: "data-title"},
				{Strategy: "heading"},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?(.+?)\s+[-\x{2013}]\s+.+$`, Group: 1},
				{Strategy: "regex", Pattern: `^"(.+?)"\s+by\s+.+$`, Group: 1},
				{Strategy: "sibling", Offset: 0},
			},
			ArtistRules: []FieldRule{
				{Strategy: "attr", Attr: "data-artist"},
				{Strategy: "regex", Pattern: `^(?:\d+[.)]\s*)?.+?\s+[-\x{2013}]\s+(.+)$`, Group: 1},
				{Strategy: "regex", Pattern: `^".+?"\s+by\s+(.+)$`, Group: 1},
				{Strategy: "sibling", Offset: 1},
			},
			ExpectedCount: CountRange{Min: 2, Max: 200},
		},
	}
}

// BuiltinDomainMappings returns the curated domain bindings carried over
// from production observation of the major music publications.
func BuiltinDomainMappings() map[string]string {
	return map[string]string{
		"billboard.com":     "billboard_style",
		"pitchfork.com":     "editorial_style",
		"npr.org":           "editorial_style",
		"theguardian.com":   "editorial_style",
		"rollingstone.com":  "editorial_style",
		"stereogum.com":     "editorial_style",
		"pastemagazine.com": "editorial_style",
		"consequence.net":   "editorial_style",
		"spin.com":          "editorial_style",
		"complex.com":       "complex_js_style",
	}
}

// templateFile is the YAML document shape for user-provided template sets.
type templateFile struct {
	Templates []*Template       `yaml:"templates"`
	Domains   map[string]string `yaml:"domains,omitempty"`
}

// LoadFile registers templates and domain bindings from a YAML file on top
// of the builtin set.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse template file: %w", err)
	}

	for _, t := range file.Templates {
		if err := s.Register(t); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}
	for domain, name := range file.Domains {
		if err := s.Bind(domain, name); err != nil {
			return fmt.Errorf("domain %q: %w", domain, err)
		}
	}
	return nil
}
