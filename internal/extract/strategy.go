// internal/extract/strategy.go
package extract

import (
	"regexp"
	"strings"

	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/template"
)

// Strategy name constants, in descending order of trust.
const (
	StrategyAttr    = "attr"
	StrategyHeading = "heading"
	StrategySibling = "sibling"
	StrategyRegex   = "regex"
)

// fieldStrategy is one concrete way to pull a field value out of an item
// node. Strategies are tried in the template's priority order; the first
// one producing a non-empty, length-valid string wins. A strategy that
// cannot apply simply yields nothing, it never aborts the extraction.
type fieldStrategy interface {
	Name() string
	TryExtract(item *pagemodel.Node) (string, bool)
}

// newFieldStrategy builds the tagged strategy variant for a rule. An
// unusable rule (bad regex, unknown strategy) returns nil and is skipped.
func newFieldStrategy(rule template.FieldRule) fieldStrategy {
	switch rule.Strategy {
	case StrategyAttr:
		if rule.Attr == "" {
			return nil
		}
		return &attrStrategy{attr: rule.Attr}
	case StrategyHeading:
		return &headingStrategy{level: rule.Level}
	case StrategySibling:
		return &siblingStrategy{offset: rule.Offset}
	case StrategyRegex:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil
		}
		group := rule.Group
		if group <= 0 {
			group = 1
		}
		return &regexStrategy{re: re, group: group}
	default:
		return nil
	}
}

// compileRules converts a template's rule list into executable strategies,
// dropping the unusable ones.
func compileRules(rules []template.FieldRule) []fieldStrategy {
	out := make([]fieldStrategy, 0, len(rules))
	for _, rule := range rules {
		if s := newFieldStrategy(rule); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// attrStrategy reads a named attribute from the item node or the first
// descendant carrying it.
type attrStrategy struct {
	attr string
}

func (s *attrStrategy) Name() string { return StrategyAttr }

func (s *attrStrategy) TryExtract(item *pagemodel.Node) (string, bool) {
	node := item.FindFirst(func(n *pagemodel.Node) bool {
		return n.Attr(s.attr) != ""
	})
	if node == nil {
		return "", false
	}
	return node.Attr(s.attr), true
}

// headingStrategy takes the accessible name of the first heading in the
// item's subtree, optionally restricted to one heading level.
type headingStrategy struct {
	level int
}

func (s *headingStrategy) Name() string { return StrategyHeading }

func (s *headingStrategy) TryExtract(item *pagemodel.Node) (string, bool) {
	node := item.FindFirst(func(n *pagemodel.Node) bool {
		if n.Role != pagemodel.RoleHeading {
			return false
		}
		return s.level == 0 || n.Level == s.level
	})
	if node == nil || node.Name == "" {
		return "", false
	}
	return node.Name, true
}

// siblingStrategy takes the nth text-bearing part of the item in document
// order. For a leaf item the parts are split on the known separators, so
// offset 0 is the first segment and offset 1 the second.
type siblingStrategy struct {
	offset int
}

func (s *siblingStrategy) Name() string { return StrategySibling }

var siblingSeparators = regexp.MustCompile(`\s+[-\x{2013}\x{2014}]\s+|:\s+`)

func (s *siblingStrategy) TryExtract(item *pagemodel.Node) (string, bool) {
	parts := textParts(item)
	if len(parts) == 1 {
		parts = siblingSeparators.Split(parts[0], -1)
	}
	if s.offset >= len(parts) {
		return "", false
	}
	value := strings.TrimSpace(parts[s.offset])
	if value == "" {
		return "", false
	}
	return value, true
}

// textParts collects the named pieces of an item subtree in document order.
func textParts(item *pagemodel.Node) []string {
	var parts []string
	item.Walk(func(n *pagemodel.Node) bool {
		if name := strings.TrimSpace(n.Name); name != "" {
			parts = append(parts, name)
		}
		return true
	})
	return parts
}

// regexStrategy applies a capture-group regular expression to the item's
// flattened text.
type regexStrategy struct {
	re    *regexp.Regexp
	group int
}

func (s *regexStrategy) Name() string { return StrategyRegex }

func (s *regexStrategy) TryExtract(item *pagemodel.Node) (string, bool) {
	text := item.Text()
	if text == "" {
		return "", false
	}
	m := s.re.FindStringSubmatch(text)
	if m == nil || s.group >= len(m) {
		return "", false
	}
	value := strings.TrimSpace(m[s.group])
	if value == "" {
		return "", false
	}
	return value, true
}
