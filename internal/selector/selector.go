// Package selector turns a declarative field -> rule mapping and a fetched
// document into a result object.
//
// A rule is written the way it is in a plan file:
//
//	title: h1                     first match, text
//	images: [".img@src"]          every match, attribute
//	body: "article@html"          first match, inner html
//	id: "@data-id"                attribute of the scope root
//	meta: {author: ".by"}         nested object
//	items: [{$scope: li, n: b}]   one object per scope match
//
// Fields whose rule matches nothing are left out of the result.
package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ScopeKey is the reserved key of a nested object rule naming the elements
// the object is evaluated against.
const ScopeKey = "$scope"

var ErrInvalidRule = errors.New("invalid selector rule")

// Selector maps output field names to extraction rules.
type Selector map[string]Rule

type Rule struct {
	// CSS selects the matching elements. Empty means the scope root itself.
	CSS string
	// Attr is the attribute to read. Empty reads the text, "html" the inner html.
	Attr string
	// Many collects every match instead of only the first.
	Many bool
	// Fields makes the rule a nested object evaluated against Scope.
	Fields Selector
	Scope  string
}

func (r Rule) nested() bool {
	return r.Fields != nil
}

// ParseRule parses a single string rule such as "a.next@href".
func ParseRule(s string) Rule {
	s = strings.TrimSpace(s)
	css, attr := s, ""
	if i := strings.LastIndex(s, "@"); i >= 0 {
		css, attr = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return Rule{CSS: css, Attr: attr}
}

// Parse builds a Selector from loosely typed data, as produced by decoding
// YAML or JSON into map[string]any.
func Parse(raw map[string]any) (Selector, error) {
	sel := make(Selector, len(raw))
	for field, v := range raw {
		if field == ScopeKey {
			continue
		}
		r, err := parseValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		sel[field] = r
	}
	return sel, nil
}

func parseValue(v any) (Rule, error) {
	switch v := v.(type) {
	case string:
		return ParseRule(v), nil
	case map[string]any:
		return parseObject(v)
	case []any:
		if len(v) != 1 {
			return Rule{}, fmt.Errorf("%w: a list rule holds exactly one element, got %d", ErrInvalidRule, len(v))
		}
		r, err := parseValue(v[0])
		if err != nil {
			return Rule{}, err
		}
		r.Many = true
		return r, nil
	case []string:
		if len(v) != 1 {
			return Rule{}, fmt.Errorf("%w: a list rule holds exactly one element, got %d", ErrInvalidRule, len(v))
		}
		r := ParseRule(v[0])
		r.Many = true
		return r, nil
	default:
		return Rule{}, fmt.Errorf("%w: unsupported rule type %T", ErrInvalidRule, v)
	}
}

func parseObject(m map[string]any) (Rule, error) {
	fields, err := Parse(m)
	if err != nil {
		return Rule{}, err
	}
	scope := ""
	if s, ok := m[ScopeKey]; ok {
		scope, err = cast.ToStringE(s)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %s", ErrInvalidRule, ScopeKey, err)
		}
	}
	return Rule{Fields: fields, Scope: scope}, nil
}

func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	sel, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}

// Fields returns the field names in a stable order.
func (s Selector) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
