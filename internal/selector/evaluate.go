package selector

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// urlAttrs are resolved against the document location.
var urlAttrs = map[string]bool{
	"href":   true,
	"src":    true,
	"action": true,
	"data":   true,
	"poster": true,
}

// Evaluate applies sel to root. base resolves relative link attributes and
// may be nil.
func Evaluate(root *goquery.Selection, base *url.URL, sel Selector) map[string]any {
	out := make(map[string]any, len(sel))
	for field, r := range sel {
		if v, ok := evalRule(root, base, r); ok {
			out[field] = v
		}
	}
	return out
}

func evalRule(root *goquery.Selection, base *url.URL, r Rule) (any, bool) {
	if r.nested() {
		return evalObject(root, base, r)
	}

	matches := root
	if r.CSS != "" {
		matches = root.Find(r.CSS)
	}
	if matches.Length() == 0 {
		return nil, false
	}

	if !r.Many {
		v, ok := value(matches.First(), base, r.Attr)
		return v, ok
	}

	values := make([]string, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		if v, ok := value(s, base, r.Attr); ok {
			values = append(values, v)
		}
	})
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

func evalObject(root *goquery.Selection, base *url.URL, r Rule) (any, bool) {
	scope := root
	if r.Scope != "" {
		scope = root.Find(r.Scope)
	}
	if scope.Length() == 0 {
		return nil, false
	}

	if !r.Many {
		return Evaluate(scope.First(), base, r.Fields), true
	}

	objects := make([]map[string]any, 0, scope.Length())
	scope.Each(func(_ int, s *goquery.Selection) {
		objects = append(objects, Evaluate(s, base, r.Fields))
	})
	return objects, true
}

func value(s *goquery.Selection, base *url.URL, attr string) (string, bool) {
	switch attr {
	case "", "text":
		return strings.Join(strings.Fields(s.Text()), " "), true
	case "html":
		h, err := s.Html()
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(h), true
	}

	v, ok := s.Attr(attr)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if urlAttrs[attr] && base != nil && v != "" {
		if ref, err := url.Parse(v); err == nil {
			v = base.ResolveReference(ref).String()
		}
	}
	return v, true
}
