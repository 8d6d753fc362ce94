package crawl

import (
	"github.com/spf13/cast"
)

// DefaultLinkField is the selector field whose value seeds the next depth.
const DefaultLinkField = "hrefs"

// Node is one fetched document in the result tree. Children stays empty until
// the node's own descent finished, and is written only by that descent.
type Node struct {
	URL      string         `json:"url" yaml:"url"`
	Content  map[string]any `json:"content" yaml:"content"`
	Links    []string       `json:"links" yaml:"links"`
	Children []*Node        `json:"children" yaml:"children"`

	// Error is set when the descent below this node failed and was absorbed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newNode(url string, result map[string]any, linkField string) *Node {
	content := make(map[string]any, len(result))
	for k, v := range result {
		if k != linkField {
			content[k] = v
		}
	}
	return &Node{
		URL:      url,
		Content:  content,
		Links:    NormalizeLinks(result[linkField]),
		Children: []*Node{},
	}
}

// NormalizeLinks turns an extracted link field into a list: a single value
// becomes a one element list, nil becomes an empty list. Empty entries are
// dropped.
func NormalizeLinks(v any) []string {
	links := []string{}
	switch v := v.(type) {
	case nil:
	case string:
		links = appendLink(links, v)
	case []string:
		for _, l := range v {
			links = appendLink(links, l)
		}
	case []any:
		for _, l := range v {
			if l == nil {
				continue
			}
			links = appendLink(links, cast.ToString(l))
		}
	default:
		links = appendLink(links, cast.ToString(v))
	}
	return links
}

func appendLink(links []string, l string) []string {
	if l == "" {
		return links
	}
	return append(links, l)
}

// Walk calls fn for n and every node below it, parents first. depth is 0
// for n.
func (n *Node) Walk(fn func(node, parent *Node, depth int)) {
	n.walk(nil, 0, fn)
}

func (n *Node) walk(parent *Node, depth int, fn func(node, parent *Node, depth int)) {
	fn(n, parent, depth)
	for _, c := range n.Children {
		c.walk(n, depth+1, fn)
	}
}
