package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AlfredBerg/scrapecrawl/internal/fetch"
	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// site is an in memory Evaluator: pages maps a url to the result object its
// document yields, fails lists urls whose fetch never succeeds.
type site struct {
	pages map[string]map[string]any
	fails map[string]bool
	delay map[string]time.Duration

	mu      sync.Mutex
	calls   []string
	dynamic []bool
	sels    map[string]selector.Selector
}

func (s *site) Evaluate(ctx context.Context, url, scope string, sel selector.Selector, dynamic bool) (map[string]any, error) {
	if d := s.delay[url]; d > 0 {
		time.Sleep(d)
	}

	s.mu.Lock()
	s.calls = append(s.calls, url)
	s.dynamic = append(s.dynamic, dynamic)
	if s.sels == nil {
		s.sels = map[string]selector.Selector{}
	}
	s.sels[url] = sel
	s.mu.Unlock()

	if s.fails[url] {
		return nil, &fetch.FetchError{URL: url, Attempts: fetch.DefaultAttempts, StatusCode: 500}
	}
	return s.pages[url], nil
}

func (s *site) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

func sel(name string) selector.Selector {
	return selector.Selector{"name": {CSS: name}}
}

func page(name string, links any) map[string]any {
	p := map[string]any{"title": name}
	if links != nil {
		p[DefaultLinkField] = links
	}
	return p
}

func urls(root *Node) []string {
	out := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		out = append(out, c.URL)
	}
	return out
}

func TestNormalizeLinks(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"bare string", "http://a", []string{"http://a"}},
		{"string list", []string{"http://a", "http://b"}, []string{"http://a", "http://b"}},
		{"decoded list", []any{"http://a", nil, "", "http://b"}, []string{"http://a", "http://b"}},
		{"absent", nil, []string{}},
		{"empty string", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLinks(tt.in))
		})
	}
}

func TestExtractNode(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"single": page("one", "http://a"),
		"many":   page("two", []string{"http://a", "http://b"}),
		"none":   page("three", nil),
	}}
	e := NewExtractor(s, "", "", false)

	n, err := e.ExtractNode(context.Background(), "single", sel("h1"))
	require.NoError(t, err)
	assert.Equal(t, "single", n.URL)
	assert.Equal(t, map[string]any{"title": "one"}, n.Content)
	assert.Equal(t, []string{"http://a"}, n.Links)
	assert.Equal(t, []*Node{}, n.Children)

	n, err = e.ExtractNode(context.Background(), "many", sel("h1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, n.Links)

	n, err = e.ExtractNode(context.Background(), "none", sel("h1"))
	require.NoError(t, err)
	assert.Equal(t, []string{}, n.Links)

	n, err = e.ExtractNode(context.Background(), "unknown", sel("h1"))
	require.NoError(t, err, "no result is not an error")
	assert.Empty(t, n.Content)
	assert.Empty(t, n.Links)
}

func TestExtractNodeCustomLinkField(t *testing.T) {
	s := &site{pages: map[string]map[string]any{"p": {"next": "http://n", "hrefs": "kept"}}}
	e := NewExtractor(s, "next", "", false)

	n, err := e.ExtractNode(context.Background(), "p", sel("h1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://n"}, n.Links)
	assert.Equal(t, map[string]any{"hrefs": "kept"}, n.Content)
}

func TestExtractManyPreservesOrder(t *testing.T) {
	s := &site{
		pages: map[string]map[string]any{"u1": page("1", nil), "u2": page("2", nil), "u3": page("3", nil)},
		delay: map[string]time.Duration{"u1": 60 * time.Millisecond, "u3": 30 * time.Millisecond},
	}
	e := NewExtractor(s, "", "", false)

	nodes, err := e.ExtractMany(context.Background(), []string{"u1", "u2", "u3"}, sel("h1"), 0)

	require.NoError(t, err)
	require.Len(t, nodes, 3)
	for i, want := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, want, nodes[i].URL)
	}
	assert.Equal(t, "u2", s.Calls()[0], "u2 should have finished first")
}

func TestExtractManyRunsConcurrently(t *testing.T) {
	in := make([]string, 8)
	delay := map[string]time.Duration{}
	for i := range in {
		in[i] = fmt.Sprintf("u%d", i)
		delay[in[i]] = 100 * time.Millisecond
	}
	e := NewExtractor(&site{delay: delay}, "", "", false)

	start := time.Now()
	nodes, err := e.ExtractMany(context.Background(), in, sel("h1"), 0)

	require.NoError(t, err)
	assert.Len(t, nodes, 8)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExtractManyLimit(t *testing.T) {
	in := make([]string, 10)
	for i := range in {
		in[i] = fmt.Sprintf("u%d", i)
	}
	s := &site{}
	e := NewExtractor(s, "", "", false)

	nodes, err := e.ExtractMany(context.Background(), in, sel("h1"), 3)

	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	assert.Len(t, s.Calls(), 3)
	assert.ElementsMatch(t, []string{"u0", "u1", "u2"}, s.Calls())
}

func TestExtractManyFailsWholeBatch(t *testing.T) {
	s := &site{
		pages: map[string]map[string]any{"ok": page("ok", nil)},
		fails: map[string]bool{"bad1": true, "bad2": true},
	}
	e := NewExtractor(s, "", "", false)

	nodes, err := e.ExtractMany(context.Background(), []string{"ok", "bad1", "bad2"}, sel("h1"), 0)

	assert.Nil(t, nodes)
	var berr *BatchError
	require.ErrorAs(t, err, &berr)
	assert.Len(t, berr.Failures(), 2)
	var ferr *fetch.FetchError
	assert.ErrorAs(t, err, &ferr)
}

func TestQueuePopDoesNotShareState(t *testing.T) {
	a, b := sel("a"), sel("b")
	q := NewQueue(a, nil, b)
	require.Equal(t, 2, q.Len())

	head, rest, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, a, head)
	assert.Equal(t, 1, rest.Len())
	assert.Equal(t, 2, q.Len(), "popping must not consume the original")

	head2, rest2, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, head, head2)
	assert.Equal(t, rest, rest2)

	_, _, ok = NewQueue().Pop()
	assert.False(t, ok)
}

func TestCrawlStopsWhenQueueExhausted(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"A": page("a", []string{"A1", "A2"}),
		"B": page("b", "B1"),
	}}
	c := New(s)

	root, err := c.Crawl(context.Background(), []string{"A", "B"}, sel("h1"), NewQueue())

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, urls(root))
	for _, child := range root.Children {
		assert.NotEmpty(t, child.Links)
		assert.Equal(t, []*Node{}, child.Children)
	}
	assert.ElementsMatch(t, []string{"A", "B"}, s.Calls())
}

func TestCrawlStopsOnEmptyLinks(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"A":  page("a", nil),
		"B":  page("b", "B1"),
		"B1": page("b1", nil),
	}}
	c := New(s)

	root, err := c.Crawl(context.Background(), []string{"A", "B"}, sel("h1"), NewQueue(sel("h2"), sel("h3")))

	require.NoError(t, err)
	a, b := root.Children[0], root.Children[1]
	assert.Equal(t, []*Node{}, a.Children)
	require.Len(t, b.Children, 1)
	assert.Equal(t, "B1", b.Children[0].URL)
	assert.Equal(t, []*Node{}, b.Children[0].Children)
	assert.ElementsMatch(t, []string{"A", "B", "B1"}, s.Calls())
}

func TestCrawlUsesOneSelectorPerDepth(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"root": page("r", []string{"c1", "c2"}),
		"c1":   page("c1", "g1"),
		"c2":   page("c2", "g2"),
		"g1":   page("g1", "deeper"),
		"g2":   page("g2", nil),
	}}
	s0, s1, s2 := sel("s0"), sel("s1"), sel("s2")
	c := New(s)

	n, err := c.CrawlURL(context.Background(), "root", s0, NewQueue(s1, s2))

	require.NoError(t, err)
	assert.Equal(t, "root", n.URL, "a single seed is not wrapped")
	assert.Equal(t, []string{"c1", "c2"}, urls(n))
	assert.Equal(t, []string{"g1"}, urls(n.Children[0]))
	assert.Equal(t, []string{"g2"}, urls(n.Children[1]))
	assert.Equal(t, []*Node{}, n.Children[0].Children[0].Children, "queue is exhausted at depth 2")

	assert.Equal(t, s0, s.sels["root"])
	assert.Equal(t, s1, s.sels["c1"])
	assert.Equal(t, s1, s.sels["c2"])
	assert.Equal(t, s2, s.sels["g1"])
	assert.Equal(t, s2, s.sels["g2"])
	assert.NotContains(t, s.Calls(), "deeper")
}

func TestCrawlIsolatesBranchFailures(t *testing.T) {
	s := &site{
		pages: map[string]map[string]any{
			"A":  page("a", "A1"),
			"B":  page("b", []string{"B1", "B2"}),
			"B1": page("b1", nil),
			"B2": page("b2", nil),
		},
		fails: map[string]bool{"A1": true},
	}
	c := New(s)

	root, err := c.Crawl(context.Background(), []string{"A", "B"}, sel("h1"), NewQueue(sel("h2")))

	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, urls(root))
	a, b := root.Children[0], root.Children[1]
	assert.Equal(t, []*Node{}, a.Children)
	assert.Contains(t, a.Error, "A1")
	assert.Equal(t, []string{"B1", "B2"}, urls(b))
	assert.Empty(t, b.Error)
	assert.Equal(t, Stats{Visited: 4, FailedBranches: 1}, c.Stats())
}

func TestCrawlFailsOnSeedBatch(t *testing.T) {
	s := &site{
		pages: map[string]map[string]any{"A": page("a", nil)},
		fails: map[string]bool{"B": true},
	}
	c := New(s)

	root, err := c.Crawl(context.Background(), []string{"A", "B"}, sel("h1"), NewQueue(sel("h2")))

	assert.Nil(t, root)
	var berr *BatchError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, []string{"A", "B"}, berr.URLs)
}

func TestCrawlAppliesLimitAtEveryDepth(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"A": page("a", []string{"A1", "A2", "A3"}),
		"B": page("b", nil),
		"C": page("c", nil),
	}}
	c := New(s, WithLimit(2))

	root, err := c.Crawl(context.Background(), []string{"A", "B", "C"}, sel("h1"), NewQueue(sel("h2")))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, urls(root))
	assert.Equal(t, []string{"A1", "A2"}, urls(root.Children[0]))
	assert.NotContains(t, s.Calls(), "C")
	assert.NotContains(t, s.Calls(), "A3")
}

func TestCrawlRevisitsWithoutDedup(t *testing.T) {
	s := &site{pages: map[string]map[string]any{
		"A": page("a", []string{"X", "X"}),
		"X": page("x", "A"),
	}}
	c := New(s)

	n, err := c.CrawlURL(context.Background(), "A", sel("h1"), NewQueue(sel("h1"), sel("h1")))

	require.NoError(t, err)
	assert.Equal(t, []string{"X", "X"}, urls(n))
	assert.Equal(t, []string{"A"}, urls(n.Children[0]))
	assert.NotSame(t, n.Children[0], n.Children[1])
}

func TestCrawlPropagatesDynamicFlag(t *testing.T) {
	s := &site{pages: map[string]map[string]any{"A": page("a", "A1"), "A1": page("a1", nil)}}
	c := New(s, WithDynamic(true))

	_, err := c.CrawlURL(context.Background(), "A", sel("h1"), NewQueue(sel("h1")))

	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, s.dynamic)
}

func TestRunJob(t *testing.T) {
	s := &site{pages: map[string]map[string]any{"A": page("a", nil), "B": page("b", nil)}}
	c := New(s)

	n, err := c.Run(context.Background(), Job{Seed: "A", Selector: sel("h1")})
	require.NoError(t, err)
	assert.Equal(t, "A", n.URL)

	root, err := c.Run(context.Background(), NewJob([]string{"A", "B"}, sel("h1"), NewQueue()))
	require.NoError(t, err)
	assert.Empty(t, root.URL)
	assert.Equal(t, []string{"A", "B"}, urls(root))

	_, err = c.Run(context.Background(), Job{})
	assert.True(t, errors.Is(err, ErrNoSeeds))
}

func TestNodeWalk(t *testing.T) {
	leaf := &Node{URL: "c", Children: []*Node{}}
	root := &Node{URL: "a", Children: []*Node{{URL: "b", Children: []*Node{leaf}}}}

	var seen []string
	root.Walk(func(n, parent *Node, depth int) {
		p := ""
		if parent != nil {
			p = parent.URL
		}
		seen = append(seen, fmt.Sprintf("%s<%s@%d", n.URL, p, depth))
	})

	assert.Equal(t, []string{"a<@0", "b<a@1", "c<b@2"}, seen)
}
