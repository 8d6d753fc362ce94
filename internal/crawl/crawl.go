package crawl

import (
	"context"
	"time"

	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Crawler descends from seed locations, one selector per depth, and builds
// the tree of extracted nodes. A failure below the top level only empties
// the branch it happened in.
type Crawler struct {
	extractor *Extractor
	limit     int
	logger    *zap.Logger

	visited *atomic.Int64
	failed  *atomic.Int64
}

type options struct {
	limit     int
	linkField string
	scope     string
	dynamic   bool
	logger    *zap.Logger
}

type Option func(*options)

// WithLimit bounds how many links of each node are followed. 0 follows all.
func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
	}
}

func WithLinkField(field string) Option {
	return func(o *options) {
		o.linkField = field
	}
}

func WithScope(scope string) Option {
	return func(o *options) {
		o.scope = scope
	}
}

// WithDynamic renders every document of the crawl in a browser.
func WithDynamic(dynamic bool) Option {
	return func(o *options) {
		o.dynamic = dynamic
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New(eval Evaluator, opts ...Option) *Crawler {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Crawler{
		extractor: NewExtractor(eval, o.linkField, o.scope, o.dynamic),
		limit:     o.limit,
		logger:    o.logger,
		visited:   atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
	}
}

// Stats are counted over every crawl run by a Crawler.
type Stats struct {
	Visited        int64
	FailedBranches int64
}

func (c *Crawler) Stats() Stats {
	return Stats{Visited: c.visited.Load(), FailedBranches: c.failed.Load()}
}

// Crawl extracts every seed with sel and descends using queue. The returned
// root is synthetic: it has no url or content and the seeds are its
// children. Only a failure of the seed batch itself is returned.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, sel selector.Selector, queue Queue) (*Node, error) {
	start := time.Now()
	root := &Node{Content: map[string]any{}, Links: append([]string{}, seeds...), Children: []*Node{}}

	children, err := c.descend(ctx, seeds, sel, queue, 0)
	if err != nil {
		return nil, err
	}
	root.Children = children

	c.logger.Info("crawl finished",
		zap.Int("seeds", len(seeds)),
		zap.Int64("visited", c.visited.Load()),
		zap.Int64("failed_branches", c.failed.Load()),
		zap.Duration("elapsed", time.Since(start)))
	return root, nil
}

// CrawlURL crawls a single seed and returns its node directly.
func (c *Crawler) CrawlURL(ctx context.Context, seed string, sel selector.Selector, queue Queue) (*Node, error) {
	root, err := c.Crawl(ctx, []string{seed}, sel, queue)
	if err != nil {
		return nil, err
	}
	return root.Children[0], nil
}

// descend extracts urls with sel and resolves every resulting node. The
// error is that of the batch at this depth, failures further down are
// absorbed by the node whose branch they occurred in.
func (c *Crawler) descend(ctx context.Context, urls []string, sel selector.Selector, queue Queue, depth int) ([]*Node, error) {
	c.logger.Debug("extracting batch",
		zap.Int("depth", depth),
		zap.Int("urls", len(urls)),
		zap.Int("limit", c.limit))

	nodes, err := c.extractor.ExtractMany(ctx, urls, sel, c.limit)
	if err != nil {
		return nil, err
	}
	c.visited.Add(int64(len(nodes)))

	var wg conc.WaitGroup
	for _, node := range nodes {
		if queue.Empty() || len(node.Links) == 0 {
			continue
		}
		next, rest, _ := queue.Pop()
		node := node
		wg.Go(func() {
			c.resolve(ctx, node, next, rest, depth+1)
		})
	}
	wg.Wait()

	return nodes, nil
}

// resolve runs the descent below node and attaches the result. It is the only
// writer of node.Children.
func (c *Crawler) resolve(ctx context.Context, node *Node, sel selector.Selector, queue Queue, depth int) {
	children, err := c.descend(ctx, node.Links, sel, queue, depth)
	if err != nil {
		c.failed.Inc()
		c.logger.Warn("branch failed, keeping crawl going",
			zap.String("url", node.URL),
			zap.Int("depth", depth),
			zap.Error(err))
		node.Error = err.Error()
		return
	}
	node.Children = children
}
