package crawl

import (
	"context"
	"errors"

	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/google/uuid"
)

var ErrNoSeeds = errors.New("no seed urls")

// Job is one crawl request. A Job with Seed set returns the seed's own node,
// a Job with Seeds returns a synthetic root over all of them.
type Job struct {
	ID       uuid.UUID
	Seed     string
	Seeds    []string
	Selector selector.Selector
	Queue    Queue
}

func NewJob(seeds []string, sel selector.Selector, queue Queue) Job {
	return Job{ID: uuid.New(), Seeds: seeds, Selector: sel, Queue: queue}
}

func (c *Crawler) Run(ctx context.Context, j Job) (*Node, error) {
	if j.Seed != "" {
		return c.CrawlURL(ctx, j.Seed, j.Selector, j.Queue)
	}
	if len(j.Seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return c.Crawl(ctx, j.Seeds, j.Selector, j.Queue)
}
