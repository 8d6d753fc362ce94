package crawl

import (
	"context"
	"fmt"

	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/multierr"
)

// Evaluator fetches url and applies sel to the document, restricted to scope
// when it is not empty. It must be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, url, scope string, sel selector.Selector, dynamic bool) (map[string]any, error)
}

// BatchError reports that at least one document of a batch could not be
// extracted. The nodes of the batch that did succeed are discarded.
type BatchError struct {
	URLs []string
	Err  error
}

func (e *BatchError) Error() string {
	failures := e.Failures()
	return fmt.Sprintf("batch of %d urls failed (%d failures): %s", len(e.URLs), len(failures), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Failures lists the individual extraction errors of the batch.
func (e *BatchError) Failures() []error {
	return multierr.Errors(e.Err)
}

// Extractor turns locations into Nodes.
type Extractor struct {
	eval      Evaluator
	linkField string
	scope     string
	dynamic   bool
}

func NewExtractor(eval Evaluator, linkField, scope string, dynamic bool) *Extractor {
	if linkField == "" {
		linkField = DefaultLinkField
	}
	return &Extractor{eval: eval, linkField: linkField, scope: scope, dynamic: dynamic}
}

// ExtractNode evaluates sel against url. A document yielding nothing still
// produces a node, with empty content and no links.
func (e *Extractor) ExtractNode(ctx context.Context, url string, sel selector.Selector) (*Node, error) {
	result, err := e.eval.Evaluate(ctx, url, e.scope, sel, e.dynamic)
	if err != nil {
		return nil, err
	}
	return newNode(url, result, e.linkField), nil
}

// ExtractMany extracts every url concurrently and returns the nodes in the
// order of urls. A positive limit keeps only the first limit urls. The batch
// fails as a whole when any single url fails.
func (e *Extractor) ExtractMany(ctx context.Context, urls []string, sel selector.Selector, limit int) ([]*Node, error) {
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	if len(urls) == 0 {
		return []*Node{}, nil
	}

	mapper := iter.Mapper[string, *Node]{MaxGoroutines: len(urls)}
	nodes, err := mapper.MapErr(urls, func(url *string) (*Node, error) {
		return e.ExtractNode(ctx, *url, sel)
	})
	if err != nil {
		return nil, &BatchError{URLs: urls, Err: err}
	}
	return nodes, nil
}
