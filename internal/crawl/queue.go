package crawl

import (
	"github.com/AlfredBerg/scrapecrawl/internal/selector"
)

// Queue holds the selectors for the depths below the current one, nearest
// first. A Queue is never modified: Pop returns the remainder as a new value,
// so sibling branches can consume the same queue independently.
type Queue struct {
	items []selector.Selector
}

// NewQueue drops nil selectors, they would otherwise stop nothing and
// select nothing.
func NewQueue(selectors ...selector.Selector) Queue {
	items := make([]selector.Selector, 0, len(selectors))
	for _, s := range selectors {
		if s != nil {
			items = append(items, s)
		}
	}
	return Queue{items: items}
}

func (q Queue) Len() int {
	return len(q.items)
}

func (q Queue) Empty() bool {
	return len(q.items) == 0
}

// Pop returns the head selector and the rest of the queue. ok is false when
// the queue is empty.
func (q Queue) Pop() (head selector.Selector, rest Queue, ok bool) {
	if q.Empty() {
		return nil, q, false
	}
	return q.items[0], Queue{items: q.items[1:len(q.items):len(q.items)]}, true
}
