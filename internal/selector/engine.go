package selector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/AlfredBerg/scrapecrawl/internal/fetch"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var (
	ErrNoStaticTransport  = errors.New("static evaluation requested but no static fetcher is configured")
	ErrNoDynamicTransport = errors.New("dynamic evaluation requested but no dynamic fetcher is configured")
)

// Engine fetches a document and evaluates a selector against it. It holds one
// fetcher per mode, both are shared by every call.
type Engine struct {
	static   *fetch.Fetcher
	dynamic  *fetch.Fetcher
	attempts int
	headers  map[string]string
	timeout  time.Duration
	logger   *zap.Logger
}

type EngineOption func(*Engine)

func WithDynamic(f *fetch.Fetcher) EngineOption {
	return func(e *Engine) {
		e.dynamic = f
	}
}

func WithAttempts(n int) EngineOption {
	return func(e *Engine) {
		e.attempts = n
	}
}

func WithHeaders(h map[string]string) EngineOption {
	return func(e *Engine) {
		e.headers = h
	}
}

// WithRequestTimeout bounds each fetch attempt. Zero keeps attempts unbounded.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(static *fetch.Fetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		static:   static,
		attempts: fetch.DefaultAttempts,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate fetches pageURL, statically or rendered depending on dynamic, and
// applies sel to the elements matched by scope (the whole document when scope
// is empty).
func (e *Engine) Evaluate(ctx context.Context, pageURL, scope string, sel Selector, dynamic bool) (map[string]any, error) {
	f := e.static
	if !dynamic && f == nil {
		return nil, ErrNoStaticTransport
	}
	if dynamic {
		if e.dynamic == nil {
			return nil, ErrNoDynamicTransport
		}
		f = e.dynamic
	}

	spec := fetch.Get(pageURL, e.headers)
	spec.Timeout = e.timeout
	body, err := f.Fetch(ctx, spec, e.attempts)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		e.logger.Debug("page url does not parse, links stay relative", zap.String("url", pageURL), zap.Error(err))
		base = nil
	}

	root := doc.Selection
	if scope != "" {
		root = doc.Find(scope)
	}
	return Evaluate(root, base, sel), nil
}
