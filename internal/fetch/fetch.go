package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

const DefaultAttempts = 5

// FetchError is returned once every attempt for a request has failed. It keeps
// whatever the last attempt saw: a transport error or a non 200 status.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempts: %s", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: status %d", e.URL, e.Attempts, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Fetcher struct {
	transport Transport
	logger    *zap.Logger
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

func NewFetcher(t Transport, opts ...Option) *Fetcher {
	f := &Fetcher{transport: t, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch sends spec until the transport answers with status 200 or
// maxAttempts attempts have been made. Retries are immediate and identical.
// A non positive maxAttempts means DefaultAttempts.
func (f *Fetcher) Fetch(ctx context.Context, spec RequestSpec, maxAttempts int) ([]byte, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultAttempts
	}

	ferr := &FetchError{URL: spec.URL}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ferr.Attempts = attempt

		resp, err := f.attempt(ctx, spec)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}

		ferr.Err = err
		ferr.StatusCode = 0
		if resp != nil {
			ferr.StatusCode = resp.StatusCode
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("url", spec.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("status", ferr.StatusCode),
			zap.Error(err))

		if ctx.Err() != nil {
			if ferr.Err == nil {
				ferr.Err = ctx.Err()
			}
			break
		}
	}
	return nil, ferr
}

// attempt runs one Send. A panic inside the transport counts as a failed
// attempt instead of taking the crawl down.
func (f *Fetcher) attempt(ctx context.Context, spec RequestSpec) (resp *Response, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		ctx := ctx
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}
		resp, err = f.transport.Send(ctx, spec)
	})
	if r := pc.Recovered(); r != nil {
		return nil, r.AsError()
	}
	if err == nil && resp == nil {
		err = fmt.Errorf("transport returned no response for %s", spec.URL)
	}
	return resp, err
}
