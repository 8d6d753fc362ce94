package fetch

import (
	"context"
	"net/http"
	"time"
)

// RequestSpec describes one document request. It is built by the caller and
// never modified by the fetcher, every attempt sends the same spec.
type RequestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string

	// Timeout bounds a single attempt. Zero means no deadline.
	Timeout time.Duration
}

// Get returns a GET spec for url with the given headers.
func Get(url string, headers map[string]string) RequestSpec {
	return RequestSpec{Method: http.MethodGet, URL: url, Headers: headers}
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues a single request. Implementations must be safe for
// concurrent use, the crawler keeps many requests in flight on one instance.
type Transport interface {
	Send(ctx context.Context, spec RequestSpec) (*Response, error)
}
