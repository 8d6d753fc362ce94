package fetch

import (
	"context"

	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "scrapecrawl/1.0"

// HTTPTransport fetches documents as served, without running any script.
type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport(userAgent string) *HTTPTransport {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client := resty.New().
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return &HTTPTransport{client: client}
}

// NewHTTPTransportWithClient wraps an existing resty client, mostly useful
// for tests that point the client at an httptest server.
func NewHTTPTransportWithClient(client *resty.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, spec RequestSpec) (*Response, error) {
	req := t.client.R().
		SetContext(ctx).
		SetHeaders(spec.Headers)
	if spec.Body != "" {
		req.SetBody(spec.Body)
	}

	method := spec.Method
	if method == "" {
		method = resty.MethodGet
	}

	resp, err := req.Execute(method, spec.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
