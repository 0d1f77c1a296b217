package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Network performs requests against the real network
type Network interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPNetwork fetches with an http.Client. A zero timeout never gives up.
type HTTPNetwork struct {
	client *http.Client
}

// NewHTTPNetwork creates a network using transport (nil means http.DefaultTransport)
func NewHTTPNetwork(transport http.RoundTripper, timeout time.Duration) *HTTPNetwork {
	return &HTTPNetwork{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Redirects are handed back to the page untouched
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Fetch sends a copy of req, which may be an inbound server request
func (n *HTTPNetwork) Fetch(ctx context.Context, requ *http.Request) (*http.Response, error) {
	body := requ.Body
	if requ.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, requ.Method, requ.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Copy headers
	for key, values := range requ.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if requ.Host != "" {
		req.Host = requ.Host
	}
	if body != http.NoBody {
		req.ContentLength = requ.ContentLength
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
