package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxPayloadBytes caps how much of the router response is read.
const maxPayloadBytes = 16 << 20

// Fetcher pulls the raw interface payload from the router.
type Fetcher interface {
	Fetch(ctx context.Context) (*Node, error)
}

type RouterClient struct {
	url      string
	username string
	password string
	client   *http.Client
}

func NewRouterClient(cfg *Config) *RouterClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg.TLSConfig()
	c := &RouterClient{
		url: cfg.EndpointURL,
		client: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: transport,
		},
	}
	// basic auth is only sent when both halves are present
	if cfg.HasCredentials() {
		c.username, c.password = cfg.Username, cfg.Password
	}
	return c
}

// Fetch performs one GET. Every failure wraps ErrTransport; a body that is
// not JSON also wraps ErrMalformedPayload.
func (c *RouterClient) Fetch(ctx context.Context) (*Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrTransport, resp.Status, strings.TrimSpace(string(snippet)))
	}

	root, err := DecodeTree(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return root, nil
}
