// Package docsclient talks to the external documentation provider. The
// core treats every failure here as "no documentation available".
package docsclient

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"pce/internal/config"
	"pce/internal/logging"
)

// LibraryRef identifies one resolvable documentation library.
type LibraryRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"title"`
	Description string  `json:"description"`
	TrustScore  float64 `json:"trustScore"`
}

// DocsResult is one fetched documentation fragment.
type DocsResult struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client is the documentation-lookup contract consumed by the docs
// adapter.
type Client interface {
	ResolveLibrary(ctx context.Context, name string) ([]LibraryRef, error)
	GetDocs(ctx context.Context, ref LibraryRef, topic string, maxTokens int) (*DocsResult, error)
}

// HTTPClient implements Client against a context7-style REST API.
type HTTPClient struct {
	rest   *resty.Client
	logger *logging.Logger
}

// NewHTTPClient creates a documentation client from configuration. The
// API key is read from the configured environment variable; an empty key
// sends unauthenticated requests.
func NewHTTPClient(cfg config.DocsConfig, logger *logging.Logger) *HTTPClient {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond).
		SetHeader("Accept", "application/json")

	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			rest.SetAuthToken(key)
		}
	}

	return &HTTPClient{rest: rest, logger: logger}
}

type searchResponse struct {
	Results []LibraryRef `json:"results"`
}

// ResolveLibrary searches the provider for libraries matching name,
// best match first.
func (c *HTTPClient) ResolveLibrary(ctx context.Context, name string) ([]LibraryRef, error) {
	var out searchResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("query", name).
		SetResult(&out).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("resolve library %q: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resolve library %q: status %d", name, resp.StatusCode())
	}

	return out.Results, nil
}

// GetDocs fetches documentation for a resolved library, scoped to a
// topic and bounded by maxTokens.
func (c *HTTPClient) GetDocs(ctx context.Context, ref LibraryRef, topic string, maxTokens int) (*DocsResult, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("topic", topic).
		SetQueryParam("tokens", fmt.Sprintf("%d", maxTokens)).
		Get(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("get docs for %s: %w", ref.ID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get docs for %s: status %d", ref.ID, resp.StatusCode())
	}

	return &DocsResult{
		Content: string(resp.Body()),
		Metadata: map[string]string{
			"library": ref.Name,
			"id":      ref.ID,
		},
	}, nil
}
