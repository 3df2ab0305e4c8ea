// Package dnsprovider talks to the external DNS/hosting provider that
// serves custom domains.
package dnsprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linkpress/internal/domain/deletion"
)

// Config holds provider API settings.
type Config struct {
	// BaseURL of the provider API, e.g. "https://api.hosting.example".
	BaseURL string

	// Token is the bearer token for the provider account.
	Token string

	// ProjectID scopes domain operations to our hosting project.
	ProjectID string

	// Timeout bounds each outbound call (default 10s).
	Timeout time.Duration
}

var _ deletion.Provider = (*Client)(nil)

// Client is a thin HTTP client for the provider's domain endpoints.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		cfg:  cfg,
	}
}

// ReleaseDomain removes the bound name from our hosting project. A 404
// means the name is already gone and counts as success, so repeated
// detach attempts stay idempotent.
func (c *Client) ReleaseDomain(ctx context.Context, name string) error {
	endpoint := fmt.Sprintf("%s/v1/projects/%s/domains/%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.ProjectID),
		url.PathEscape(name),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("release domain %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("release domain %s: provider returned %d: %s",
		name, resp.StatusCode, strings.TrimSpace(string(body)))
}
