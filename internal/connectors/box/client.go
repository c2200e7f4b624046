package box

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/custodia-labs/cloudpoll/internal/connectors/ratelimit"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// Client is a thin JSON client for the Box content API.
type Client struct {
	http        *http.Client
	content     *http.Client
	baseURL     string
	rateLimiter *ratelimit.Limiter
}

// NewClient creates a client. httpClient must authorise its requests.
// Its timeout bounds API calls; downloads share its transport but are
// bounded only by their context, since the timeout covers the body read.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	content := *httpClient
	content.Timeout = 0
	return &Client{
		http:        httpClient,
		content:     &content,
		baseURL:     baseURL,
		rateLimiter: ratelimit.New(ratelimit.ProviderBox),
	}
}

// RateLimiter returns the client's rate limiter.
func (c *Client) RateLimiter() *ratelimit.Limiter {
	return c.rateLimiter
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.get(ctx, c.http, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}

// download performs a GET and returns the body for the caller to close.
func (c *Client) download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, c.content, path, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string, query url.Values) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(resp, body)
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"))
			c.rateLimiter.RecordRateLimit(apiErr.RetryAfter)
		}
		return nil, apiErr
	}
	return resp, nil
}
