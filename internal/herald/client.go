// Package herald is a thin client for the Herald secret-management HTTP API.
package herald

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response is kept on GatewayError.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client issues one authenticated request per operation and decodes the
// JSON response. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
	}
}

// Health returns the service status and its provider list.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return nil, err
	}
	var health HealthResponse
	if err := json.Unmarshal(raw, &health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	health.Raw = raw
	return &health, nil
}

// Inventory returns the secret coverage map across all stacks.
func (c *Client) Inventory(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/inventory", nil)
}

// Audit queries the access log. Empty filter fields are left off the query.
func (c *Client) Audit(ctx context.Context, filter AuditFilter) (json.RawMessage, error) {
	qs := url.Values{}
	if filter.Stack != "" {
		qs.Set("stack", filter.Stack)
	}
	if filter.Secret != "" {
		qs.Set("secret", filter.Secret)
	}
	if filter.Hours > 0 {
		qs.Set("hours", strconv.FormatFloat(filter.Hours, 'f', -1, 64))
	}
	path := "/v1/audit"
	if len(qs) > 0 {
		path += "?" + qs.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

// PurgeCache drops every cached secret for stack.
func (c *Client) PurgeCache(ctx context.Context, stack string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/v1/cache/"+url.PathEscape(stack), nil)
}

// Materialize resolves the op:// references in an env template for a stack.
func (c *Client) Materialize(ctx context.Context, req MaterializeRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/materialize/env", req)
}

// Rotate invalidates caches and redeploys the stacks that use itemID.
func (c *Client) Rotate(ctx context.Context, itemID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/rotate/"+url.PathEscape(itemID), nil)
}

// Provision creates or upserts a vault item.
func (c *Client) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/v1/provision", req)
	if err != nil {
		return nil, err
	}
	var resp ProvisionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode provision response: %w", err)
	}
	resp.Raw = raw
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &GatewayError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &GatewayError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &GatewayError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(text)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, &GatewayError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("response is not valid JSON")}
	}
	return json.RawMessage(data), nil
}
