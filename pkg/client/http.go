package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/masa-finance/bot-guardian/api/types"
)

// StatusError is returned when the worker answers with an unexpected
// status code.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error: received status code %d from %s", e.Code, e.Path)
}

// Retryable reports whether the same request may succeed later. Client
// errors such as a wrong API key will not.
func (e *StatusError) Retryable() bool {
	return e.Code < 400 || e.Code >= 500
}

// Client talks to a worker's control surface.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	options    *Options
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if options.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   options.Timeout,
			Transport: transport,
		},
		options: options,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating %s request: %w", method, err)
	}
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}
	return req, nil
}

// Health calls the liveness probe. Any non-200 answer is an error.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending GET request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Path: "/health"}
	}
	return nil
}

// HealthDetailed fetches the detailed probe. A 503 is a valid answer and is
// returned with its snapshot; only transport and decoding failures are
// errors.
func (c *Client) HealthDetailed(ctx context.Context) (*types.HealthSnapshot, int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health/detailed", nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error sending GET request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error reading response body: %w", err)
	}

	var snap types.HealthSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error unmarshaling response (status %d): %w", resp.StatusCode, err)
	}
	return &snap, resp.StatusCode, nil
}

// TriggerRestart sends an uptime-monitor style alert to the restart webhook.
func (c *Client) TriggerRestart(ctx context.Context, alert types.AlertType, monitorID string) (*types.RestartResponse, error) {
	q := url.Values{"alertType": {strconv.Itoa(int(alert))}}
	if monitorID != "" {
		q.Set("monitorID", monitorID)
	}
	return c.restart(ctx, "/webhook/restart", q)
}

// Refresh asks the worker to exit so the supervisor restarts it.
func (c *Client) Refresh(ctx context.Context) (*types.RestartResponse, error) {
	return c.restart(ctx, "/refresh", nil)
}

func (c *Client) restart(ctx context.Context, path string, q url.Values) (*types.RestartResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, q)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending POST request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Path: path}
	}

	var out types.RestartResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	return &out, nil
}
