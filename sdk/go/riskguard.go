// Package riskguard is a client for the riskguard risk evaluation API. It is
// meant for backends that relay a browser's session and device cookies.
package riskguard

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

// Config holds the configuration for the riskguard client.
type Config struct {
	// BaseURL is the root URL of the riskguard server.
	// Examples: "https://risk.example.com" or "https://risk.example.com/api/v1"
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// DeviceCookieName is the name of the device token cookie.
	// Default: "rg_device"
	DeviceCookieName string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.DeviceCookieName == "" {
		c.DeviceCookieName = "rg_device"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client calls the riskguard API.
type Client struct {
	cfg Config
}

// NewClient creates a new riskguard client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// Evaluate scores an action for the user owning sessionToken. deviceToken may
// be empty on a first visit; the returned DeviceToken must then be stored and
// sent on every later call.
func (c *Client) Evaluate(ctx context.Context, sessionToken, deviceToken string, req EvaluateRequest) (*EvaluateResponse, error) {
	if sessionToken == "" {
		return nil, ErrNoToken
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("riskguard: failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/risk/evaluate", bytes.NewReader(data), sessionToken)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if deviceToken != "" {
		httpReq.AddCookie(&http.Cookie{Name: c.cfg.DeviceCookieName, Value: deviceToken})
	}

	var resp EvaluateResponse
	httpResp, err := c.do(httpReq, &resp)
	if err != nil {
		return nil, err
	}

	// A freshly minted token arrives as a cookie; prefer it over the body.
	for _, ck := range httpResp.Cookies() {
		if ck.Name == c.cfg.DeviceCookieName && ck.Value != "" {
			resp.DeviceToken = ck.Value
		}
	}
	return &resp, nil
}

// GetEvent fetches one of the user's recorded risk events.
func (c *Client) GetEvent(ctx context.Context, sessionToken, id string) (*Event, error) {
	if sessionToken == "" {
		return nil, ErrNoToken
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, "/risk/events/"+url.PathEscape(id), nil, sessionToken)
	if err != nil {
		return nil, err
	}

	var event Event
	if _, err := c.do(httpReq, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns the user's most recent risk events, newest first. A
// limit of zero uses the server default.
func (c *Client) ListEvents(ctx context.Context, sessionToken string, limit int) ([]*Event, error) {
	if sessionToken == "" {
		return nil, ErrNoToken
	}

	path := "/risk/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	httpReq, err := c.newRequest(ctx, http.MethodGet, path, nil, sessionToken)
	if err != nil {
		return nil, err
	}

	var list eventList
	if _, err := c.do(httpReq, &list); err != nil {
		return nil, err
	}
	return list.Events, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("riskguard: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// do sends req and decodes a 2xx body into out.
func (c *Client) do(req *http.Request, out interface{}) (*http.Response, error) {
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("riskguard: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("riskguard: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, parseAPIError(resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("riskguard: failed to parse response: %w", err)
	}
	return resp, nil
}
