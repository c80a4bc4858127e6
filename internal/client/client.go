// Package client is the executor's HTTP client for the planner API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gzhole/deskpilot/internal/protocol"
)

// DefaultTimeout bounds each planner request.
const DefaultTimeout = 20 * time.Second

const maxErrorBody = 64 * 1024

// ErrNotFound matches an APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx planner reply.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("planner returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("planner returned HTTP %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A non-positive timeout uses
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the planner address without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Health(ctx context.Context) (protocol.HealthResponse, error) {
	var out protocol.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, req protocol.StartSessionRequest) (protocol.StartSessionResponse, error) {
	var out protocol.StartSessionResponse
	err := c.do(ctx, http.MethodPost, "/v1/session/start", req, &out)
	return out, err
}

func (c *Client) Turn(ctx context.Context, req protocol.TurnRequest) (protocol.TurnResponse, error) {
	var out protocol.TurnResponse
	err := c.do(ctx, http.MethodPost, "/v1/turn", req, &out)
	return out, err
}

func (c *Client) Confirm(ctx context.Context, sessionID string, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error) {
	var out protocol.ConfirmResponse
	err := c.do(ctx, http.MethodPost, "/v1/session/"+url.PathEscape(sessionID)+"/confirm", req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e protocol.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			apiErr.Detail = e.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
