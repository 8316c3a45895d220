package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds each individual authority call.
const DefaultTimeout = 10 * time.Second

// Client issues the five authority operations against a resolved endpoint.
// The endpoint is the API base, e.g. "http://192.168.1.10:8000/api".
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// New creates a client for the given endpoint and bearer credential.
// A zero timeout falls back to DefaultTimeout.
func New(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the API base this client talks to.
func (c *Client) Endpoint() string { return c.endpoint }

// do issues one request and decodes a 2xx response body into out (unless
// out is nil). Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts the {"error": "..."} body the authority sends with
// failures. A missing or malformed body is not itself an error.
func errorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}

// ListEvents fetches the full snapshot with up to historyLimit history rows
// per event.
func (c *Client) ListEvents(ctx context.Context, historyLimit int) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/events?history_limit=%d", historyLimit)
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent creates an event and returns it with the authority-assigned
// identifier.
func (c *Client) CreateEvent(ctx context.Context, payload EventPayload) (Event, error) {
	var created Event
	if err := c.do(ctx, http.MethodPost, "/events", payload, &created); err != nil {
		return Event{}, err
	}
	return created, nil
}

// UpdateEvent replaces an event's fields.
func (c *Client) UpdateEvent(ctx context.Context, id int64, payload EventPayload) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/events/%d", id), payload, nil)
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/events/%d", id), nil, nil)
}

// CompleteEvent records a completion. A nil doneDate lets the authority
// default to its current date.
func (c *Client) CompleteEvent(ctx context.Context, id int64, payload CompletePayload) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/events/%d/complete", id), payload, nil)
}

// Health pings the authority.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}
