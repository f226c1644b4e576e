// Package client is a Go SDK for the calendar integration API. It keeps a
// local copy of the event list so UIs can render immediately and apply
// optimistic writes that roll back when the server rejects them.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"calsync_server/core/domain"
	"calsync_server/pkg/httputil"
)

// Status is the connection state the UI renders.
type Status string

const (
	StatusChecking     Status = "checking"
	StatusConnected    Status = "connected"
	StatusNeedsReauth  Status = "needsReauth"
	StatusDisconnected Status = "disconnected"
)

// StatusInfo is the payload of GET /integration/status.
type StatusInfo struct {
	Status       Status     `json:"status"`
	Email        string     `json:"email,omitempty"`
	CalendarID   string     `json:"calendar_id,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
	Meta    *meta           `json:"meta,omitempty"`
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type meta struct {
	Total  int    `json:"total,omitempty"`
	Source string `json:"source,omitempty"`
}

// APIError is returned when the server rejects a request.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// NeedsReauth reports whether the server flagged the credential as requiring
// the user to reconnect.
func (e *APIError) NeedsReauth() bool {
	if e.Details == nil {
		return false
	}
	v, ok := e.Details["needs_reauth"].(bool)
	return ok && v
}

// Client talks to the calendar integration API on behalf of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu     sync.RWMutex
	status Status
	events []*domain.CalendarEvent

	// Window of the last LoadEvents call, reused when a successful create
	// refetches the authoritative list.
	windowStart time.Time
	windowEnd   time.Time
	windowSet   bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client. Until the first status fetch completes the reported
// status is "checking".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    httputil.DefaultClient(),
		status:  StatusChecking,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the last known connection state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Events returns a copy of the locally cached event list.
func (c *Client) Events() []*domain.CalendarEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.CalendarEvent, len(c.events))
	copy(out, c.events)
	return out
}

// EventsSnapshot serializes the cached event list. Optimistic writes restore
// this exact byte sequence on failure.
func (c *Client) EventsSnapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.events)
}

// RefreshStatus fetches the connection state. The client reports "checking"
// while the request is in flight.
func (c *Client) RefreshStatus(ctx context.Context) (*StatusInfo, error) {
	c.setStatus(StatusChecking)

	var info StatusInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/integration/status", nil, &info, nil); err != nil {
		c.setStatus(StatusDisconnected)
		return nil, err
	}

	c.setStatus(info.Status)
	return &info, nil
}

// ConnectURL requests the Google consent URL to open in a browser.
func (c *Client) ConnectURL(ctx context.Context) (string, error) {
	var data struct {
		AuthURL string `json:"auth_url"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/integration/connect", nil, &data, nil); err != nil {
		return "", err
	}
	return data.AuthURL, nil
}

// Disconnect removes the integration. Safe to call when already disconnected.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/integration/", nil, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.status = StatusDisconnected
	c.events = nil
	c.mu.Unlock()
	return nil
}

// LoadEvents fetches events for the window into the local cache and returns
// them together with the serving source ("cache" or "live").
func (c *Client) LoadEvents(ctx context.Context, start, end time.Time, forceLive bool) ([]*domain.CalendarEvent, string, error) {
	path := fmt.Sprintf("/api/v1/integration/events?timeMin=%s&timeMax=%s",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if forceLive {
		path += "&forceLive=true"
	}

	var events []*domain.CalendarEvent
	var m meta
	if err := c.do(ctx, http.MethodGet, path, nil, &events, &m); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.events = events
	c.windowStart = start
	c.windowEnd = end
	c.windowSet = true
	c.mu.Unlock()
	return events, m.Source, nil
}

// CreateEvent applies the draft to the local cache immediately, then writes
// it to the server. If the server rejects it the cache is restored to the
// exact pre-write snapshot and the error is returned.
func (c *Client) CreateEvent(ctx context.Context, draft *domain.EventDraft) (*domain.CalendarEvent, error) {
	snapshot, err := c.EventsSnapshot()
	if err != nil {
		return nil, err
	}

	optimistic := &domain.CalendarEvent{
		ProviderEventID: "pending-" + uuid.NewString(),
		Title:           draft.Title,
		Description:     draft.Description,
		Location:        draft.Location,
		StartTime:       draft.StartTime,
		EndTime:         draft.EndTime,
		IsAllDay:        draft.IsAllDay,
		Timezone:        draft.Timezone,
		Status:          domain.EventStatusTentative,
		Attendees:       draft.Attendees,
	}

	c.mu.Lock()
	c.events = append(c.events, optimistic)
	c.mu.Unlock()

	var created domain.CalendarEvent
	if err := c.do(ctx, http.MethodPost, "/api/v1/integration/events", draft, &created, nil); err != nil {
		c.restore(snapshot)
		return nil, err
	}

	// The provider may have adjusted fields (a real id, normalized times),
	// so the optimistic entry is discarded in favor of a refetched list.
	if err := c.refetchEvents(ctx); err != nil {
		// The list must not stay inconsistent with the server: keep the
		// event the server returned in place of the placeholder.
		c.mu.Lock()
		for i, ev := range c.events {
			if ev.ProviderEventID == optimistic.ProviderEventID {
				c.events[i] = &created
				break
			}
		}
		c.mu.Unlock()
	}
	return &created, nil
}

// refetchEvents reloads the cached list for the last loaded window.
func (c *Client) refetchEvents(ctx context.Context) error {
	c.mu.RLock()
	start, end, ok := c.windowStart, c.windowEnd, c.windowSet
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no event window loaded")
	}
	_, _, err := c.LoadEvents(ctx, start, end, false)
	return err
}

// Sync asks the server to reconcile its mirror for the window.
func (c *Client) Sync(ctx context.Context, start, end time.Time) (*domain.SyncStats, error) {
	body := map[string]string{
		"timeMin": start.UTC().Format(time.RFC3339),
		"timeMax": end.UTC().Format(time.RFC3339),
	}

	var stats domain.SyncStats
	if err := c.do(ctx, http.MethodPost, "/api/v1/integration/sync", body, &stats, nil); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) restore(snapshot []byte) {
	var events []*domain.CalendarEvent
	if err := json.Unmarshal(snapshot, &events); err != nil {
		return
	}
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}, m *meta) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "UNKNOWN_ERROR"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		if apiErr.NeedsReauth() {
			c.setStatus(StatusNeedsReauth)
		}
		return apiErr
	}

	if m != nil && env.Meta != nil {
		*m = *env.Meta
	}
	if dest != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, dest)
	}
	return nil
}
