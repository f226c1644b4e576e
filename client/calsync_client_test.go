package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"calsync_server/core/domain"
)

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	raw, _ := json.Marshal(data)
	writeEnvelope(w, status, envelope{Success: true, Data: raw})
}

func testEvent(id, title string) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		ProviderEventID: id,
		Title:           title,
		StartTime:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Timezone:        "UTC",
		Status:          domain.EventStatusConfirmed,
	}
}

func TestStatus_ChecksUntilFirstFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, 200, StatusInfo{Status: StatusConnected, Email: "user@example.com"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	if got := c.Status(); got != StatusChecking {
		t.Fatalf("initial status = %q, want %q", got, StatusChecking)
	}

	info, err := c.RefreshStatus(context.Background())
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if info.Status != StatusConnected {
		t.Errorf("info.Status = %q, want connected", info.Status)
	}
	if got := c.Status(); got != StatusConnected {
		t.Errorf("Status() = %q, want connected", got)
	}
}

func TestRefreshStatus_MapsNeedsReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, 200, StatusInfo{Status: StatusNeedsReauth})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	if _, err := c.RefreshStatus(context.Background()); err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if got := c.Status(); got != StatusNeedsReauth {
		t.Errorf("Status() = %q, want needsReauth", got)
	}
}

func TestRefreshStatus_NetworkErrorReportsDisconnected(t *testing.T) {
	c := New("http://127.0.0.1:1", "token")
	if _, err := c.RefreshStatus(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %q, want disconnected", got)
	}
}

func TestLoadEvents_PopulatesCacheAndSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("forceLive") == "true" {
			t.Error("forceLive sent without being requested")
		}
		raw, _ := json.Marshal([]*domain.CalendarEvent{testEvent("ev-1", "Standup")})
		writeEnvelope(w, 200, envelope{Success: true, Data: raw, Meta: &meta{Total: 1, Source: "cache"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	events, source, err := c.LoadEvents(context.Background(),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if source != "cache" {
		t.Errorf("source = %q, want cache", source)
	}
	if len(events) != 1 || events[0].ProviderEventID != "ev-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := c.Events(); len(got) != 1 {
		t.Errorf("cached events = %d, want 1", len(got))
	}
}

func TestCreateEvent_RollsBackOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			raw, _ := json.Marshal([]*domain.CalendarEvent{testEvent("ev-1", "Standup")})
			writeEnvelope(w, 200, envelope{Success: true, Data: raw, Meta: &meta{Source: "cache"}})
		case r.Method == http.MethodPost:
			writeEnvelope(w, 400, envelope{
				Success: false,
				Error: &apiError{
					Code:    "INVALID_EVENT_DRAFT",
					Message: "title must not be empty",
					Details: map[string]any{"field": "title"},
				},
			})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	if _, _, err := c.LoadEvents(context.Background(),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), false); err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}

	before, err := c.EventsSnapshot()
	if err != nil {
		t.Fatalf("EventsSnapshot: %v", err)
	}

	draft := &domain.EventDraft{
		StartTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	_, createErr := c.CreateEvent(context.Background(), draft)
	if createErr == nil {
		t.Fatal("expected creation to fail")
	}

	apiErr, ok := createErr.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", createErr)
	}
	if apiErr.Code != "INVALID_EVENT_DRAFT" {
		t.Errorf("code = %q, want INVALID_EVENT_DRAFT", apiErr.Code)
	}

	after, err := c.EventsSnapshot()
	if err != nil {
		t.Fatalf("EventsSnapshot: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("cache not restored byte-for-byte:\nbefore: %s\nafter:  %s", before, after)
	}
}

// TestCreateEvent_RefetchesAfterSuccess checks that a successful create
// discards the optimistic placeholder and reloads the list from the server,
// so provider-side adjustments (real id, shifted times) land in the cache.
func TestCreateEvent_RefetchesAfterSuccess(t *testing.T) {
	created := testEvent("server-id", "Planning")
	// The server nudges the start time, as Google does for some calendars.
	authoritative := testEvent("server-id", "Planning")
	authoritative.StartTime = authoritative.StartTime.Add(15 * time.Minute)

	var serverHasEvent bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list := []*domain.CalendarEvent{testEvent("ev-1", "Standup")}
			if serverHasEvent {
				list = append(list, authoritative)
			}
			raw, _ := json.Marshal(list)
			writeEnvelope(w, 200, envelope{Success: true, Data: raw, Meta: &meta{Source: "cache"}})
		case http.MethodPost:
			serverHasEvent = true
			writeData(w, 201, created)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	if _, _, err := c.LoadEvents(context.Background(),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), false); err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}

	draft := &domain.EventDraft{
		Title:     "Planning",
		StartTime: created.StartTime,
		EndTime:   created.EndTime,
	}
	result, err := c.CreateEvent(context.Background(), draft)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if result.ProviderEventID != "server-id" {
		t.Errorf("ProviderEventID = %q, want server-id", result.ProviderEventID)
	}

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("cached events = %d, want 2", len(events))
	}
	for _, ev := range events {
		if ev.ProviderEventID == "server-id" && !ev.StartTime.Equal(authoritative.StartTime) {
			t.Errorf("cache holds the optimistic start %v, want the server's %v",
				ev.StartTime, authoritative.StartTime)
		}
	}
}

// TestCreateEvent_SwapsPlaceholderWithoutWindow covers the degenerate case
// where no list was ever loaded: there is no window to refetch, so the
// placeholder is swapped for the event the server returned.
func TestCreateEvent_SwapsPlaceholderWithoutWindow(t *testing.T) {
	created := testEvent("server-id", "Planning")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		writeData(w, 201, created)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	draft := &domain.EventDraft{
		Title:     "Planning",
		StartTime: created.StartTime,
		EndTime:   created.EndTime,
	}

	if _, err := c.CreateEvent(context.Background(), draft); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	events := c.Events()
	if len(events) != 1 {
		t.Fatalf("cached events = %d, want 1", len(events))
	}
	if events[0].ProviderEventID != "server-id" {
		t.Errorf("cache still holds optimistic entry: %q", events[0].ProviderEventID)
	}
}

func TestCreateEvent_ReauthErrorFlipsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 401, envelope{
			Success: false,
			Error: &apiError{
				Code:    "REAUTH_REQUIRED",
				Message: "calendar connection needs to be re-authorized",
				Details: map[string]any{"needs_reauth": true},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	draft := &domain.EventDraft{
		Title:     "Checkup",
		StartTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	_, err := c.CreateEvent(context.Background(), draft)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if !apiErr.NeedsReauth() {
		t.Error("NeedsReauth() = false, want true")
	}
	if got := c.Status(); got != StatusNeedsReauth {
		t.Errorf("Status() = %q, want needsReauth", got)
	}
}

func TestSync_ReturnsStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("sync request body: %v", err)
		}
		if body["timeMin"] != "2025-03-01T00:00:00Z" || body["timeMax"] != "2025-04-01T00:00:00Z" {
			t.Errorf("sync window body = %v", body)
		}
		writeData(w, 200, domain.SyncStats{TotalSynced: 5, Created: 3, Updated: 2, Deleted: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	stats, err := c.Sync(context.Background(),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.TotalSynced != 5 || stats.Created != 3 || stats.Updated != 2 || stats.Deleted != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDisconnect_ClearsLocalState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	c.mu.Lock()
	c.events = []*domain.CalendarEvent{testEvent("ev-1", "Standup")}
	c.status = StatusConnected
	c.mu.Unlock()

	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := c.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %q, want disconnected", got)
	}
	if got := c.Events(); len(got) != 0 {
		t.Errorf("events after disconnect = %d, want 0", len(got))
	}
}
