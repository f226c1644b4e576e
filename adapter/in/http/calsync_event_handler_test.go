package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// fakeEventService records the window it was called with and returns canned
// results.
type fakeEventService struct {
	events []*domain.CalendarEvent
	stats  *domain.SyncStats

	syncStart time.Time
	syncEnd   time.Time
}

func (f *fakeEventService) ListEvents(_ context.Context, _ uuid.UUID, _ domain.EventWindow, _ bool) ([]*domain.CalendarEvent, in.EventSource, error) {
	return f.events, in.SourceCache, nil
}

func (f *fakeEventService) CreateEvent(_ context.Context, _ uuid.UUID, _ *domain.EventDraft) (*domain.CalendarEvent, error) {
	return nil, nil
}

func (f *fakeEventService) Sync(_ context.Context, _ uuid.UUID, start, end time.Time) (*domain.SyncStats, error) {
	f.syncStart = start
	f.syncEnd = end
	if f.stats == nil {
		return &domain.SyncStats{}, nil
	}
	return f.stats, nil
}

func newTestApp(svc in.EventService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uuid.New())
		return c.Next()
	})
	NewEventHandler(svc, 30, 90).Register(app)
	return app
}

func TestSyncHandler_ReadsWindowFromBody(t *testing.T) {
	svc := &fakeEventService{stats: &domain.SyncStats{TotalSynced: 2, Created: 2}}
	app := newTestApp(svc)

	wantStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	body, _ := json.Marshal(map[string]string{
		"timeMin": wantStart.Format(time.RFC3339),
		"timeMax": wantEnd.Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/integration/sync", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !svc.syncStart.Equal(wantStart) || !svc.syncEnd.Equal(wantEnd) {
		t.Errorf("sync window = [%v, %v], want [%v, %v]",
			svc.syncStart, svc.syncEnd, wantStart, wantEnd)
	}
}

func TestSyncHandler_EmptyBodyUsesDefaultWindow(t *testing.T) {
	svc := &fakeEventService{}
	app := newTestApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/integration/sync", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Defaults are now-30d .. now+90d; checked at day granularity to avoid
	// racing the handler's clock.
	window := svc.syncEnd.Sub(svc.syncStart)
	if want := 120 * 24 * time.Hour; window != want {
		t.Errorf("default window span = %v, want %v", window, want)
	}
}

func TestListEventsHandler_MaxResultsCapsResponse(t *testing.T) {
	svc := &fakeEventService{events: []*domain.CalendarEvent{
		{ProviderEventID: "ev-1", Title: "Standup"},
		{ProviderEventID: "ev-2", Title: "Planning"},
		{ProviderEventID: "ev-3", Title: "Retro"},
	}}
	app := newTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/integration/events?maxResults=2", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	var env struct {
		Success bool                    `json:"success"`
		Data    []*domain.CalendarEvent `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(env.Data) != 2 {
		t.Fatalf("events returned = %d, want 2", len(env.Data))
	}
	if env.Data[0].ProviderEventID != "ev-1" || env.Data[1].ProviderEventID != "ev-2" {
		t.Errorf("cap should keep the earliest events, got %q, %q",
			env.Data[0].ProviderEventID, env.Data[1].ProviderEventID)
	}
}
