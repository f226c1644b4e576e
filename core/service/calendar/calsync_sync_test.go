package calendar

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// fakeTokenService hands out a canned credential.
type fakeTokenService struct {
	token       *oauth2.Token
	integration *domain.CalendarIntegration
	err         error
	reauthCalls int
}

func (f *fakeTokenService) GetLiveCredential(_ context.Context, _ uuid.UUID) (*oauth2.Token, *domain.CalendarIntegration, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.token, f.integration, nil
}

func (f *fakeTokenService) MarkReauthRequired(_ context.Context, _ uuid.UUID) error {
	f.reauthCalls++
	return nil
}

// fakeProvider returns a fixed listing and records inserts.
type fakeProvider struct {
	listing  *out.ProviderEventList
	listErr  error
	inserted []*out.ProviderEvent
	insertFn func(event *out.ProviderEvent) (*out.ProviderEvent, error)
}

func (f *fakeProvider) ListEvents(_ context.Context, _ *oauth2.Token, _ *out.ProviderEventQuery) (*out.ProviderEventList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeProvider) InsertEvent(_ context.Context, _ *oauth2.Token, _ string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	if f.insertFn != nil {
		return f.insertFn(event)
	}
	f.inserted = append(f.inserted, event)
	stored := *event
	stored.ID = "generated-id"
	return &stored, nil
}

// fakeEventRepo is an in-memory mirror keyed by provider event id.
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.CalendarEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*domain.CalendarEvent)}
}

func (r *fakeEventRepo) ListByWindow(_ context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.CalendarEvent
	for _, e := range r.events {
		if e.UserID == userID && e.StartTime.Before(end) && !e.EndTime.Before(start) {
			clone := *e
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (r *fakeEventRepo) GetByProviderEventID(_ context.Context, userID uuid.UUID, providerEventID string) (*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[providerEventID]
	if !ok || e.UserID != userID {
		return nil, apperr.NotFound("event")
	}
	clone := *e
	return &clone, nil
}

func (r *fakeEventRepo) Upsert(_ context.Context, event *domain.CalendarEvent) (out.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	if _, exists := r.events[event.ProviderEventID]; exists {
		r.events[event.ProviderEventID] = &clone
		return out.UpsertUpdated, nil
	}
	r.events[event.ProviderEventID] = &clone
	return out.UpsertCreated, nil
}

func (r *fakeEventRepo) DeleteAbsent(_ context.Context, userID uuid.UUID, start, end time.Time, keep []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	deleted := 0
	for id, e := range r.events {
		if e.UserID != userID || keepSet[id] {
			continue
		}
		if e.StartTime.Before(end) && !e.EndTime.Before(start) {
			delete(r.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeEventRepo) DeleteAllByUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.events {
		if e.UserID == userID {
			delete(r.events, id)
		}
	}
	return nil
}

// fakeSyncTimeRepo only records sync completion times.
type fakeSyncTimeRepo struct {
	lastSyncedAt *time.Time
}

func (r *fakeSyncTimeRepo) GetByUserID(context.Context, string) (*out.IntegrationEntity, error) {
	return nil, apperr.NotFound("integration")
}
func (r *fakeSyncTimeRepo) Upsert(context.Context, *out.IntegrationEntity) error { return nil }
func (r *fakeSyncTimeRepo) UpdateTokens(context.Context, string, string, string, time.Time) error {
	return nil
}
func (r *fakeSyncTimeRepo) Deactivate(context.Context, string) error { return nil }
func (r *fakeSyncTimeRepo) UpdateLastSyncedAt(_ context.Context, _ string, at time.Time) error {
	r.lastSyncedAt = &at
	return nil
}
func (r *fakeSyncTimeRepo) Delete(context.Context, string) error { return nil }
func (r *fakeSyncTimeRepo) ListDueForSync(context.Context, time.Time, int) ([]*out.IntegrationEntity, error) {
	return nil, nil
}

func testIntegration(userID uuid.UUID) *domain.CalendarIntegration {
	return &domain.CalendarIntegration{
		UserID:     userID,
		CalendarID: "primary",
		IsActive:   true,
	}
}

func providerEvent(id, title string, start time.Time) *out.ProviderEvent {
	return &out.ProviderEvent{
		ID:       id,
		Title:    title,
		Start:    start,
		End:      start.Add(time.Hour),
		Timezone: "UTC",
		Status:   "confirmed",
	}
}

func newTestEventService(provider *fakeProvider, repo *fakeEventRepo) (*EventService, *fakeTokenService, *fakeSyncTimeRepo) {
	userID := uuid.New()
	tokenSvc := &fakeTokenService{
		token:       &oauth2.Token{AccessToken: "access"},
		integration: testIntegration(userID),
	}
	syncRepo := &fakeSyncTimeRepo{}
	svc := NewEventService(tokenSvc, provider, repo, syncRepo, nil, EventServiceConfig{})
	return svc, tokenSvc, syncRepo
}

func TestSync_CreatesAndCounts(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
			providerEvent("ev-2", "Checkup", windowStart.Add(48*time.Hour)),
		},
	}}
	repo := newFakeEventRepo()
	svc, _, syncRepo := newTestEventService(provider, repo)

	userID := uuid.New()
	stats, err := svc.Sync(context.Background(), userID, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Created != 2 || stats.Updated != 0 || stats.Deleted != 0 {
		t.Errorf("stats = %+v, want 2 created", stats)
	}
	if stats.TotalSynced != stats.Created+stats.Updated {
		t.Errorf("totalSynced = %d, want created+updated = %d", stats.TotalSynced, stats.Created+stats.Updated)
	}
	if syncRepo.lastSyncedAt == nil {
		t.Error("sync completion time not recorded")
	}

	// One cached record per provider id with matching fields.
	for _, pe := range provider.listing.Events {
		cached, err := repo.GetByProviderEventID(context.Background(), userID, pe.ID)
		if err != nil {
			t.Fatalf("event %s not cached: %v", pe.ID, err)
		}
		if cached.Title != pe.Title || !cached.StartTime.Equal(pe.Start) || !cached.EndTime.Equal(pe.End) || cached.IsAllDay != pe.IsAllDay {
			t.Errorf("cached event %s does not match provider event", pe.ID)
		}
	}
}

func TestSync_Idempotent(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
			providerEvent("ev-2", "Checkup", windowStart.Add(48*time.Hour)),
		},
	}}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)
	userID := uuid.New()

	if _, err := svc.Sync(context.Background(), userID, windowStart, windowEnd); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := svc.Sync(context.Background(), userID, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if stats.Created != 0 {
		t.Errorf("second sync created = %d, want 0", stats.Created)
	}
	if stats.Deleted != 0 {
		t.Errorf("second sync deleted = %d, want 0", stats.Deleted)
	}
	if len(repo.events) != 2 {
		t.Errorf("cache holds %d events, want 2", len(repo.events))
	}
}

func TestSync_DeletionByAbsence(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
			providerEvent("ev-2", "Checkup", windowStart.Add(48*time.Hour)),
		},
	}}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)
	userID := uuid.New()

	if _, err := svc.Sync(context.Background(), userID, windowStart, windowEnd); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Remote side dropped ev-2.
	provider.listing = &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
		},
	}

	stats, err := svc.Sync(context.Background(), userID, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", stats.Deleted)
	}
	if _, err := repo.GetByProviderEventID(context.Background(), userID, "ev-2"); err == nil {
		t.Error("ev-2 should have been removed from the cache")
	}
}

// TestSync_TruncatedListingSkipsDeletion checks the guard against a partial
// page wiping valid cached events.
func TestSync_TruncatedListingSkipsDeletion(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
			providerEvent("ev-2", "Checkup", windowStart.Add(48*time.Hour)),
		},
	}}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)
	userID := uuid.New()

	if _, err := svc.Sync(context.Background(), userID, windowStart, windowEnd); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	provider.listing = &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
		},
		Truncated: true,
	}

	stats, err := svc.Sync(context.Background(), userID, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.Deleted != 0 {
		t.Errorf("deleted = %d, want 0 when listing is truncated", stats.Deleted)
	}
	if _, err := repo.GetByProviderEventID(context.Background(), userID, "ev-2"); err != nil {
		t.Error("ev-2 must survive a truncated listing")
	}
}

func TestSync_CancelledInstancesAreAbsent(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	cancelled := providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour))
	cancelled.Status = "cancelled"

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{cancelled},
	}}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)

	stats, err := svc.Sync(context.Background(), uuid.New(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Created != 0 || stats.TotalSynced != 0 {
		t.Errorf("cancelled instance should not be mirrored, stats = %+v", stats)
	}
}

func TestSync_AuthFailureDeactivates(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listErr: &out.ProviderError{StatusCode: 401, Message: "invalid credentials"}}
	repo := newFakeEventRepo()
	svc, tokenSvc, _ := newTestEventService(provider, repo)

	_, err := svc.Sync(context.Background(), uuid.New(), windowStart, windowEnd)
	if !apperr.IsCode(err, apperr.CodeReauthRequired) {
		t.Fatalf("expected REAUTH_REQUIRED, got %v", err)
	}
	if tokenSvc.reauthCalls != 1 {
		t.Errorf("reauth marks = %d, want 1", tokenSvc.reauthCalls)
	}
}

func TestSync_RemoteFailureMapsStatus(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listErr: &out.ProviderError{StatusCode: 503, Message: "backend unavailable"}}
	repo := newFakeEventRepo()
	svc, tokenSvc, _ := newTestEventService(provider, repo)

	_, err := svc.Sync(context.Background(), uuid.New(), windowStart, windowEnd)
	if !apperr.IsCode(err, apperr.CodeRemoteCallFailed) {
		t.Fatalf("expected REMOTE_CALL_FAILED, got %v", err)
	}
	appErr := apperr.AsAppError(err)
	if status, _ := appErr.Details["provider_status"].(int); status != 503 {
		t.Errorf("provider_status detail = %v, want 503", appErr.Details["provider_status"])
	}
	if tokenSvc.reauthCalls != 0 {
		t.Errorf("a transient failure must not deactivate the integration")
	}
}

func TestSync_InvalidWindow(t *testing.T) {
	provider := &fakeProvider{}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Sync(context.Background(), uuid.New(), start, start); err == nil {
		t.Error("expected error for empty window")
	}
	if _, err := svc.Sync(context.Background(), uuid.New(), start, time.Time{}); err == nil {
		t.Error("expected error for missing window end")
	}
}

func TestListEvents_PropagatesTokenErrors(t *testing.T) {
	provider := &fakeProvider{}
	repo := newFakeEventRepo()
	userID := uuid.New()
	tokenSvc := &fakeTokenService{err: apperr.NotConnected()}
	svc := NewEventService(tokenSvc, provider, repo, &fakeSyncTimeRepo{}, nil, EventServiceConfig{})

	window := domain.EventWindow{
		Start: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	_, _, err := svc.ListEvents(context.Background(), userID, window, true)
	if !apperr.IsCode(err, apperr.CodeNotConnected) {
		t.Fatalf("expected NOT_CONNECTED, got %v", err)
	}
}

func TestListEvents_ForceLiveReconcilesFirst(t *testing.T) {
	windowStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	provider := &fakeProvider{listing: &out.ProviderEventList{
		Events: []*out.ProviderEvent{
			providerEvent("ev-1", "Dentist", windowStart.Add(24*time.Hour)),
		},
	}}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)

	events, source, err := svc.ListEvents(context.Background(), uuid.New(), domain.EventWindow{Start: windowStart, End: windowEnd}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != in.SourceLive {
		t.Errorf("source = %q, want live", source)
	}
	if len(events) != 1 || events[0].ProviderEventID != "ev-1" {
		t.Errorf("events = %v, want the freshly synced event", events)
	}
}
