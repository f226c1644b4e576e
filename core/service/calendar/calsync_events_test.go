package calendar

import (
	"context"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func validDraft() *domain.EventDraft {
	return &domain.EventDraft{
		Title:     "Take medication",
		StartTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Timezone:  "UTC",
	}
}

func TestDraftValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *domain.EventDraft)
		wantField string
	}{
		{
			name:      "empty title",
			mutate:    func(d *domain.EventDraft) { d.Title = "   " },
			wantField: "title",
		},
		{
			name:      "missing start",
			mutate:    func(d *domain.EventDraft) { d.StartTime = time.Time{} },
			wantField: "start_time",
		},
		{
			name:      "missing end",
			mutate:    func(d *domain.EventDraft) { d.EndTime = time.Time{} },
			wantField: "end_time",
		},
		{
			name: "end before start",
			mutate: func(d *domain.EventDraft) {
				d.EndTime = d.StartTime.Add(-time.Hour)
			},
			wantField: "end_time",
		},
		{
			name:      "unknown timezone",
			mutate:    func(d *domain.EventDraft) { d.Timezone = "Mars/Olympus" },
			wantField: "timezone",
		},
		{
			name: "recurrence with until and count",
			mutate: func(d *domain.EventDraft) {
				until := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
				d.Recurrence = &domain.Recurrence{
					Frequency: domain.FreqDaily,
					Until:     &until,
					Count:     intPtr(3),
				}
			},
			wantField: "recurrence",
		},
		{
			name: "unsupported frequency",
			mutate: func(d *domain.EventDraft) {
				d.Recurrence = &domain.Recurrence{Frequency: "YEARLY"}
			},
			wantField: "recurrence.frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(draft)

			_, err := draftToProviderEvent(draft)
			if !apperr.IsCode(err, apperr.CodeInvalidEventDraft) {
				t.Fatalf("expected INVALID_EVENT_DRAFT, got %v", err)
			}
			appErr := apperr.AsAppError(err)
			if field, _ := appErr.Details["field"].(string); field != tt.wantField {
				t.Errorf("field detail = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestDraftValidation_ZeroLengthTimedEventAllowed(t *testing.T) {
	draft := validDraft()
	draft.EndTime = draft.StartTime

	if _, err := draftToProviderEvent(draft); err != nil {
		t.Fatalf("end == start should be accepted, got %v", err)
	}
}

func TestBuildRecurrenceRule(t *testing.T) {
	until := time.Date(2025, 6, 15, 10, 30, 0, 0, time.FixedZone("KST", 9*3600))

	tests := []struct {
		name string
		rec  *domain.Recurrence
		want string
	}{
		{
			name: "nil recurrence",
			rec:  nil,
			want: "",
		},
		{
			name: "weekly every 2 for 5 occurrences",
			rec: &domain.Recurrence{
				Frequency: domain.FreqWeekly,
				Interval:  2,
				Count:     intPtr(5),
			},
			want: "RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=5",
		},
		{
			name: "daily defaults interval to 1",
			rec:  &domain.Recurrence{Frequency: domain.FreqDaily},
			want: "RRULE:FREQ=DAILY;INTERVAL=1",
		},
		{
			name: "monthly open-ended",
			rec:  &domain.Recurrence{Frequency: domain.FreqMonthly, Interval: 3},
			want: "RRULE:FREQ=MONTHLY;INTERVAL=3",
		},
		{
			name: "until normalized to end of day UTC",
			rec: &domain.Recurrence{
				Frequency: domain.FreqDaily,
				Interval:  1,
				Until:     &until,
			},
			want: "RRULE:FREQ=DAILY;INTERVAL=1;UNTIL=20250615T235959Z",
		},
		{
			name: "lowercase frequency accepted",
			rec:  &domain.Recurrence{Frequency: "weekly", Interval: 1},
			want: "RRULE:FREQ=WEEKLY;INTERVAL=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildRecurrenceRule(tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("rule = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateEvent_WriteThrough(t *testing.T) {
	provider := &fakeProvider{}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)
	userID := uuid.New()

	draft := validDraft()
	draft.Description = strPtr("after breakfast")

	event, err := svc.CreateEvent(context.Background(), userID, draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ProviderEventID != "generated-id" {
		t.Errorf("provider event id = %q, want the provider-assigned id", event.ProviderEventID)
	}

	// Write-through: the mirror sees the event without a live fetch.
	cached, err := repo.GetByProviderEventID(context.Background(), userID, "generated-id")
	if err != nil {
		t.Fatalf("event not mirrored: %v", err)
	}
	if cached.Title != draft.Title {
		t.Errorf("mirrored title = %q, want %q", cached.Title, draft.Title)
	}
	if cached.Description == nil || *cached.Description != "after breakfast" {
		t.Error("mirrored description missing")
	}
}

func TestCreateEvent_InvalidDraftSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)

	draft := validDraft()
	draft.Title = ""

	_, err := svc.CreateEvent(context.Background(), uuid.New(), draft)
	if !apperr.IsCode(err, apperr.CodeInvalidEventDraft) {
		t.Fatalf("expected INVALID_EVENT_DRAFT, got %v", err)
	}
	if len(provider.inserted) != 0 {
		t.Error("invalid draft must not reach the provider")
	}
}

func TestCreateEvent_ProviderAuthFailure(t *testing.T) {
	provider := &fakeProvider{insertFn: func(*out.ProviderEvent) (*out.ProviderEvent, error) {
		return nil, &out.ProviderError{StatusCode: 401, Message: "invalid credentials"}
	}}
	repo := newFakeEventRepo()
	svc, tokenSvc, _ := newTestEventService(provider, repo)

	_, err := svc.CreateEvent(context.Background(), uuid.New(), validDraft())
	if !apperr.IsCode(err, apperr.CodeReauthRequired) {
		t.Fatalf("expected REAUTH_REQUIRED, got %v", err)
	}
	if tokenSvc.reauthCalls != 1 {
		t.Errorf("reauth marks = %d, want 1", tokenSvc.reauthCalls)
	}
	if len(repo.events) != 0 {
		t.Error("failed create must not leave a mirrored event")
	}
}

func TestCreateEvent_RecurrenceAttached(t *testing.T) {
	provider := &fakeProvider{}
	repo := newFakeEventRepo()
	svc, _, _ := newTestEventService(provider, repo)

	draft := validDraft()
	draft.Recurrence = &domain.Recurrence{
		Frequency: domain.FreqWeekly,
		Interval:  2,
		Count:     intPtr(5),
	}

	event, err := svc.CreateEvent(context.Background(), uuid.New(), draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.inserted) != 1 {
		t.Fatalf("expected one provider insert")
	}
	got := provider.inserted[0].Recurrence
	if len(got) != 1 || got[0] != "RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=5" {
		t.Errorf("recurrence = %v, want the translated rule", got)
	}
	if !event.IsRecurring || event.RecurrenceRule == nil {
		t.Error("mirrored event should be marked recurring")
	}
}
