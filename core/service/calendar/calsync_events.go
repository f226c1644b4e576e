// Package calendar implements event reads, writes and window reconciliation
// against the remote provider.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
)

// EventService serves calendar events from the cached mirror or live from
// the provider, and owns the reconciliation pass.
type EventService struct {
	tokenSvc        in.TokenService
	provider        out.CalendarProviderPort
	eventRepo       out.EventRepository
	integrationRepo out.IntegrationRepository
	respCache       out.ResponseCache

	maxResults int64
	cacheTTL   time.Duration

	now func() time.Time
}

var _ in.EventService = (*EventService)(nil)

type EventServiceConfig struct {
	MaxResults int64
	CacheTTL   time.Duration
}

func NewEventService(
	tokenSvc in.TokenService,
	provider out.CalendarProviderPort,
	eventRepo out.EventRepository,
	integrationRepo out.IntegrationRepository,
	respCache out.ResponseCache,
	cfg EventServiceConfig,
) *EventService {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 2500
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &EventService{
		tokenSvc:        tokenSvc,
		provider:        provider,
		eventRepo:       eventRepo,
		integrationRepo: integrationRepo,
		respCache:       respCache,
		maxResults:      maxResults,
		cacheTTL:        cacheTTL,
		now:             time.Now,
	}
}

// ListEvents returns events overlapping the window. The cached mirror is
// served by default; forceLive reconciles against the provider first.
func (s *EventService) ListEvents(ctx context.Context, userID uuid.UUID, window domain.EventWindow, forceLive bool) ([]*domain.CalendarEvent, in.EventSource, error) {
	if err := validateWindow(window.Start, window.End); err != nil {
		return nil, "", err
	}

	if forceLive {
		if _, err := s.Sync(ctx, userID, window.Start, window.End); err != nil {
			return nil, "", err
		}
		events, err := s.eventRepo.ListByWindow(ctx, userID, window.Start, window.End)
		if err != nil {
			return nil, "", apperr.DatabaseError("list events", err)
		}
		return events, in.SourceLive, nil
	}

	key := eventCacheKey(userID, window.Start, window.End)
	if s.respCache != nil {
		var cached []*domain.CalendarEvent
		if hit, err := s.respCache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, in.SourceCache, nil
		}
	}

	events, err := s.eventRepo.ListByWindow(ctx, userID, window.Start, window.End)
	if err != nil {
		return nil, "", apperr.DatabaseError("list events", err)
	}

	if s.respCache != nil {
		if err := s.respCache.SetJSON(ctx, key, events, s.cacheTTL); err != nil {
			logger.WithField("user_id", userID.String()).WithError(err).
				Debug("failed to cache event list")
		}
	}

	return events, in.SourceCache, nil
}

// CreateEvent validates the draft, writes it to the provider, and mirrors
// the stored event (write-through) so an uncached read sees it immediately.
func (s *EventService) CreateEvent(ctx context.Context, userID uuid.UUID, draft *domain.EventDraft) (*domain.CalendarEvent, error) {
	providerEvent, err := draftToProviderEvent(draft)
	if err != nil {
		return nil, err
	}

	token, integration, err := s.tokenSvc.GetLiveCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	inserted, err := s.provider.InsertEvent(ctx, token, integration.EffectiveCalendarID(), providerEvent)
	if err != nil {
		return nil, s.mapProviderError(ctx, userID, err)
	}

	event := providerToDomainEvent(userID, inserted, s.now())
	if _, err := s.eventRepo.Upsert(ctx, event); err != nil {
		// The provider accepted the event; a mirror failure must not fail
		// the create. The next sync pass picks it up.
		logger.WithField("user_id", userID.String()).WithError(err).
			Warn("failed to mirror created event")
	}

	s.invalidateEventCache(ctx, userID)

	logger.WithField("user_id", userID.String()).
		Info("event created: %s", inserted.ID)

	return event, nil
}

// mapProviderError translates provider failures into the error taxonomy.
// A 401 means the credential is dead: the integration is deactivated so
// every later call reports the terminal reauth state.
func (s *EventService) mapProviderError(ctx context.Context, userID uuid.UUID, err error) error {
	var provErr *out.ProviderError
	if errors.As(err, &provErr) {
		if provErr.IsAuthError() {
			if markErr := s.tokenSvc.MarkReauthRequired(ctx, userID); markErr != nil {
				logger.WithField("user_id", userID.String()).WithError(markErr).
					Error("failed to deactivate integration")
			}
			return apperr.ReauthRequired(err)
		}
		return apperr.RemoteCallFailed(provErr.StatusCode, provErr.Message, err)
	}
	return apperr.RemoteCallFailed(0, err.Error(), err)
}

func (s *EventService) invalidateEventCache(ctx context.Context, userID uuid.UUID) {
	if s.respCache == nil {
		return
	}
	if err := s.respCache.DeletePattern(ctx, eventCachePattern(userID)); err != nil {
		logger.WithField("user_id", userID.String()).WithError(err).
			Debug("failed to invalidate event cache")
	}
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.BadRequest("time window start and end are required")
	}
	if !end.After(start) {
		return apperr.BadRequest("time window end must be after start")
	}
	return nil
}

// draftToProviderEvent validates a draft and builds the provider payload.
func draftToProviderEvent(draft *domain.EventDraft) (*out.ProviderEvent, error) {
	if draft == nil {
		return nil, apperr.InvalidEventDraft("body", "missing event draft")
	}
	if strings.TrimSpace(draft.Title) == "" {
		return nil, apperr.InvalidEventDraft("title", "must not be empty")
	}
	if draft.StartTime.IsZero() {
		return nil, apperr.InvalidEventDraft("start_time", "is required")
	}
	if draft.EndTime.IsZero() {
		return nil, apperr.InvalidEventDraft("end_time", "is required")
	}
	if draft.EndTime.Before(draft.StartTime) {
		return nil, apperr.InvalidEventDraft("end_time", "must not be before start_time")
	}

	timezone := draft.Timezone
	if !draft.IsAllDay {
		if timezone == "" {
			timezone = "UTC"
		}
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, apperr.InvalidEventDraft("timezone", fmt.Sprintf("unknown timezone %q", timezone))
		}
	}

	rule, err := buildRecurrenceRule(draft.Recurrence)
	if err != nil {
		return nil, err
	}

	event := &out.ProviderEvent{
		Title:     strings.TrimSpace(draft.Title),
		Start:     draft.StartTime,
		End:       draft.EndTime,
		IsAllDay:  draft.IsAllDay,
		Timezone:  timezone,
		Attendees: draft.Attendees,
	}
	if draft.Description != nil {
		event.Description = *draft.Description
	}
	if draft.Location != nil {
		event.Location = *draft.Location
	}
	if rule != "" {
		event.Recurrence = []string{rule}
	}

	return event, nil
}

func eventCacheKey(userID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("calsync:events:%s:%d:%d", userID, start.Unix(), end.Unix())
}

func eventCachePattern(userID uuid.UUID) string {
	return fmt.Sprintf("calsync:events:%s:*", userID)
}
