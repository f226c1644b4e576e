package calendar

import (
	"context"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
)

// Sync reconciles the cached mirror against the provider listing for the
// window: upsert everything the provider returned, then delete cached rows
// the provider no longer lists. Upserts are keyed by provider event id, so
// running the same sync twice is a no-op the second time.
func (s *EventService) Sync(ctx context.Context, userID uuid.UUID, windowStart, windowEnd time.Time) (*domain.SyncStats, error) {
	if err := validateWindow(windowStart, windowEnd); err != nil {
		return nil, err
	}

	start := s.now()

	token, integration, err := s.tokenSvc.GetLiveCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	listing, err := s.provider.ListEvents(ctx, token, &out.ProviderEventQuery{
		CalendarID: integration.EffectiveCalendarID(),
		TimeMin:    windowStart,
		TimeMax:    windowEnd,
		MaxResults: s.maxResults,
	})
	if err != nil {
		return nil, s.mapProviderError(ctx, userID, err)
	}

	stats := &domain.SyncStats{}
	keep := make([]string, 0, len(listing.Events))

	for _, pe := range listing.Events {
		if pe.Status == "cancelled" {
			continue
		}
		keep = append(keep, pe.ID)

		result, err := s.eventRepo.Upsert(ctx, providerToDomainEvent(userID, pe, s.now()))
		if err != nil {
			return nil, apperr.DatabaseError("upsert event", err)
		}
		switch result {
		case out.UpsertCreated:
			stats.Created++
		case out.UpsertUpdated:
			stats.Updated++
		}
	}

	// Deletion-by-absence is only sound when the listing covered the whole
	// window. A truncated page would make events beyond the cap look absent
	// and delete valid cached rows.
	if listing.Truncated {
		logger.WithField("user_id", userID.String()).
			Warn("provider listing truncated at %d results, skipping deletion pass", s.maxResults)
	} else {
		deleted, err := s.eventRepo.DeleteAbsent(ctx, userID, windowStart, windowEnd, keep)
		if err != nil {
			return nil, apperr.DatabaseError("delete absent events", err)
		}
		stats.Deleted = deleted
	}

	stats.TotalSynced = stats.Created + stats.Updated

	if err := s.integrationRepo.UpdateLastSyncedAt(ctx, userID.String(), s.now()); err != nil {
		logger.WithField("user_id", userID.String()).WithError(err).
			Debug("failed to record sync time")
	}

	s.invalidateEventCache(ctx, userID)

	logger.WithField("user_id", userID.String()).WithDuration(time.Since(start)).
		Info("sync complete: %d created, %d updated, %d deleted", stats.Created, stats.Updated, stats.Deleted)

	return stats, nil
}
