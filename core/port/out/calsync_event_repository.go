package out

import (
	"context"
	"time"

	"calsync_server/core/domain"

	"github.com/google/uuid"
)

// UpsertResult reports whether an upsert inserted a new row or touched an
// existing one.
type UpsertResult int

const (
	UpsertCreated UpsertResult = iota
	UpsertUpdated
)

// EventRepository defines the outbound port for the cached event mirror.
type EventRepository interface {
	// ListByWindow returns cached events overlapping [start, end), ordered by
	// start time.
	ListByWindow(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error)

	// GetByProviderEventID returns one cached event, or ErrNotFound.
	GetByProviderEventID(ctx context.Context, userID uuid.UUID, providerEventID string) (*domain.CalendarEvent, error)

	// Upsert inserts or updates an event keyed by (user_id, provider_event_id).
	// Returns whether the row was created or updated.
	Upsert(ctx context.Context, event *domain.CalendarEvent) (UpsertResult, error)

	// DeleteAbsent removes cached events in the window whose provider event ID
	// is not in keep. Returns the number of rows removed.
	DeleteAbsent(ctx context.Context, userID uuid.UUID, start, end time.Time, keep []string) (int, error)

	// DeleteAllByUser clears a user's mirror on disconnect.
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) error
}
