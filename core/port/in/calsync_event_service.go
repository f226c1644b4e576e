package in

import (
	"context"
	"time"

	"calsync_server/core/domain"

	"github.com/google/uuid"
)

// EventSource identifies where a list result came from.
type EventSource string

const (
	SourceCache EventSource = "cache"
	SourceLive  EventSource = "live"
)

// EventService serves calendar events and reconciles the cached mirror.
type EventService interface {
	// ListEvents returns events in the window. By default it serves the
	// cached mirror; forceLive reconciles against the provider first.
	ListEvents(ctx context.Context, userID uuid.UUID, window domain.EventWindow, forceLive bool) ([]*domain.CalendarEvent, EventSource, error)

	// CreateEvent validates the draft, writes it to the provider, and
	// mirrors the stored event into the cache.
	CreateEvent(ctx context.Context, userID uuid.UUID, draft *domain.EventDraft) (*domain.CalendarEvent, error)

	// Sync reconciles the cached mirror against the provider for the window
	// and returns counts of what changed.
	Sync(ctx context.Context, userID uuid.UUID, windowStart, windowEnd time.Time) (*domain.SyncStats, error)
}
