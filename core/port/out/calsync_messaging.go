package out

import (
	"context"
	"time"
)

// MessageProducer defines the outbound port for the sync job queue.
type MessageProducer interface {
	// PublishCalendarSync enqueues a reconciliation pass for a user.
	PublishCalendarSync(ctx context.Context, job *CalendarSyncJob) error
}

// CalendarSyncJob represents a queued reconciliation pass. A zero window
// means the worker applies the configured default window around now.
type CalendarSyncJob struct {
	UserID      string     `json:"user_id"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	Reason      string     `json:"reason,omitempty"` // initial, manual, scheduled
	EnqueuedAt  time.Time  `json:"enqueued_at"`
}
