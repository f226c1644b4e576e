package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
)

// CalendarEvent is the cached mirror of one provider event.
type CalendarEvent struct {
	ID              int64     `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	ProviderEventID string    `json:"provider_event_id"`

	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsAllDay  bool      `json:"is_all_day"`
	Timezone  string    `json:"timezone"`

	Status    EventStatus `json:"status"`
	Organizer *string     `json:"organizer,omitempty"`
	Attendees []string    `json:"attendees,omitempty"`

	// Recurrence
	IsRecurring    bool    `json:"is_recurring"`
	RecurrenceRule *string `json:"recurrence_rule,omitempty"`

	MeetingURL *string `json:"meeting_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecurrenceFrequency enumerates supported repeat frequencies.
type RecurrenceFrequency string

const (
	FreqDaily   RecurrenceFrequency = "DAILY"
	FreqWeekly  RecurrenceFrequency = "WEEKLY"
	FreqMonthly RecurrenceFrequency = "MONTHLY"
)

// Recurrence describes a repeat pattern for a new event. Until and Count
// are mutually exclusive; an open-ended series sets neither.
type Recurrence struct {
	Frequency RecurrenceFrequency `json:"frequency"`
	Interval  int                 `json:"interval"`
	Until     *time.Time          `json:"until,omitempty"`
	Count     *int                `json:"count,omitempty"`
}

// EventDraft is a client request to create a calendar event.
type EventDraft struct {
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Location    *string     `json:"location,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	IsAllDay    bool        `json:"is_all_day"`
	Timezone    string      `json:"timezone"`
	Attendees   []string    `json:"attendees,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
}

// SyncStats summarizes one reconciliation pass.
type SyncStats struct {
	TotalSynced int `json:"total_synced"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deleted     int `json:"deleted"`
}

// EventWindow bounds a query or sync to a half-open time range.
type EventWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
