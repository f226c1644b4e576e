package calendar

import (
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
)

// providerToDomainEvent maps a provider event into the cached mirror shape.
func providerToDomainEvent(userID uuid.UUID, pe *out.ProviderEvent, now time.Time) *domain.CalendarEvent {
	event := &domain.CalendarEvent{
		UserID:          userID,
		ProviderEventID: pe.ID,
		Title:           pe.Title,
		StartTime:       pe.Start,
		EndTime:         pe.End,
		IsAllDay:        pe.IsAllDay,
		Timezone:        pe.Timezone,
		Status:          mapEventStatus(pe.Status),
		Attendees:       pe.Attendees,
		IsRecurring:     len(pe.Recurrence) > 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if pe.Description != "" {
		event.Description = &pe.Description
	}
	if pe.Location != "" {
		event.Location = &pe.Location
	}
	if pe.Organizer != "" {
		event.Organizer = &pe.Organizer
	}
	if pe.MeetingURL != "" {
		event.MeetingURL = &pe.MeetingURL
	}
	if len(pe.Recurrence) > 0 {
		rule := pe.Recurrence[0]
		event.RecurrenceRule = &rule
	}

	return event
}

func mapEventStatus(status string) domain.EventStatus {
	switch status {
	case "tentative":
		return domain.EventStatusTentative
	case "cancelled":
		return domain.EventStatusCancelled
	default:
		return domain.EventStatusConfirmed
	}
}
