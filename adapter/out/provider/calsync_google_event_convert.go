package provider

import (
	"time"

	"calsync_server/core/port/out"

	"google.golang.org/api/calendar/v3"
)

// convertEvent maps a Google event into the provider-neutral shape.
// The provider encodes all-day events with date-only start/end and timed
// events with RFC3339 datetimes; the two kinds are never conflated.
func convertEvent(event *calendar.Event) *out.ProviderEvent {
	result := &out.ProviderEvent{
		ID:          event.Id,
		Title:       event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		Recurrence:  event.Recurrence,
	}

	if event.Start != nil {
		if event.Start.DateTime != "" {
			t, _ := time.Parse(time.RFC3339, event.Start.DateTime)
			result.Start = t
			result.Timezone = event.Start.TimeZone
		} else if event.Start.Date != "" {
			t, _ := time.Parse(dateOnlyLayout, event.Start.Date)
			result.Start = t
			result.IsAllDay = true
		}
	}

	if event.End != nil {
		if event.End.DateTime != "" {
			t, _ := time.Parse(time.RFC3339, event.End.DateTime)
			result.End = t
		} else if event.End.Date != "" {
			t, _ := time.Parse(dateOnlyLayout, event.End.Date)
			result.End = t
		}
	}

	if event.Organizer != nil {
		result.Organizer = event.Organizer.Email
	}

	if len(event.Attendees) > 0 {
		result.Attendees = make([]string, 0, len(event.Attendees))
		for _, att := range event.Attendees {
			if att.Email != "" {
				result.Attendees = append(result.Attendees, att.Email)
			}
		}
	}

	if event.ConferenceData != nil {
		for _, ep := range event.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				result.MeetingURL = ep.Uri
				break
			}
		}
	}

	if event.Updated != "" {
		t, _ := time.Parse(time.RFC3339, event.Updated)
		result.Updated = t
	}

	return result
}

// toGoogleEvent maps a provider-neutral event into the Google wire form.
func toGoogleEvent(event *out.ProviderEvent) *calendar.Event {
	gcalEvent := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
	}

	if event.IsAllDay {
		gcalEvent.Start = &calendar.EventDateTime{
			Date: event.Start.Format(dateOnlyLayout),
		}
		gcalEvent.End = &calendar.EventDateTime{
			Date: event.End.Format(dateOnlyLayout),
		}
	} else {
		tz := event.Timezone
		if tz == "" {
			tz = "UTC"
		}
		gcalEvent.Start = &calendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: tz,
		}
		gcalEvent.End = &calendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: tz,
		}
	}

	if len(event.Attendees) > 0 {
		gcalEvent.Attendees = make([]*calendar.EventAttendee, len(event.Attendees))
		for i, email := range event.Attendees {
			gcalEvent.Attendees[i] = &calendar.EventAttendee{Email: email}
		}
	}

	if len(event.Recurrence) > 0 {
		gcalEvent.Recurrence = event.Recurrence
	}

	return gcalEvent
}
