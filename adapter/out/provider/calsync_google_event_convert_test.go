package provider

import (
	"testing"
	"time"

	"calsync_server/core/port/out"
)

func TestToGoogleEvent_AllDayUsesDateOnly(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	event := &out.ProviderEvent{
		Title:    "Annual checkup",
		Start:    start,
		End:      start.AddDate(0, 0, 1),
		IsAllDay: true,
	}

	got := toGoogleEvent(event)

	if got.Start.Date != "2025-03-01" {
		t.Errorf("start date = %q, want 2025-03-01", got.Start.Date)
	}
	if got.Start.DateTime != "" {
		t.Errorf("all-day event must not carry a datetime, got %q", got.Start.DateTime)
	}
	if got.End.Date != "2025-03-02" {
		t.Errorf("end date = %q, want 2025-03-02", got.End.Date)
	}
}

func TestToGoogleEvent_TimedUsesDateTimeWithTimezone(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, loc)
	event := &out.ProviderEvent{
		Title:    "Consultation",
		Start:    start,
		End:      start.Add(time.Hour),
		Timezone: "Asia/Seoul",
	}

	got := toGoogleEvent(event)

	if got.Start.DateTime != "2025-03-01T09:00:00+09:00" {
		t.Errorf("start datetime = %q, want RFC3339 with offset", got.Start.DateTime)
	}
	if got.Start.Date != "" {
		t.Errorf("timed event must not carry a date-only start, got %q", got.Start.Date)
	}
	if got.Start.TimeZone != "Asia/Seoul" {
		t.Errorf("start timezone = %q, want Asia/Seoul", got.Start.TimeZone)
	}
}

func TestToGoogleEvent_TimedDefaultsTimezoneToUTC(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &out.ProviderEvent{
		Title: "Consultation",
		Start: start,
		End:   start.Add(time.Hour),
	}

	got := toGoogleEvent(event)
	if got.Start.TimeZone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", got.Start.TimeZone)
	}
}

func TestConvertEvent_RoundTripKinds(t *testing.T) {
	allDay := toGoogleEvent(&out.ProviderEvent{
		Title:    "All day",
		Start:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		IsAllDay: true,
	})
	allDay.Id = "ev-allday"

	back := convertEvent(allDay)
	if !back.IsAllDay {
		t.Error("all-day kind lost in conversion")
	}
	if !back.Start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, want 2025-03-01 midnight UTC", back.Start)
	}

	timed := toGoogleEvent(&out.ProviderEvent{
		Title:    "Timed",
		Start:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Timezone: "UTC",
	})
	timed.Id = "ev-timed"

	back = convertEvent(timed)
	if back.IsAllDay {
		t.Error("timed event misread as all-day")
	}
	if back.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", back.Timezone)
	}
}
