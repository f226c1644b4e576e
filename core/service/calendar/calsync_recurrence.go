package calendar

import (
	"fmt"
	"strings"
	"time"

	"calsync_server/core/domain"
	"calsync_server/pkg/apperr"
)

// rruleUntilLayout is the RFC 5545 UTC timestamp form used in UNTIL clauses.
const rruleUntilLayout = "20060102T150405Z"

// buildRecurrenceRule translates a structured recurrence into an RFC 5545
// rule string. UNTIL is normalized to end-of-day UTC so the final day is
// included regardless of the event's own timezone.
func buildRecurrenceRule(r *domain.Recurrence) (string, error) {
	if r == nil {
		return "", nil
	}

	freq := domain.RecurrenceFrequency(strings.ToUpper(string(r.Frequency)))
	switch freq {
	case domain.FreqDaily, domain.FreqWeekly, domain.FreqMonthly:
	default:
		return "", apperr.InvalidEventDraft("recurrence.frequency",
			fmt.Sprintf("unsupported frequency %q", r.Frequency))
	}

	interval := r.Interval
	if interval == 0 {
		interval = 1
	}
	if interval < 1 {
		return "", apperr.InvalidEventDraft("recurrence.interval", "must be at least 1")
	}

	if r.Until != nil && r.Count != nil {
		return "", apperr.InvalidEventDraft("recurrence", "until and count are mutually exclusive")
	}

	rule := fmt.Sprintf("RRULE:FREQ=%s;INTERVAL=%d", freq, interval)

	switch {
	case r.Until != nil:
		until := endOfDayUTC(*r.Until)
		rule += ";UNTIL=" + until.Format(rruleUntilLayout)
	case r.Count != nil:
		if *r.Count < 1 {
			return "", apperr.InvalidEventDraft("recurrence.count", "must be at least 1")
		}
		rule += fmt.Sprintf(";COUNT=%d", *r.Count)
	}

	return rule, nil
}

func endOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, time.UTC)
}
