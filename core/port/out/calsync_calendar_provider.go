// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// CalendarProviderPort defines the outbound port for the remote calendar API.
type CalendarProviderPort interface {
	// ListEvents returns events overlapping the query window with recurring
	// series expanded into single instances. The adapter pages through the
	// full result set; Truncated is set only when the hard result cap was hit.
	ListEvents(ctx context.Context, token *oauth2.Token, query *ProviderEventQuery) (*ProviderEventList, error)

	// InsertEvent creates an event in the given calendar and returns the
	// provider's stored representation.
	InsertEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *ProviderEvent) (*ProviderEvent, error)
}

// TokenRefresher exchanges a refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ProviderEventQuery bounds a ListEvents call.
type ProviderEventQuery struct {
	CalendarID string
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int64
}

// ProviderEventList is the result of a ListEvents call.
type ProviderEventList struct {
	Events    []*ProviderEvent
	Truncated bool
}

// ProviderEvent is the provider-side representation of a calendar event.
type ProviderEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	IsAllDay    bool
	Timezone    string
	Status      string
	Organizer   string
	Attendees   []string
	Recurrence  []string
	MeetingURL  string
	Updated     time.Time
}

// ProviderError carries the upstream HTTP status so callers can tell an
// expired credential (401) from other failures.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error %d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsAuthError reports whether the provider rejected the credential.
func (e *ProviderError) IsAuthError() bool {
	return e.StatusCode == 401
}
