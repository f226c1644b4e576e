// Package provider implements outbound adapters for the Google Calendar API.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"calsync_server/core/port/out"
	"calsync_server/pkg/httputil"
	"calsync_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	dateOnlyLayout = "2006-01-02"

	// Google caps a single events.list page at 2500; we request smaller
	// pages and follow page tokens.
	pageSize = 250
)

// GoogleCalendarAdapter implements CalendarProviderPort and TokenRefresher
// against the Google Calendar API.
type GoogleCalendarAdapter struct {
	oauthConfig *oauth2.Config
	cb          *gobreaker.CircuitBreaker
}

var (
	_ out.CalendarProviderPort = (*GoogleCalendarAdapter)(nil)
	_ out.TokenRefresher       = (*GoogleCalendarAdapter)(nil)
)

// GoogleCalendarConfig holds adapter configuration.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGoogleCalendarAdapter creates a new Google Calendar adapter.
func NewGoogleCalendarAdapter(cfg *GoogleCalendarConfig) *GoogleCalendarAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			calendar.CalendarReadonlyScope,
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "google-calendar-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GoogleCalendarAdapter{
		oauthConfig: config,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// getService builds a per-call Calendar service. The token source is static:
// refresh is owned by the token lifecycle, never done implicitly here.
func (a *GoogleCalendarAdapter) getService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.CalendarClient())
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

// Refresh exchanges a refresh token for a new access token.
func (a *GoogleCalendarAdapter) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := a.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, err
	}
	return newToken, nil
}

// ListEvents lists events in the window with recurring series expanded.
// It follows page tokens until the window is consumed or MaxResults is hit;
// in the latter case Truncated is set so callers can skip deletion logic.
func (a *GoogleCalendarAdapter) ListEvents(ctx context.Context, token *oauth2.Token, query *out.ProviderEventQuery) (*out.ProviderEventList, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, wrapError(err, "failed to create calendar service")
	}

	calendarID := query.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = 2500
	}

	result := &out.ProviderEventList{}
	pageToken := ""

	for {
		remaining := maxResults - int64(len(result.Events))
		if remaining <= 0 {
			result.Truncated = pageToken != ""
			break
		}

		size := int64(pageSize)
		if remaining < size {
			size = remaining
		}

		req := svc.Events.List(calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(query.TimeMin.Format(time.RFC3339)).
			TimeMax(query.TimeMax.Format(time.RFC3339)).
			MaxResults(size).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := a.doList(req)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			result.Events = append(result.Events, convertEvent(item))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if pageToken != "" && int64(len(result.Events)) >= maxResults {
		result.Truncated = true
	}

	return result, nil
}

func (a *GoogleCalendarAdapter) doList(req *calendar.EventsListCall) (*calendar.Events, error) {
	resp, err := a.cb.Execute(func() (interface{}, error) {
		return req.Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to list events")
	}
	return resp.(*calendar.Events), nil
}

// InsertEvent creates an event and returns the provider's stored form.
func (a *GoogleCalendarAdapter) InsertEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, wrapError(err, "failed to create calendar service")
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	gcalEvent := toGoogleEvent(event)

	created, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Events.Insert(calendarID, gcalEvent).SendUpdates("none").Context(ctx).Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to insert event")
	}

	return convertEvent(created.(*calendar.Event)), nil
}

// wrapError maps API failures into ProviderError with the upstream status.
func wrapError(err error, message string) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" {
			msg = message
		}
		return &out.ProviderError{StatusCode: gErr.Code, Message: msg, Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &out.ProviderError{StatusCode: retrieveErr.Response.StatusCode, Message: message, Err: err}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &out.ProviderError{StatusCode: http.StatusServiceUnavailable, Message: "calendar api circuit open", Err: err}
	}

	return &out.ProviderError{StatusCode: 0, Message: message, Err: err}
}
