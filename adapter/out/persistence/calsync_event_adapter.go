package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventAdapter implements out.EventRepository using PostgreSQL.
type EventAdapter struct {
	db *sqlx.DB
}

var _ out.EventRepository = (*EventAdapter)(nil)

// NewEventAdapter creates a new EventAdapter.
func NewEventAdapter(db *sqlx.DB) *EventAdapter {
	return &EventAdapter{db: db}
}

// eventRow mirrors the calendar_events table.
type eventRow struct {
	ID              int64      `db:"id"`
	UserID          string     `db:"user_id"`
	ProviderEventID string     `db:"provider_event_id"`
	Title           string     `db:"title"`
	Description     *string    `db:"description"`
	Location        *string    `db:"location"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         time.Time  `db:"end_time"`
	IsAllDay        bool       `db:"is_all_day"`
	Timezone        string     `db:"timezone"`
	Status          string     `db:"status"`
	Organizer       *string    `db:"organizer"`
	Attendees       []byte     `db:"attendees"`
	IsRecurring     bool       `db:"is_recurring"`
	RecurrenceRule  *string    `db:"recurrence_rule"`
	MeetingURL      *string    `db:"meeting_url"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

const eventColumns = `
	id, user_id, provider_event_id, title, description, location,
	start_time, end_time, is_all_day, timezone, status, organizer,
	attendees, is_recurring, recurrence_rule, meeting_url, created_at, updated_at`

// ListByWindow returns cached events overlapping [start, end).
func (a *EventAdapter) ListByWindow(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error) {
	var rows []*eventRow
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE user_id = $1 AND start_time < $3 AND end_time >= $2
		ORDER BY start_time ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID.String(), start, end); err != nil {
		return nil, err
	}

	events := make([]*domain.CalendarEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, rowToDomain(row))
	}
	return events, nil
}

// GetByProviderEventID returns one cached event.
func (a *EventAdapter) GetByProviderEventID(ctx context.Context, userID uuid.UUID, providerEventID string) (*domain.CalendarEvent, error) {
	var row eventRow
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE user_id = $1 AND provider_event_id = $2`

	if err := a.db.GetContext(ctx, &row, query, userID.String(), providerEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("event")
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// Upsert inserts or updates a cached event keyed by (user, provider event).
// The xmax check distinguishes a fresh insert from a conflict update.
func (a *EventAdapter) Upsert(ctx context.Context, event *domain.CalendarEvent) (out.UpsertResult, error) {
	attendees, err := json.Marshal(event.Attendees)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO calendar_events
			(user_id, provider_event_id, title, description, location,
			 start_time, end_time, is_all_day, timezone, status, organizer,
			 attendees, is_recurring, recurrence_rule, meeting_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (user_id, provider_event_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_all_day = EXCLUDED.is_all_day,
			timezone = EXCLUDED.timezone,
			status = EXCLUDED.status,
			organizer = EXCLUDED.organizer,
			attendees = EXCLUDED.attendees,
			is_recurring = EXCLUDED.is_recurring,
			recurrence_rule = EXCLUDED.recurrence_rule,
			meeting_url = EXCLUDED.meeting_url,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	var (
		id       int64
		inserted bool
	)
	err = a.db.QueryRowContext(ctx, query,
		event.UserID.String(),
		event.ProviderEventID,
		event.Title,
		event.Description,
		event.Location,
		event.StartTime,
		event.EndTime,
		event.IsAllDay,
		event.Timezone,
		string(event.Status),
		event.Organizer,
		attendees,
		event.IsRecurring,
		event.RecurrenceRule,
		event.MeetingURL,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, err
	}

	event.ID = id
	if inserted {
		return out.UpsertCreated, nil
	}
	return out.UpsertUpdated, nil
}

// DeleteAbsent removes cached events in the window that the provider no
// longer lists. An empty keep set clears the whole window.
func (a *EventAdapter) DeleteAbsent(ctx context.Context, userID uuid.UUID, start, end time.Time, keep []string) (int, error) {
	var (
		query string
		args  []interface{}
		err   error
	)

	if len(keep) == 0 {
		query = `
			DELETE FROM calendar_events
			WHERE user_id = ? AND start_time < ? AND end_time >= ?`
		args = []interface{}{userID.String(), end, start}
	} else {
		query, args, err = sqlx.In(`
			DELETE FROM calendar_events
			WHERE user_id = ? AND start_time < ? AND end_time >= ?
			  AND provider_event_id NOT IN (?)`,
			userID.String(), end, start, keep)
		if err != nil {
			return 0, err
		}
	}

	result, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// DeleteAllByUser clears a user's mirror on disconnect.
func (a *EventAdapter) DeleteAllByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM calendar_events WHERE user_id = $1`, userID.String())
	return err
}

func rowToDomain(row *eventRow) *domain.CalendarEvent {
	uid, _ := uuid.Parse(row.UserID)
	event := &domain.CalendarEvent{
		ID:              row.ID,
		UserID:          uid,
		ProviderEventID: row.ProviderEventID,
		Title:           row.Title,
		Description:     row.Description,
		Location:        row.Location,
		StartTime:       row.StartTime,
		EndTime:         row.EndTime,
		IsAllDay:        row.IsAllDay,
		Timezone:        row.Timezone,
		Status:          domain.EventStatus(row.Status),
		Organizer:       row.Organizer,
		IsRecurring:     row.IsRecurring,
		RecurrenceRule:  row.RecurrenceRule,
		MeetingURL:      row.MeetingURL,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}

	if len(row.Attendees) > 0 {
		_ = json.Unmarshal(row.Attendees, &event.Attendees)
	}

	return event
}
