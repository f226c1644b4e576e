package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCalendarID is used when a connection does not specify one.
const DefaultCalendarID = "primary"

// IntegrationStatus is the connection state reported to clients.
type IntegrationStatus string

const (
	StatusConnected    IntegrationStatus = "connected"
	StatusNeedsReauth  IntegrationStatus = "needsReauth"
	StatusDisconnected IntegrationStatus = "disconnected"
)

// CalendarIntegration holds a user's Google Calendar credential.
// At most one record exists per user.
type CalendarIntegration struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CalendarID   string    `json:"calendar_id"`
	IsActive     bool      `json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status derives the client-facing status. A record that exists but is
// inactive has failed a refresh and needs the user to reconnect.
func (i *CalendarIntegration) Status() IntegrationStatus {
	if i == nil {
		return StatusDisconnected
	}
	if !i.IsActive {
		return StatusNeedsReauth
	}
	return StatusConnected
}

// EffectiveCalendarID returns the configured calendar or the default.
func (i *CalendarIntegration) EffectiveCalendarID() string {
	if i == nil || i.CalendarID == "" {
		return DefaultCalendarID
	}
	return i.CalendarID
}
