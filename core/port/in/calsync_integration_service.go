package in

import (
	"context"
	"time"

	"calsync_server/core/domain"

	"github.com/google/uuid"
)

// IntegrationService manages the lifecycle of a user's calendar connection.
type IntegrationService interface {
	// GetStatus reports the client-facing connection state.
	GetStatus(ctx context.Context, userID uuid.UUID) (*IntegrationStatusInfo, error)

	// GetAuthURL returns the Google consent URL with a CSRF state bound to
	// the user.
	GetAuthURL(ctx context.Context, userID uuid.UUID) (string, error)

	// HandleCallback exchanges the authorization code, stores the credential,
	// and enqueues an initial sync.
	HandleCallback(ctx context.Context, state, code string) (*domain.CalendarIntegration, error)

	// Disconnect removes the credential and the cached event mirror.
	Disconnect(ctx context.Context, userID uuid.UUID) error
}

// IntegrationStatusInfo is the status payload returned to clients.
type IntegrationStatusInfo struct {
	Status       domain.IntegrationStatus `json:"status"`
	Email        string                   `json:"email,omitempty"`
	CalendarID   string                   `json:"calendar_id,omitempty"`
	LastSyncedAt *time.Time               `json:"last_synced_at,omitempty"`
}
