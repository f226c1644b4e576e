package out

import (
	"context"
	"time"
)

// IntegrationRepository defines the outbound port for credential persistence.
// Tokens cross this boundary in plaintext; the adapter encrypts at rest.
type IntegrationRepository interface {
	// GetByUserID returns the user's integration, or ErrNotFound.
	GetByUserID(ctx context.Context, userID string) (*IntegrationEntity, error)

	// Upsert creates the integration or replaces the credential fields of an
	// existing one. A user has at most one record.
	Upsert(ctx context.Context, entity *IntegrationEntity) error

	// UpdateTokens stores a refreshed credential.
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error

	// Deactivate marks the integration inactive after a failed refresh.
	Deactivate(ctx context.Context, userID string) error

	// UpdateLastSyncedAt records the completion time of a sync pass.
	UpdateLastSyncedAt(ctx context.Context, userID string, at time.Time) error

	// Delete removes the integration entirely.
	Delete(ctx context.Context, userID string) error

	// ListDueForSync returns active integrations whose last sync finished
	// before the cutoff (or never ran), up to limit rows.
	ListDueForSync(ctx context.Context, before time.Time, limit int) ([]*IntegrationEntity, error)
}

// IntegrationEntity represents a calendar integration in persistence.
type IntegrationEntity struct {
	ID           int64      `db:"id"`
	UserID       string     `db:"user_id"`
	Email        string     `db:"email"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	TokenExpiry  time.Time  `db:"token_expiry"`
	CalendarID   string     `db:"calendar_id"`
	IsActive     bool       `db:"is_active"`
	LastSyncedAt *time.Time `db:"last_synced_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
