package in

import (
	"context"

	"calsync_server/core/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// TokenService hands out live access tokens for provider calls.
type TokenService interface {
	// GetLiveCredential returns a token valid for immediate use, refreshing
	// it first when the stored one has expired. Fails with NOT_CONNECTED when
	// no integration exists and REAUTH_REQUIRED when the credential can no
	// longer be refreshed.
	GetLiveCredential(ctx context.Context, userID uuid.UUID) (*oauth2.Token, *domain.CalendarIntegration, error)

	// MarkReauthRequired deactivates the integration after the provider
	// rejected its credential.
	MarkReauthRequired(ctx context.Context, userID uuid.UUID) error
}
