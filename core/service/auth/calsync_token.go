// Package auth implements the OAuth credential lifecycle for the calendar
// integration.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenService hands out live credentials, refreshing them on demand.
type TokenService struct {
	repo      out.IntegrationRepository
	refresher out.TokenRefresher

	// Serializes refresh attempts per user so concurrent callers share one
	// refresh call instead of racing and persisting stale tokens.
	refreshGroup singleflight.Group

	now func() time.Time
}

var _ in.TokenService = (*TokenService)(nil)

func NewTokenService(repo out.IntegrationRepository, refresher out.TokenRefresher) *TokenService {
	return &TokenService{
		repo:      repo,
		refresher: refresher,
		now:       time.Now,
	}
}

// GetLiveCredential returns a token usable for an immediate provider call.
// A stored token is live while now <= token_expiry; past that boundary it is
// refreshed exactly once per user at a time.
func (s *TokenService) GetLiveCredential(ctx context.Context, userID uuid.UUID) (*oauth2.Token, *domain.CalendarIntegration, error) {
	entity, err := s.repo.GetByUserID(ctx, userID.String())
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, nil, apperr.NotConnected()
		}
		return nil, nil, err
	}

	integration := toDomainIntegration(entity)

	if !entity.IsActive {
		// A previous refresh failed. Only a fresh consent revives the record.
		return nil, integration, apperr.ReauthRequired(nil)
	}

	if !s.now().After(entity.TokenExpiry) {
		return &oauth2.Token{
			AccessToken:  entity.AccessToken,
			RefreshToken: entity.RefreshToken,
			Expiry:       entity.TokenExpiry,
		}, integration, nil
	}

	token, err := s.refreshShared(ctx, userID.String(), entity)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeReauthRequired) {
			integration.IsActive = false
		}
		return nil, integration, err
	}

	integration.AccessToken = token.AccessToken
	integration.RefreshToken = token.RefreshToken
	integration.TokenExpiry = token.Expiry
	return token, integration, nil
}

// refreshShared performs the refresh under a per-user single-flight guard.
func (s *TokenService) refreshShared(ctx context.Context, userID string, entity *out.IntegrationEntity) (*oauth2.Token, error) {
	result, err, _ := s.refreshGroup.Do(userID, func() (interface{}, error) {
		return s.refresh(ctx, userID, entity)
	})
	if err != nil {
		return nil, err
	}
	return result.(*oauth2.Token), nil
}

func (s *TokenService) refresh(ctx context.Context, userID string, entity *out.IntegrationEntity) (*oauth2.Token, error) {
	// Another caller in the flight may have refreshed already; reread and
	// reuse its result instead of burning a second refresh call.
	current, err := s.repo.GetByUserID(ctx, userID)
	if err == nil && current.IsActive && s.now().Before(current.TokenExpiry) {
		return &oauth2.Token{
			AccessToken:  current.AccessToken,
			RefreshToken: current.RefreshToken,
			Expiry:       current.TokenExpiry,
		}, nil
	}
	if current != nil {
		entity = current
	}

	newToken, err := s.refresher.Refresh(ctx, entity.RefreshToken)
	if err != nil {
		// Only a dead grant forces re-consent. Transport faults and provider
		// hiccups leave the record active so the next call can retry.
		if !grantRevoked(err) {
			logger.WithField("user_id", userID).WithError(err).
				Warn("token refresh failed transiently")
			return nil, apperr.RemoteCallFailed(refreshStatus(err), "token refresh", err)
		}
		logger.WithField("user_id", userID).WithError(err).
			Warn("refresh token rejected, deactivating integration")
		if deactivateErr := s.repo.Deactivate(ctx, userID); deactivateErr != nil {
			logger.WithField("user_id", userID).WithError(deactivateErr).
				Error("failed to deactivate integration after refresh failure")
		}
		return nil, apperr.ReauthRequired(err)
	}

	// Google may omit the refresh token on refresh responses; keep the old one.
	refreshToken := newToken.RefreshToken
	if refreshToken == "" {
		refreshToken = entity.RefreshToken
	}

	if err := s.repo.UpdateTokens(ctx, userID, newToken.AccessToken, refreshToken, newToken.Expiry); err != nil {
		return nil, apperr.DatabaseError("update tokens", err)
	}

	logger.WithField("user_id", userID).Debug("access token refreshed")

	return &oauth2.Token{
		AccessToken:  newToken.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       newToken.Expiry,
	}, nil
}

// grantRevoked reports whether a refresh failure means the refresh token
// itself is invalid or revoked. Google answers those with an invalid_grant
// error body on a 400/401; anything else (timeouts, 5xx, circuit open) is a
// transient fault.
func grantRevoked(err error) bool {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return false
	}
	if rErr.ErrorCode == "invalid_grant" {
		return true
	}
	if rErr.Response == nil {
		return false
	}
	return rErr.Response.StatusCode == http.StatusBadRequest ||
		rErr.Response.StatusCode == http.StatusUnauthorized
}

// refreshStatus extracts the upstream HTTP status from a refresh failure,
// zero when the call never reached the token endpoint.
func refreshStatus(err error) int {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return rErr.Response.StatusCode
	}
	return 0
}

// MarkReauthRequired deactivates the integration after the provider rejected
// its credential mid-call.
func (s *TokenService) MarkReauthRequired(ctx context.Context, userID uuid.UUID) error {
	logger.WithField("user_id", userID.String()).
		Warn("provider rejected credential, deactivating integration")
	return s.repo.Deactivate(ctx, userID.String())
}

func toDomainIntegration(e *out.IntegrationEntity) *domain.CalendarIntegration {
	if e == nil {
		return nil
	}
	uid, _ := uuid.Parse(e.UserID)
	return &domain.CalendarIntegration{
		ID:           e.ID,
		UserID:       uid,
		Email:        e.Email,
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		TokenExpiry:  e.TokenExpiry,
		CalendarID:   e.CalendarID,
		IsActive:     e.IsActive,
		LastSyncedAt: e.LastSyncedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}
