package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// IntegrationService manages connect, callback, status and disconnect.
type IntegrationService struct {
	repo       out.IntegrationRepository
	eventRepo  out.EventRepository
	stateStore out.StateStore
	producer   out.MessageProducer
	config     *oauth2.Config
	stateTTL   time.Duration
}

var _ in.IntegrationService = (*IntegrationService)(nil)

type IntegrationServiceConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	StateTTL           time.Duration
}

func NewIntegrationService(
	repo out.IntegrationRepository,
	eventRepo out.EventRepository,
	stateStore out.StateStore,
	producer out.MessageProducer,
	cfg IntegrationServiceConfig,
) *IntegrationService {
	var config *oauth2.Config
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		config = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar.readonly",
				"https://www.googleapis.com/auth/calendar.events",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}
	}

	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}

	return &IntegrationService{
		repo:       repo,
		eventRepo:  eventRepo,
		stateStore: stateStore,
		producer:   producer,
		config:     config,
		stateTTL:   stateTTL,
	}
}

func (s *IntegrationService) GetStatus(ctx context.Context, userID uuid.UUID) (*in.IntegrationStatusInfo, error) {
	entity, err := s.repo.GetByUserID(ctx, userID.String())
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return &in.IntegrationStatusInfo{Status: domain.StatusDisconnected}, nil
		}
		return nil, err
	}

	integration := toDomainIntegration(entity)
	return &in.IntegrationStatusInfo{
		Status:       integration.Status(),
		Email:        integration.Email,
		CalendarID:   integration.EffectiveCalendarID(),
		LastSyncedAt: integration.LastSyncedAt,
	}, nil
}

func (s *IntegrationService) GetAuthURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.config == nil {
		return "", apperr.ConfigError("google oauth not configured")
	}

	state, err := generateState(userID)
	if err != nil {
		return "", apperr.InternalWithError(err)
	}

	if err := s.stateStore.SaveState(ctx, state, s.stateTTL); err != nil {
		return "", apperr.InternalWithError(err)
	}

	// offline access + forced approval so Google returns a refresh token
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (s *IntegrationService) HandleCallback(ctx context.Context, state, code string) (*domain.CalendarIntegration, error) {
	if s.config == nil {
		return nil, apperr.ConfigError("google oauth not configured")
	}

	userID, err := s.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}
	if token.RefreshToken == "" {
		return nil, apperr.OAuthFailed("google", fmt.Errorf("no refresh token in exchange response"))
	}

	email, err := s.fetchEmail(ctx, token)
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}

	now := time.Now()
	entity := &out.IntegrationEntity{
		UserID:       userID.String(),
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CalendarID:   domain.DefaultCalendarID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Upsert(ctx, entity); err != nil {
		return nil, apperr.DatabaseError("upsert integration", err)
	}

	logger.WithField("user_id", userID.String()).Info("calendar connected for %s", email)

	// Initial sync runs in the background; the callback returns immediately.
	if s.producer != nil {
		job := &out.CalendarSyncJob{
			UserID:     userID.String(),
			Reason:     "initial",
			EnqueuedAt: now,
		}
		if err := s.producer.PublishCalendarSync(ctx, job); err != nil {
			logger.WithField("user_id", userID.String()).WithError(err).
				Warn("failed to enqueue initial calendar sync")
		}
	}

	return toDomainIntegration(entity), nil
}

func (s *IntegrationService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	// Disconnecting an already-disconnected integration is a no-op success.
	if err := s.repo.Delete(ctx, userID.String()); err != nil && !apperr.IsCode(err, apperr.CodeNotFound) {
		return err
	}

	if err := s.eventRepo.DeleteAllByUser(ctx, userID); err != nil {
		logger.WithField("user_id", userID.String()).WithError(err).
			Warn("failed to clear event mirror on disconnect")
	}

	logger.WithField("user_id", userID.String()).Info("calendar disconnected")
	return nil
}

func (s *IntegrationService) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := s.config.Client(ctx, token)
	resp, err := client.Get(userInfoURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(resp.Body, &userInfo); err != nil {
		return "", err
	}
	return userInfo.Email, nil
}

// generateState builds a CSRF state of the form "<userID>:<random>".
func generateState(userID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return userID.String() + ":" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// consumeState validates the state against the store and extracts the user.
func (s *IntegrationService) consumeState(ctx context.Context, state string) (uuid.UUID, error) {
	ok, err := s.stateStore.ConsumeState(ctx, state)
	if err != nil {
		return uuid.Nil, apperr.InternalWithError(err)
	}
	if !ok {
		return uuid.Nil, apperr.BadRequest("invalid or expired oauth state")
	}

	idPart, _, found := strings.Cut(state, ":")
	if !found {
		return uuid.Nil, apperr.BadRequest("malformed oauth state")
	}
	userID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, apperr.BadRequest("malformed oauth state")
	}
	return userID, nil
}

// decodeJSON decodes JSON from reader into target struct
func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
