// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/crypto"
	"calsync_server/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// IntegrationAdapter implements out.IntegrationRepository using PostgreSQL.
// OAuth tokens are encrypted at rest when an encryptor is configured.
type IntegrationAdapter struct {
	db        *sqlx.DB
	encryptor *crypto.Encryptor
}

var _ out.IntegrationRepository = (*IntegrationAdapter)(nil)

// NewIntegrationAdapter creates a new IntegrationAdapter.
func NewIntegrationAdapter(db *sqlx.DB, encryptor *crypto.Encryptor) *IntegrationAdapter {
	if encryptor == nil {
		logger.Warn("token encryption disabled: no encryption key configured")
	}
	return &IntegrationAdapter{db: db, encryptor: encryptor}
}

func (a *IntegrationAdapter) encryptToken(token string) string {
	if a.encryptor == nil || token == "" {
		return token
	}
	encrypted, err := a.encryptor.Encrypt(token)
	if err != nil {
		logger.WithError(err).Warn("failed to encrypt token, storing plaintext")
		return token
	}
	return encrypted
}

func (a *IntegrationAdapter) decryptToken(token string) string {
	if a.encryptor == nil || token == "" {
		return token
	}
	decrypted, err := a.encryptor.Decrypt(token)
	if err != nil {
		// Pre-encryption rows decrypt as garbage; pass them through.
		return token
	}
	return decrypted
}

func (a *IntegrationAdapter) decryptEntity(entity *out.IntegrationEntity) {
	if entity == nil {
		return
	}
	entity.AccessToken = a.decryptToken(entity.AccessToken)
	entity.RefreshToken = a.decryptToken(entity.RefreshToken)
}

// GetByUserID returns the user's integration.
func (a *IntegrationAdapter) GetByUserID(ctx context.Context, userID string) (*out.IntegrationEntity, error) {
	var entity out.IntegrationEntity
	query := `
		SELECT id, user_id, email, access_token, refresh_token,
		       token_expiry, calendar_id, is_active, last_synced_at, created_at, updated_at
		FROM calendar_integrations
		WHERE user_id = $1`

	if err := a.db.GetContext(ctx, &entity, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("integration")
		}
		return nil, err
	}

	a.decryptEntity(&entity)
	return &entity, nil
}

// Upsert creates or replaces the user's integration record. A reconnect
// reactivates the row with the fresh credential.
func (a *IntegrationAdapter) Upsert(ctx context.Context, entity *out.IntegrationEntity) error {
	query := `
		INSERT INTO calendar_integrations
			(user_id, email, access_token, refresh_token, token_expiry, calendar_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			calendar_id = EXCLUDED.calendar_id,
			is_active = true,
			updated_at = NOW()
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		entity.UserID,
		entity.Email,
		a.encryptToken(entity.AccessToken),
		a.encryptToken(entity.RefreshToken),
		entity.TokenExpiry,
		entity.CalendarID,
	).Scan(&entity.ID)
}

// UpdateTokens stores a refreshed credential.
func (a *IntegrationAdapter) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE user_id = $1`

	result, err := a.db.ExecContext(ctx, query, userID,
		a.encryptToken(accessToken), a.encryptToken(refreshToken), expiry)
	if err != nil {
		return err
	}
	return requireRow(result, "integration")
}

// Deactivate marks the integration inactive after a failed refresh.
func (a *IntegrationAdapter) Deactivate(ctx context.Context, userID string) error {
	query := `
		UPDATE calendar_integrations
		SET is_active = false, updated_at = NOW()
		WHERE user_id = $1`

	result, err := a.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	return requireRow(result, "integration")
}

// UpdateLastSyncedAt records the completion time of a sync pass.
func (a *IntegrationAdapter) UpdateLastSyncedAt(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET last_synced_at = $2, updated_at = NOW()
		WHERE user_id = $1`

	_, err := a.db.ExecContext(ctx, query, userID, at)
	return err
}

// Delete removes the integration entirely.
func (a *IntegrationAdapter) Delete(ctx context.Context, userID string) error {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM calendar_integrations WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	return requireRow(result, "integration")
}

// ListDueForSync returns active integrations not synced since the cutoff.
func (a *IntegrationAdapter) ListDueForSync(ctx context.Context, before time.Time, limit int) ([]*out.IntegrationEntity, error) {
	var entities []*out.IntegrationEntity
	query := `
		SELECT *
		FROM calendar_integrations
		WHERE is_active = true
		  AND (last_synced_at IS NULL OR last_synced_at < $1)
		ORDER BY last_synced_at ASC NULLS FIRST
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &entities, query, before, limit); err != nil {
		return nil, err
	}

	for _, entity := range entities {
		a.decryptEntity(entity)
	}
	return entities, nil
}

func requireRow(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFound(resource)
	}
	return nil
}
