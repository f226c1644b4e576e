// Package http provides fiber HTTP handlers.
package http

import (
	"errors"
	"time"

	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUserID safely extracts user_id from fiber context
// Returns error if not authenticated
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDVal := c.Locals("user_id")
	if userIDVal == nil {
		return uuid.Nil, ErrUnauthorized
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return userID, nil
}

// AppErrorResponse maps an error to the standard JSON error envelope.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperr.AsAppError(err)
	return response.ErrorWithDetails(c, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
}

// InternalErrorResponse returns a safe 500 without exposing internal details.
// The error is logged with context; only a generic message goes to the client.
func InternalErrorResponse(c *fiber.Ctx, err error, operation string) error {
	logger.WithError(err).WithField("operation", operation).Error("internal error")
	return response.Error(c, 500, apperr.CodeInternalError, operation+" failed")
}

// QueryTime parses an RFC3339 query parameter, returning the fallback when
// the parameter is absent.
func QueryTime(c *fiber.Ctx, key string, fallback time.Time) (time.Time, error) {
	val := c.Query(key)
	if val == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, apperr.BadRequest(key + " must be RFC3339")
	}
	return t, nil
}

// QueryBool parses a boolean query parameter with a default of false.
func QueryBool(c *fiber.Ctx, key string) bool {
	val := c.Query(key)
	return val == "true" || val == "1"
}
