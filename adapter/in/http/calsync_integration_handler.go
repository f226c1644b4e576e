package http

import (
	"calsync_server/core/port/in"
	"calsync_server/pkg/logger"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// IntegrationHandler serves the calendar connection lifecycle endpoints.
type IntegrationHandler struct {
	integrationService in.IntegrationService
	frontendURL        string
}

// NewIntegrationHandler creates a new integration handler. frontendURL is
// where the OAuth callback redirects the browser after completion.
func NewIntegrationHandler(integrationService in.IntegrationService, frontendURL string) *IntegrationHandler {
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	return &IntegrationHandler{
		integrationService: integrationService,
		frontendURL:        frontendURL,
	}
}

// Register mounts the integration routes.
func (h *IntegrationHandler) Register(app fiber.Router) {
	integration := app.Group("/integration")
	integration.Get("/status", h.Status)
	integration.Get("/connect", h.Connect)
	integration.Delete("/", h.Disconnect)
}

// RegisterPublic mounts routes that Google calls without a session.
func (h *IntegrationHandler) RegisterPublic(app fiber.Router) {
	app.Get("/integration/callback", h.Callback)
}

// Status reports the connection state for the authenticated user.
func (h *IntegrationHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	info, err := h.integrationService.GetStatus(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, info)
}

// Connect returns the Google consent URL for the authenticated user.
func (h *IntegrationHandler) Connect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	authURL, err := h.integrationService.GetAuthURL(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, fiber.Map{"auth_url": authURL})
}

// Callback completes the OAuth flow after Google redirects back. The browser
// is sent to the frontend settings page either way.
func (h *IntegrationHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("[Integration Callback] provider returned error: %s", errParam)
		return c.Redirect(h.frontendURL + "/settings?error=" + errParam)
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		logger.Warn("[Integration Callback] missing code or state")
		return c.Redirect(h.frontendURL + "/settings?error=invalid_callback")
	}

	integration, err := h.integrationService.HandleCallback(c.Context(), state, code)
	if err != nil {
		logger.WithError(err).Error("[Integration Callback] callback failed")
		return c.Redirect(h.frontendURL + "/settings?error=connect_failed")
	}

	logger.Info("[Integration Callback] connected user %s (%s)", integration.UserID, integration.Email)
	return c.Redirect(h.frontendURL + "/settings?connected=true")
}

// Disconnect removes the credential and the cached event mirror. It succeeds
// even when no integration exists.
func (h *IntegrationHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	if err := h.integrationService.Disconnect(c.Context(), userID); err != nil {
		return AppErrorResponse(c, err)
	}
	return response.NoContent(c)
}
