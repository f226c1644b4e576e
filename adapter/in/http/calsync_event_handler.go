package http

import (
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// EventHandler serves calendar event reads, writes, and manual sync.
type EventHandler struct {
	eventService in.EventService

	windowPastDays   int
	windowFutureDays int
}

// NewEventHandler creates a new event handler. The window day counts bound
// the default query and sync range when the client omits one.
func NewEventHandler(eventService in.EventService, windowPastDays, windowFutureDays int) *EventHandler {
	if windowPastDays == 0 {
		windowPastDays = 30
	}
	if windowFutureDays == 0 {
		windowFutureDays = 90
	}
	return &EventHandler{
		eventService:     eventService,
		windowPastDays:   windowPastDays,
		windowFutureDays: windowFutureDays,
	}
}

// Register mounts the event routes.
func (h *EventHandler) Register(app fiber.Router) {
	integration := app.Group("/integration")
	integration.Get("/events", h.ListEvents)
	integration.Post("/events", h.CreateEvent)
	integration.Post("/sync", h.Sync)
}

// ListEvents returns events in [timeMin, timeMax). forceLive=true reconciles
// against the provider before reading.
func (h *EventHandler) ListEvents(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	start, end, err := h.resolveWindow(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	forceLive := QueryBool(c, "forceLive")

	events, source, err := h.eventService.ListEvents(c.Context(), userID, domain.EventWindow{Start: start, End: end}, forceLive)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	// Events come back ordered by start time, so a cap keeps the earliest.
	if limit := c.QueryInt("maxResults"); limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return response.OKWithMeta(c, events, &response.Meta{
		Total:  len(events),
		Source: string(source),
	})
}

// CreateEvent validates the draft and writes it through to the provider.
func (h *EventHandler) CreateEvent(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var draft domain.EventDraft
	if err := c.BodyParser(&draft); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	event, err := h.eventService.CreateEvent(c.Context(), userID, &draft)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.Created(c, event)
}

// syncRequest carries the optional window for a manual sync. Absent fields
// fall back to query params, then to the default window.
type syncRequest struct {
	TimeMin *time.Time `json:"timeMin"`
	TimeMax *time.Time `json:"timeMax"`
}

// Sync reconciles the cached mirror for the window and returns counts.
func (h *EventHandler) Sync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var req syncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "invalid request body")
		}
	}

	start, end, err := h.resolveWindow(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if req.TimeMin != nil {
		start = *req.TimeMin
	}
	if req.TimeMax != nil {
		end = *req.TimeMax
	}

	stats, err := h.eventService.Sync(c.Context(), userID, start, end)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, stats)
}

func (h *EventHandler) resolveWindow(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	start, err := QueryTime(c, "timeMin", now.AddDate(0, 0, -h.windowPastDays))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := QueryTime(c, "timeMax", now.AddDate(0, 0, h.windowFutureDays))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
