package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/ports"
)

// EventHandler handles event and repeat group requests
type EventHandler struct {
	eventService ports.EventService
	logger       *logger.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService ports.EventService, logger *logger.Logger) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		logger:       logger,
	}
}

type BatchEventsRequest struct {
	Events []entities.Event `json:"events" validate:"required,min=1"`
}

type BatchDeleteRequest struct {
	EventIDs []string `json:"eventIds" validate:"required,min=1,dive,required"`
}

// Register mounts the event routes on g
func (h *EventHandler) Register(g *echo.Group) {
	g.GET("/events", h.ListEvents)
	g.POST("/events", h.CreateEvent)
	g.GET("/events/:id", h.GetEvent)
	g.PUT("/events/:id", h.UpdateEvent)
	g.DELETE("/events/:id", h.DeleteEvent)

	g.POST("/events-list", h.CreateEvents)
	g.PUT("/events-list", h.UpdateEvents)
	g.DELETE("/events-list", h.DeleteEvents)

	g.GET("/repeat-groups/:groupId", h.GetGroup)
	g.PUT("/repeat-groups/:groupId", h.UpdateGroup)
	g.DELETE("/repeat-groups/:groupId", h.DeleteGroup)
}

// ListEvents godoc
// @Summary List events
// @Description Stored events, or the expanded calendar view when start and end are given
// @Tags events
// @Produce json
// @Param start query string false "Window start (YYYY-MM-DD)"
// @Param end query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /events [get]
func (h *EventHandler) ListEvents(c echo.Context) error {
	start, end, windowed, err := dateRange(c)
	if err != nil {
		return err
	}

	var events []entities.Event
	if windowed {
		events, err = h.eventService.View(c.Request().Context(), start, end)
	} else {
		events, err = h.eventService.List(c.Request().Context())
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, EventsResponse{Events: events})
}

// GetEvent godoc
// @Summary Get event by ID
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} entities.Event
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /events/{id} [get]
func (h *EventHandler) GetEvent(c echo.Context) error {
	event, err := h.eventService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, event)
}

// CreateEvent godoc
// @Summary Create an event
// @Description A recurring event is stored as one record per occurrence, sharing a repeat group id
// @Tags events
// @Accept json
// @Produce json
// @Param request body ports.EventRequest true "Event data"
// @Success 201 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /events [post]
func (h *EventHandler) CreateEvent(c echo.Context) error {
	req := ports.EventRequest{Repeat: entities.NoRepeat()}
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	created, err := h.eventService.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, EventsResponse{Events: created})
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Editing one occurrence of a repeat group detaches it from the group
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param request body ports.EventRequest true "Event data"
// @Success 200 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /events/{id} [put]
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	req := ports.EventRequest{Repeat: entities.NoRepeat()}
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.eventService.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, EventsResponse{Events: updated})
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deleting one occurrence leaves the rest of its repeat group intact
// @Tags events
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /events/{id} [delete]
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	if err := h.eventService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateEvents godoc
// @Summary Store events as given
// @Tags events
// @Accept json
// @Produce json
// @Param request body BatchEventsRequest true "Events"
// @Success 201 {object} EventsResponse
// @Security BearerAuth
// @Router /events-list [post]
func (h *EventHandler) CreateEvents(c echo.Context) error {
	var req BatchEventsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	created, err := h.eventService.CreateBatch(c.Request().Context(), req.Events)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, EventsResponse{Events: created})
}

// UpdateEvents godoc
// @Summary Overwrite events as given
// @Tags events
// @Accept json
// @Produce json
// @Param request body BatchEventsRequest true "Events"
// @Success 200 {object} EventsResponse
// @Security BearerAuth
// @Router /events-list [put]
func (h *EventHandler) UpdateEvents(c echo.Context) error {
	var req BatchEventsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.eventService.UpdateBatch(c.Request().Context(), req.Events)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EventsResponse{Events: updated})
}

// DeleteEvents godoc
// @Summary Delete events by id
// @Tags events
// @Accept json
// @Param request body BatchDeleteRequest true "Event ids"
// @Success 204
// @Security BearerAuth
// @Router /events-list [delete]
func (h *EventHandler) DeleteEvents(c echo.Context) error {
	var req BatchDeleteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.eventService.DeleteBatch(c.Request().Context(), req.EventIDs); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetGroup godoc
// @Summary List the occurrences of a repeat group
// @Tags repeat-groups
// @Produce json
// @Param groupId path string true "Repeat group ID"
// @Success 200 {object} EventsResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /repeat-groups/{groupId} [get]
func (h *EventHandler) GetGroup(c echo.Context) error {
	members, err := h.eventService.Group(c.Request().Context(), c.Param("groupId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EventsResponse{Events: members})
}

// UpdateGroup godoc
// @Summary Edit every occurrence of a repeat group
// @Description Regenerates the group from the new rule; detached occurrences are untouched
// @Tags repeat-groups
// @Accept json
// @Produce json
// @Param groupId path string true "Repeat group ID"
// @Param request body ports.EventRequest true "Event data"
// @Success 200 {object} EventsResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Security BearerAuth
// @Router /repeat-groups/{groupId} [put]
func (h *EventHandler) UpdateGroup(c echo.Context) error {
	req := ports.EventRequest{Repeat: entities.NoRepeat()}
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	groupID := c.Param("groupId")
	members, err := h.eventService.GroupEdit(c.Request().Context(), groupID, req)
	if err != nil {
		return err
	}

	h.logger.Debugw("Repeat group edited", "group_id", groupID, "occurrences", len(members))
	return c.JSON(http.StatusOK, EventsResponse{Events: members})
}

// DeleteGroup godoc
// @Summary Delete every occurrence of a repeat group
// @Tags repeat-groups
// @Param groupId path string true "Repeat group ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /repeat-groups/{groupId} [delete]
func (h *EventHandler) DeleteGroup(c echo.Context) error {
	if err := h.eventService.GroupDelete(c.Request().Context(), c.Param("groupId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
