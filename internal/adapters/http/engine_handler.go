package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
)

// EngineHandler exposes the expansion engine without touching storage
type EngineHandler struct {
	maxOccurrences int
}

// NewEngineHandler creates the engine handler. Rules producing more than
// maxOccurrences dates are rejected; zero disables the limit.
func NewEngineHandler(maxOccurrences int) *EngineHandler {
	return &EngineHandler{maxOccurrences: maxOccurrences}
}

type ExpandRequest struct {
	Events     []entities.Event `json:"events"`
	RangeStart caldate.Date     `json:"rangeStart"`
	RangeEnd   caldate.Date     `json:"rangeEnd"`
}

type RepeatDatesRequest struct {
	Event entities.Event `json:"event"`
}

type RepeatDatesResponse struct {
	Dates []string `json:"dates"`
}

func (h *EngineHandler) Register(g *echo.Group) {
	g.POST("/expand", h.Expand)
	g.POST("/repeat-dates", h.RepeatDates)
}

// Expand godoc
// @Summary Expand recurring events into a window
// @Description Occurrences get ids of the form <baseId>-<YYYY-MM-DD>; non-recurring events inside the window pass through
// @Tags engine
// @Accept json
// @Produce json
// @Param request body ExpandRequest true "Events and window"
// @Success 200 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /expand [post]
func (h *EngineHandler) Expand(c echo.Context) error {
	var req ExpandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format").SetInternal(err)
	}
	if req.RangeStart.IsZero() || req.RangeEnd.IsZero() {
		return fmt.Errorf("%w: rangeStart and rangeEnd are required", entities.ErrInvalidRange)
	}
	if req.RangeEnd.Before(req.RangeStart) {
		return fmt.Errorf("%w: rangeEnd before rangeStart", entities.ErrInvalidRange)
	}

	for _, e := range req.Events {
		if recurrence.ExceedsOccurrences(e, req.RangeStart, req.RangeEnd, h.maxOccurrences) {
			return fmt.Errorf("%w: event %q in %s..%s", entities.ErrTooManyOccurrences, e.ID, req.RangeStart, req.RangeEnd)
		}
	}

	events := recurrence.ExpandRepeatingEvents(req.Events, req.RangeStart, req.RangeEnd)
	return c.JSON(http.StatusOK, EventsResponse{Events: events})
}

// RepeatDates godoc
// @Summary Occurrence dates of a recurring event
// @Description Dates after the base date up to the end date; empty when the event is not expandable
// @Tags engine
// @Accept json
// @Produce json
// @Param request body RepeatDatesRequest true "Event"
// @Success 200 {object} RepeatDatesResponse
// @Failure 422 {object} ErrorResponse
// @Router /repeat-dates [post]
func (h *EngineHandler) RepeatDates(c echo.Context) error {
	var req RepeatDatesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format").SetInternal(err)
	}
	if req.Event.Date.IsZero() {
		return fmt.Errorf("%w: event date is required", entities.ErrInvalidEvent)
	}

	if recurrence.ExceedsOccurrences(req.Event, caldate.Date{}, caldate.Date{}, h.maxOccurrences) {
		return fmt.Errorf("%w: %s", entities.ErrTooManyOccurrences, req.Event.Repeat)
	}

	return c.JSON(http.StatusOK, RepeatDatesResponse{Dates: recurrence.GenerateRepeatingDates(req.Event)})
}
