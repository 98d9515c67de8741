package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventcal/core/internal/adapters/icalendar"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/ports"
)

const calendarContentType = "text/calendar; charset=utf-8"

// maxCalendarSize bounds imported calendar bodies
const maxCalendarSize = 10 << 20

// CalendarHandler handles iCalendar import and export
type CalendarHandler struct {
	eventService ports.EventService
	logger       *logger.Logger
	now          func() time.Time
}

func NewCalendarHandler(eventService ports.EventService, logger *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		eventService: eventService,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *CalendarHandler) Register(g *echo.Group) {
	g.GET("/calendar.ics", h.Export)
	g.POST("/calendar.ics", h.Import)
}

// Export godoc
// @Summary Export events as iCalendar
// @Tags calendar
// @Produce text/calendar
// @Param start query string false "Window start (YYYY-MM-DD)"
// @Param end query string false "Window end (YYYY-MM-DD)"
// @Success 200 {string} string "VCALENDAR"
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /calendar.ics [get]
func (h *CalendarHandler) Export(c echo.Context) error {
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

	var buf bytes.Buffer
	if err := icalendar.Encode(&buf, events, h.now()); err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="calendar.ics"`)
	return c.Blob(http.StatusOK, calendarContentType, buf.Bytes())
}

// Import godoc
// @Summary Import an iCalendar file
// @Description Each VEVENT is created like a new event; unsupported entries are reported as skipped
// @Tags calendar
// @Accept text/calendar
// @Produce json
// @Success 200 {object} ports.ImportReport
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /calendar.ics [post]
func (h *CalendarHandler) Import(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxCalendarSize)

	items, skipped, err := icalendar.Decode(body)
	if err != nil {
		return err
	}

	report, err := h.eventService.Import(c.Request().Context(), items)
	if err != nil {
		return err
	}
	report.Skipped = append(skipped, report.Skipped...)

	h.logger.Infow("Calendar import finished",
		"imported", len(report.Imported),
		"skipped", len(report.Skipped),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return c.JSON(http.StatusOK, report)
}
