package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/eventcal/core/internal/adapters/icalendar"
	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
	"github.com/eventcal/core/internal/infrastructure/logger"
)

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Request/Response types
type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type EventsResponse struct {
	Events []entities.Event `json:"events"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrEventNotFound), errors.Is(err, entities.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrInvalidEvent),
		errors.Is(err, entities.ErrInvalidRange),
		errors.Is(err, entities.ErrInvalidOccurrenceKey),
		errors.Is(err, recurrence.ErrUnsupportedRule),
		errors.Is(err, icalendar.ErrInvalidCalendar):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrDuplicateEvent):
		return http.StatusConflict
	case errors.Is(err, entities.ErrRuleNotExpandable), errors.Is(err, entities.ErrTooManyOccurrences):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"message": ...}. Internal errors are
// logged and their details withheld.
func ErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := ErrorResponse{Message: http.StatusText(code)}

		var he *echo.HTTPError
		var ve validator.ValidationErrors
		switch {
		case errors.As(err, &he):
			code = he.Code
			body.Message = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = fmt.Errorf("%v, %w", err, he.Internal)
			}
		case errors.As(err, &ve):
			code = http.StatusBadRequest
			body = ErrorResponse{Message: "validation failed", Details: ve.Error()}
		default:
			code = statusFor(err)
			if code != http.StatusInternalServerError {
				body.Message = err.Error()
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Errorw("Error sending response", "error", err)
		}
	}
}

// bindAndValidate decodes the body into req and runs the struct validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format").SetInternal(err)
	}
	return c.Validate(req)
}

// dateRange reads the start and end query parameters. ok is false when
// neither is given.
func dateRange(c echo.Context) (start, end caldate.Date, ok bool, err error) {
	startStr, endStr := c.QueryParam("start"), c.QueryParam("end")
	if startStr == "" && endStr == "" {
		return caldate.Date{}, caldate.Date{}, false, nil
	}
	if start, err = caldate.ParseDate(startStr); err != nil {
		return start, end, false, fmt.Errorf("%w: start: %v", entities.ErrInvalidRange, err)
	}
	if end, err = caldate.ParseDate(endStr); err != nil {
		return start, end, false, fmt.Errorf("%w: end: %v", entities.ErrInvalidRange, err)
	}
	return start, end, true, nil
}
