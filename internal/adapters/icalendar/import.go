package icalendar

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
	"github.com/eventcal/core/internal/ports"
)

// ErrInvalidCalendar is returned when the input is not an iCalendar stream.
var ErrInvalidCalendar = errors.New("invalid calendar")

var (
	errMissingUID   = errors.New("missing UID")
	errMissingStart = errors.New("missing DTSTART")
	errOverride     = errors.New("RECURRENCE-ID overrides are not supported")
)

// triggerPattern matches negative relative alarm triggers such as -PT15M or -P1DT2H.
var triggerPattern = regexp.MustCompile(`^-P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Decode reads every VEVENT of a calendar. Events that cannot be represented
// are reported as skipped; a malformed calendar is an error.
func Decode(r io.Reader) ([]ports.ImportItem, []ports.ImportSkip, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}

	items := make([]ports.ImportItem, 0)
	skipped := make([]ports.ImportSkip, 0)
	for _, ve := range cal.Events() {
		item, err := decodeEvent(ve)
		if err != nil {
			skipped = append(skipped, ports.ImportSkip{UID: item.UID, Reason: err.Error()})
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func decodeEvent(ve *ics.VEvent) (ports.ImportItem, error) {
	var item ports.ImportItem

	uid := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return item, errMissingUID
	}
	item.UID = uid.Value

	if ve.GetProperty(ics.ComponentPropertyRecurrenceId) != nil {
		return item, errOverride
	}

	dtStart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtStart == nil {
		return item, errMissingStart
	}

	req := ports.EventRequest{Repeat: entities.NoRepeat()}
	if isAllDay(dtStart) {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return item, fmt.Errorf("invalid DTSTART: %w", err)
		}
		req.Date = caldate.FromTime(start)
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return item, fmt.Errorf("invalid DTSTART: %w", err)
		}
		req.Date = caldate.FromTime(start)
		req.StartTime = start.Format("15:04")

		// an end on another day cannot be expressed as a time of day
		if end, err := ve.GetEndAt(); err == nil && caldate.FromTime(end).Equal(req.Date) {
			req.EndTime = end.Format("15:04")
		}
	}

	req.Title = text(ve, ics.ComponentPropertySummary)
	req.Description = text(ve, ics.ComponentPropertyDescription)
	req.Location = text(ve, ics.ComponentPropertyLocation)
	if categories := text(ve, ics.ComponentPropertyCategories); categories != "" {
		req.Category = strings.TrimSpace(strings.Split(categories, ",")[0])
	}

	if rrule := ve.GetProperty(ics.ComponentPropertyRrule); rrule != nil {
		rule, err := recurrence.ParseRRule(rrule.Value, req.Date)
		if err != nil {
			return item, err
		}
		req.Repeat = rule
	}

	for _, alarm := range ve.Alarms() {
		trigger := alarm.GetProperty(ics.ComponentPropertyTrigger)
		if trigger == nil {
			continue
		}
		if minutes, ok := parseTrigger(trigger.Value); ok {
			req.NotificationTime = minutes
			break
		}
	}

	item.Request = req
	return item, nil
}

func isAllDay(prop *ics.IANAProperty) bool {
	if values, ok := prop.ICalParameters["VALUE"]; ok && len(values) > 0 && strings.EqualFold(values[0], "DATE") {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}

func text(ve *ics.VEvent, name ics.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parseTrigger converts a "before start" duration into whole minutes.
func parseTrigger(value string) (int, bool) {
	m := triggerPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, false
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}

	var total time.Duration
	matched := false
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unit
		matched = true
	}
	return int(total / time.Minute), matched
}
