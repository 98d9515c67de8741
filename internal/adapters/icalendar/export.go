// Package icalendar converts events to and from RFC 5545 calendars.
package icalendar

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
)

const (
	ProductID = "-//eventcal//eventcal 1.0//EN"

	// PropRepeat carries the rule of a materialized occurrence, which is
	// exported as a plain VEVENT without RRULE.
	PropRepeat = "X-EVENTCAL-REPEAT"
	PropGroup  = "X-EVENTCAL-GROUP"

	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// Encode writes events as a VCALENDAR. Unmaterialized recurring events get
// an RRULE; grouped occurrences are exported one VEVENT each.
func Encode(w io.Writer, events []entities.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for _, e := range events {
		comp, err := toComponent(e, now)
		if err != nil {
			return err
		}
		cal.Children = append(cal.Children, comp)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func toComponent(e entities.Event, now time.Time) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, e.ID)

	stamp := e.UpdatedAt
	if stamp.IsZero() {
		stamp = now
	}
	comp.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	start, err := dateProp(ical.PropDateTimeStart, e.Date, e.StartTime)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	comp.Props.Set(start)

	if e.StartTime != "" && e.EndTime != "" {
		end, err := dateProp(ical.PropDateTimeEnd, e.Date, e.EndTime)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		comp.Props.Set(end)
	}

	comp.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		comp.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		comp.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Category != "" {
		comp.Props.SetText(ical.PropCategories, e.Category)
	}

	if e.IsRecurring() {
		if groupID, grouped := e.GroupID(); grouped {
			comp.Props.Set(rawProp(PropRepeat, e.Repeat.String()))
			comp.Props.Set(rawProp(PropGroup, groupID))
		} else if rule, ok := recurrence.RRuleString(e); ok {
			comp.Props.Set(rawProp(ical.PropRecurrenceRule, rule))
		}
	}

	if e.NotificationTime > 0 {
		comp.Children = append(comp.Children, alarm(e))
	}
	return comp, nil
}

// rawProp sets the value verbatim, without the VALUE=TEXT parameter and
// escaping SetText applies.
func rawProp(name, value string) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = value
	return prop
}

// dateProp is a VALUE=DATE property for all-day events and a floating
// DATE-TIME otherwise.
func dateProp(name string, date caldate.Date, clock string) (*ical.Prop, error) {
	prop := ical.NewProp(name)
	if clock == "" {
		prop.Params.Set("VALUE", "DATE")
		prop.Value = date.Time().Format(dateLayout)
		return prop, nil
	}

	t, err := time.Parse("15:04", clock)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	at := date.Time().Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	prop.Value = at.Format(dateTimeLayout)
	return prop, nil
}

func alarm(e entities.Event) *ical.Component {
	comp := ical.NewComponent(ical.CompAlarm)
	comp.Props.SetText(ical.PropAction, "DISPLAY")
	comp.Props.SetText(ical.PropDescription, e.Title)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "-PT" + strconv.Itoa(e.NotificationTime) + "M"
	comp.Props.Set(trigger)
	return comp
}
