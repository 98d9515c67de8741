package recurrence

import (
	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
)

// DefaultMaxOccurrences caps how many occurrences a single rule may produce.
const DefaultMaxOccurrences = 5000

// InRange reports whether start <= d <= end.
func InRange(d, start, end caldate.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// Occurrence materializes base on date d. The id is derived from the base id
// and the date; every other field, including the rule, is copied.
func Occurrence(base entities.Event, d caldate.Date) entities.Event {
	occ := base
	occ.ID = entities.OccurrenceKey{BaseID: base.ID, Date: d}.String()
	occ.Date = d
	return occ
}

// Occurrences returns every occurrence of base: the base date followed by the
// generated dates. An event that cannot be expanded yields nil.
func Occurrences(base entities.Event) []entities.Event {
	if !ShouldExpandEvent(base) {
		return nil
	}
	dates := append([]caldate.Date{base.Date}, repeatingDates(base)...)
	out := make([]entities.Event, 0, len(dates))
	for _, d := range dates {
		out = append(out, Occurrence(base, d))
	}
	return out
}

// ExpandRepeatingEvents clips events to [start, end]. Events that cannot be
// expanded pass through unchanged when their own date is in range. Expandable
// events contribute one occurrence per date in range, base date included.
// Occurrences of one event are ascending; input order is kept across events.
func ExpandRepeatingEvents(events []entities.Event, start, end caldate.Date) []entities.Event {
	out := []entities.Event{}
	for _, e := range events {
		if InRange(e.Date, start, end) {
			out = append(out, occurrenceOrSelf(e, e.Date))
		}
		if !ShouldExpandEvent(e) {
			continue
		}
		step, ok := stepperFor(e.Date, e.Repeat.Type(), interval(e))
		if !ok {
			continue
		}
		walk(e, step, end, func(d caldate.Date) bool {
			if !d.Before(start) {
				out = append(out, Occurrence(e, d))
			}
			return true
		})
	}
	return out
}

// ExceedsOccurrences reports whether more than limit occurrences of e, base
// date included, fall in [start, end]. Zero bounds are open and a limit
// below 1 disables the check. Stepping stops as soon as the limit is passed.
func ExceedsOccurrences(e entities.Event, start, end caldate.Date, limit int) bool {
	if limit < 1 || !ShouldExpandEvent(e) {
		return false
	}
	inWindow := func(d caldate.Date) bool {
		return (start.IsZero() || !d.Before(start)) && (end.IsZero() || !d.After(end))
	}

	n := 0
	if inWindow(e.Date) {
		n++
	}
	step, ok := stepperFor(e.Date, e.Repeat.Type(), interval(e))
	if !ok {
		return n > limit
	}
	walk(e, step, end, func(d caldate.Date) bool {
		if inWindow(d) {
			n++
		}
		return n <= limit
	})
	return n > limit
}

func occurrenceOrSelf(e entities.Event, d caldate.Date) entities.Event {
	if ShouldExpandEvent(e) {
		return Occurrence(e, d)
	}
	return e
}
