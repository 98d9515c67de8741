// Package recurrence expands recurring events into concrete calendar dates.
//
// Everything here is pure and deterministic: the same event and window always
// produce the same output, and all functions are safe for concurrent use.
package recurrence

import (
	"time"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
)

// ShouldExpandEvent reports whether e's rule repeats and is bounded by an end
// date. Unbounded rules are represented by the base event alone.
func ShouldExpandEvent(e entities.Event) bool {
	return e.Repeat.IsRecurring() && e.Repeat.EndDate().IsPresent()
}

type stepFunc func(current caldate.Date) caldate.Date

// GenerateRepeatingDates returns the dates after the base date on which e
// recurs, up to and including the rule's end date. Ineligible events and
// unknown repeat types yield an empty slice.
func GenerateRepeatingDates(e entities.Event) []string {
	return formatDates(repeatingDates(e))
}

func GenerateDailyDates(e entities.Event) []string {
	return formatDates(stepDates(e, dailyStep(interval(e))))
}

func GenerateWeeklyDates(e entities.Event) []string {
	return formatDates(stepDates(e, dailyStep(7*interval(e))))
}

// GenerateMonthlyDates keeps the base day of month, clamped to the length of
// each target month. The clamp always starts from the base day, so a series
// starting on the 31st returns to the 31st after a short month.
func GenerateMonthlyDates(e entities.Event) []string {
	return formatDates(stepDates(e, monthlyStep(e.Date, interval(e))))
}

// GenerateYearlyDates keeps the base month and day, clamping Feb 29 to Feb 28
// in common years.
func GenerateYearlyDates(e entities.Event) []string {
	return formatDates(stepDates(e, yearlyStep(e.Date, interval(e))))
}

func repeatingDates(e entities.Event) []caldate.Date {
	if !ShouldExpandEvent(e) {
		return []caldate.Date{}
	}
	step, ok := stepperFor(e.Date, e.Repeat.Type(), interval(e))
	if !ok {
		return []caldate.Date{}
	}
	return stepDates(e, step)
}

func stepperFor(base caldate.Date, kind entities.RepeatType, n int) (stepFunc, bool) {
	switch kind {
	case entities.RepeatDaily:
		return dailyStep(n), true
	case entities.RepeatWeekly:
		return dailyStep(7 * n), true
	case entities.RepeatMonthly:
		return monthlyStep(base, n), true
	case entities.RepeatYearly:
		return yearlyStep(base, n), true
	default:
		return nil, false
	}
}

// stepDates walks from the base date towards the end date. Each step strictly
// advances, so the loop terminates and the output is strictly ascending.
func stepDates(e entities.Event, step stepFunc) []caldate.Date {
	dates := []caldate.Date{}
	walk(e, step, caldate.Date{}, func(d caldate.Date) bool {
		dates = append(dates, d)
		return true
	})
	return dates
}

// walk calls fn for each generated date up to the earlier of the rule's end
// date and through (ignored when zero), stopping early once fn returns false.
func walk(e entities.Event, step stepFunc, through caldate.Date, fn func(caldate.Date) bool) {
	end, ok := e.Repeat.EndDate().Get()
	if !ok || e.Date.IsZero() {
		return
	}
	if !through.IsZero() && through.Before(end) {
		end = through
	}
	for current := e.Date; current.Before(end); {
		next := step(current)
		if next.After(end) {
			return
		}
		if !fn(next) {
			return
		}
		current = next
	}
}

// interval guards the generators against rules built without the
// constructor (the None variant carries 0).
func interval(e entities.Event) int {
	if n := e.Repeat.Interval(); n > 0 {
		return n
	}
	return 1
}

func dailyStep(days int) stepFunc {
	return func(current caldate.Date) caldate.Date {
		return current.AddDays(days)
	}
}

func monthlyStep(base caldate.Date, months int) stepFunc {
	day := base.Day()
	return func(current caldate.Date) caldate.Date {
		idx := int(current.Month()) - 1 + months
		year := current.Year() + idx/12
		month := idx%12 + 1
		return caldate.New(year, time.Month(month), min(day, caldate.DaysInMonth(year, month)))
	}
}

func yearlyStep(base caldate.Date, years int) stepFunc {
	day, month := base.Day(), int(base.Month())
	return func(current caldate.Date) caldate.Date {
		year := current.Year() + years
		return caldate.New(year, time.Month(month), min(day, caldate.DaysInMonth(year, month)))
	}
}

func formatDates(dates []caldate.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = caldate.FormatDate(d)
	}
	return out
}
