package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
)

// ErrUnsupportedRule is returned for RRULEs that use parts outside the
// daily/weekly/monthly/yearly interval model.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// lastDayClampFrom is the first day of month that may not exist in every month.
const lastDayClampFrom = 28

const (
	untilDateLayout     = "20060102"
	untilFloatingLayout = "20060102T150405"
)

// ToROption renders the rule of e as an RFC 5545 recurrence. Month-end and
// leap-day clamping is expressed with BYMONTHDAY plus BYSETPOS=-1, which
// selects the latest existing day not after the base day.
func ToROption(e entities.Event) (*rrule.ROption, bool) {
	freq, ok := frequencyOf(e.Repeat.Type())
	if !ok {
		return nil, false
	}
	opt := &rrule.ROption{
		Freq:     freq,
		Interval: interval(e),
		Dtstart:  e.Date.Time(),
	}
	if end, ok := e.Repeat.EndDate().Get(); ok {
		// last second of the end date, so a timed base occurrence on that
		// day is still included
		opt.Until = end.Time().Add(24*time.Hour - time.Second)
	}

	day := e.Date.Day()
	if (freq == rrule.MONTHLY || freq == rrule.YEARLY) && day > lastDayClampFrom {
		for d := lastDayClampFrom; d <= day; d++ {
			opt.Bymonthday = append(opt.Bymonthday, d)
		}
		opt.Bysetpos = []int{-1}
		if freq == rrule.YEARLY {
			opt.Bymonth = []int{int(e.Date.Month())}
		}
	}
	return opt, true
}

// RRuleString is the RRULE property value for e, without DTSTART. UNTIL
// matches the value type of the exported DTSTART: a DATE for all-day events
// and a floating end-of-day DATE-TIME for timed ones.
func RRuleString(e entities.Event) (string, bool) {
	opt, ok := ToROption(e)
	if !ok {
		return "", false
	}
	until := opt.Until
	opt.Until = time.Time{}
	value := opt.RRuleString()
	if until.IsZero() {
		return value, true
	}
	if e.StartTime == "" {
		return value + ";UNTIL=" + until.Format(untilDateLayout), true
	}
	return value + ";UNTIL=" + until.Format(untilFloatingLayout), true
}

// ParseRRule parses an RRULE value relative to the base date.
func ParseRRule(value string, base caldate.Date) (entities.RecurrenceRule, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return entities.NoRepeat(), fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	return FromROption(opt, base)
}

// FromROption converts a parsed recurrence into a rule anchored at base.
// COUNT is converted to the end date of the count-th occurrence.
func FromROption(opt *rrule.ROption, base caldate.Date) (entities.RecurrenceRule, error) {
	kind, ok := repeatTypeOf(opt.Freq)
	if !ok {
		return entities.NoRepeat(), fmt.Errorf("%w: frequency %v", ErrUnsupportedRule, opt.Freq)
	}
	if err := checkParts(opt, base); err != nil {
		return entities.NoRepeat(), err
	}

	var end caldate.Date
	switch {
	case !opt.Until.IsZero():
		end = caldate.FromTime(opt.Until)
	case opt.Count > 0:
		end, _ = EndDateForCount(base, kind, opt.Interval, opt.Count)
	}
	return entities.NewRecurrenceRule(kind, opt.Interval, end), nil
}

// EndDateForCount returns the date of the count-th occurrence, counting the
// base date as the first.
func EndDateForCount(base caldate.Date, kind entities.RepeatType, n, count int) (caldate.Date, bool) {
	if count < 1 {
		return caldate.Date{}, false
	}
	if n < 1 {
		n = 1
	}
	step, ok := stepperFor(base, kind, n)
	if !ok {
		return caldate.Date{}, false
	}
	d := base
	for i := 1; i < count; i++ {
		d = step(d)
	}
	return d, true
}

func checkParts(opt *rrule.ROption, base caldate.Date) error {
	if len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byeaster) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedRule, opt.RRuleString())
	}
	if len(opt.Byweekday) > 1 ||
		(len(opt.Byweekday) == 1 && opt.Byweekday[0].Day() != (int(base.Time().Weekday())+6)%7) {
		return fmt.Errorf("%w: BYDAY other than the base weekday", ErrUnsupportedRule)
	}
	if len(opt.Bymonthday) > 0 && maxInt(opt.Bymonthday) != base.Day() {
		return fmt.Errorf("%w: BYMONTHDAY other than the base day", ErrUnsupportedRule)
	}
	if len(opt.Bymonth) > 1 || (len(opt.Bymonth) == 1 && opt.Bymonth[0] != int(base.Month())) {
		return fmt.Errorf("%w: BYMONTH other than the base month", ErrUnsupportedRule)
	}
	return nil
}

func frequencyOf(kind entities.RepeatType) (rrule.Frequency, bool) {
	switch kind {
	case entities.RepeatDaily:
		return rrule.DAILY, true
	case entities.RepeatWeekly:
		return rrule.WEEKLY, true
	case entities.RepeatMonthly:
		return rrule.MONTHLY, true
	case entities.RepeatYearly:
		return rrule.YEARLY, true
	default:
		return 0, false
	}
}

func repeatTypeOf(freq rrule.Frequency) (entities.RepeatType, bool) {
	switch freq {
	case rrule.DAILY:
		return entities.RepeatDaily, true
	case rrule.WEEKLY:
		return entities.RepeatWeekly, true
	case rrule.MONTHLY:
		return entities.RepeatMonthly, true
	case rrule.YEARLY:
		return entities.RepeatYearly, true
	default:
		return "", false
	}
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		m = max(m, x)
	}
	return m
}
