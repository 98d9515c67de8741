package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/eventcal/core/internal/domain/caldate"
)

// Common errors
var (
	ErrEventNotFound        = errors.New("event not found")
	ErrGroupNotFound        = errors.New("repeat group not found")
	ErrInvalidEvent         = errors.New("invalid event")
	ErrRuleNotExpandable    = errors.New("recurrence rule is not expandable")
	ErrTooManyOccurrences   = errors.New("recurrence rule produces too many occurrences")
	ErrDuplicateEvent       = errors.New("event already exists")
	ErrInvalidOccurrenceKey = errors.New("invalid occurrence key")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrUnauthorized         = errors.New("unauthorized")
)

// Enums and types
type RepeatType string

const (
	RepeatNone    RepeatType = "none"
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
	RepeatYearly  RepeatType = "yearly"
)

const timeOfDayLayout = "15:04"

// RecurrenceRule is one of None, Daily, Weekly, Monthly or Yearly. Every
// variant except None has an interval of at least 1 and may carry an end date
// and the group id shared by its materialized occurrences.
type RecurrenceRule struct {
	kind     RepeatType
	interval int
	endDate  mo.Option[caldate.Date]
	groupID  mo.Option[string]
}

// NoRepeat returns the None variant.
func NoRepeat() RecurrenceRule {
	return RecurrenceRule{
		kind:    RepeatNone,
		endDate: mo.None[caldate.Date](),
		groupID: mo.None[string](),
	}
}

// NewRecurrenceRule builds a rule. A zero endDate means no end date. Kind
// none (or empty) yields NoRepeat, and non-positive intervals become 1.
// Unrecognized kinds are kept so stored data stays loadable.
func NewRecurrenceRule(kind RepeatType, interval int, endDate caldate.Date) RecurrenceRule {
	if kind == "" || kind == RepeatNone {
		return NoRepeat()
	}
	if interval < 1 {
		interval = 1
	}
	end := mo.None[caldate.Date]()
	if !endDate.IsZero() {
		end = mo.Some(endDate)
	}
	return RecurrenceRule{
		kind:     kind,
		interval: interval,
		endDate:  end,
		groupID:  mo.None[string](),
	}
}

// WithGroup attaches a group id. It is a no-op on the None variant.
func (r RecurrenceRule) WithGroup(id string) RecurrenceRule {
	if r.Type() == RepeatNone || id == "" {
		return r.WithoutGroup()
	}
	r.groupID = mo.Some(id)
	return r
}

func (r RecurrenceRule) WithoutGroup() RecurrenceRule {
	r.groupID = mo.None[string]()
	return r
}

func (r RecurrenceRule) Type() RepeatType {
	if r.kind == "" {
		return RepeatNone
	}
	return r.kind
}

func (r RecurrenceRule) Interval() int { return r.interval }

func (r RecurrenceRule) EndDate() mo.Option[caldate.Date] { return r.endDate }

func (r RecurrenceRule) GroupID() mo.Option[string] { return r.groupID }

// IsRecurring reports whether the rule repeats at all, regardless of
// whether it can be expanded.
func (r RecurrenceRule) IsRecurring() bool {
	return r.Type() != RepeatNone
}

func (r RecurrenceRule) String() string {
	if !r.IsRecurring() {
		return string(RepeatNone)
	}
	s := fmt.Sprintf("%s/%d", r.kind, r.interval)
	if end, ok := r.endDate.Get(); ok {
		s += " until " + end.String()
	}
	return s
}

type recurrenceWire struct {
	Type     RepeatType `json:"type"`
	Interval int        `json:"interval"`
	EndDate  string     `json:"endDate,omitempty"`
	ID       string     `json:"id,omitempty"`
}

func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	w := recurrenceWire{Type: r.Type(), Interval: r.interval}
	if end, ok := r.endDate.Get(); ok {
		w.EndDate = end.String()
	}
	w.ID = r.groupID.OrEmpty()
	return json.Marshal(w)
}

func (r *RecurrenceRule) UnmarshalJSON(data []byte) error {
	var w recurrenceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("invalid recurrence rule: %w", err)
	}
	var end caldate.Date
	if w.EndDate != "" {
		parsed, err := caldate.ParseDate(w.EndDate)
		if err != nil {
			return fmt.Errorf("invalid recurrence end date: %w", err)
		}
		end = parsed
	}
	*r = NewRecurrenceRule(w.Type, w.Interval, end).WithGroup(w.ID)
	return nil
}

// Event represents a calendar event, either user-authored or a materialized
// occurrence of a recurring one.
type Event struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Date             caldate.Date   `json:"date"`
	StartTime        string         `json:"startTime"`
	EndTime          string         `json:"endTime"`
	Description      string         `json:"description"`
	Location         string         `json:"location"`
	Category         string         `json:"category"`
	Repeat           RecurrenceRule `json:"repeat"`
	NotificationTime int            `json:"notificationTime"`
	CreatedAt        time.Time      `json:"createdAt,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt,omitempty"`
}

// OccurrenceKey identifies one occurrence of a base event.
type OccurrenceKey struct {
	BaseID string
	Date   caldate.Date
}

func (k OccurrenceKey) String() string {
	return k.BaseID + "-" + caldate.FormatDate(k.Date)
}

// ParseOccurrenceKey splits "<baseID>-<YYYY-MM-DD>". The date suffix has a
// fixed width, so the base id may itself contain dashes or dates.
func ParseOccurrenceKey(s string) (OccurrenceKey, error) {
	n := len(caldate.Layout)
	if len(s) < n+2 || s[len(s)-n-1] != '-' {
		return OccurrenceKey{}, fmt.Errorf("%w: %q", ErrInvalidOccurrenceKey, s)
	}
	d, err := caldate.ParseDate(s[len(s)-n:])
	if err != nil {
		return OccurrenceKey{}, fmt.Errorf("%w: %v", ErrInvalidOccurrenceKey, err)
	}
	return OccurrenceKey{BaseID: s[:len(s)-n-1], Date: d}, nil
}

// Business logic methods for Event
func (e Event) IsRecurring() bool {
	return e.Repeat.IsRecurring()
}

// GroupID returns the repeat group the event belongs to, if any.
func (e Event) GroupID() (string, bool) {
	return e.Repeat.GroupID().Get()
}

func (e Event) InGroup(groupID string) bool {
	id, ok := e.GroupID()
	return ok && id == groupID
}

// Detach clears the recurrence so the event leaves its group for good.
func (e *Event) Detach() {
	e.Repeat = NoRepeat()
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidEvent)
	}
	start, err := parseTimeOfDay(e.StartTime)
	if err != nil {
		return fmt.Errorf("%w: start time: %v", ErrInvalidEvent, err)
	}
	end, err := parseTimeOfDay(e.EndTime)
	if err != nil {
		return fmt.Errorf("%w: end time: %v", ErrInvalidEvent, err)
	}
	if start.IsPresent() && end.IsPresent() && end.MustGet().Before(start.MustGet()) {
		return fmt.Errorf("%w: end time precedes start time", ErrInvalidEvent)
	}
	if e.NotificationTime < 0 {
		return fmt.Errorf("%w: notification time must not be negative", ErrInvalidEvent)
	}
	if end, ok := e.Repeat.EndDate().Get(); ok && end.Before(e.Date) {
		return fmt.Errorf("%w: repeat end date precedes event date", ErrInvalidEvent)
	}
	if e.Repeat.IsRecurring() && !e.Repeat.Type().IsValid() {
		return fmt.Errorf("%w: unknown repeat type %q", ErrInvalidEvent, e.Repeat.Type())
	}
	return nil
}

func parseTimeOfDay(s string) (mo.Option[time.Time], error) {
	if s == "" {
		return mo.None[time.Time](), nil
	}
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return mo.None[time.Time](), err
	}
	return mo.Some(t), nil
}

// Utility methods
func (rt RepeatType) IsValid() bool {
	switch rt {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	default:
		return false
	}
}
