package entities

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcal/core/internal/domain/caldate"
)

func TestNewRecurrenceRule(t *testing.T) {
	end := caldate.MustParse("2025-03-01")

	t.Run("none drops interval and end date", func(t *testing.T) {
		r := NewRecurrenceRule(RepeatNone, 5, end)
		assert.Equal(t, RepeatNone, r.Type())
		assert.Equal(t, 0, r.Interval())
		assert.True(t, r.EndDate().IsAbsent())
		assert.False(t, r.IsRecurring())
	})

	t.Run("empty kind is none", func(t *testing.T) {
		assert.Equal(t, RepeatNone, NewRecurrenceRule("", 1, end).Type())
	})

	t.Run("non-positive interval normalized", func(t *testing.T) {
		assert.Equal(t, 1, NewRecurrenceRule(RepeatDaily, 0, end).Interval())
		assert.Equal(t, 1, NewRecurrenceRule(RepeatWeekly, -3, end).Interval())
		assert.Equal(t, 4, NewRecurrenceRule(RepeatWeekly, 4, end).Interval())
	})

	t.Run("zero end date is absent", func(t *testing.T) {
		r := NewRecurrenceRule(RepeatMonthly, 1, caldate.Date{})
		assert.True(t, r.EndDate().IsAbsent())
		assert.True(t, r.IsRecurring())
	})

	t.Run("unknown kind is kept", func(t *testing.T) {
		r := NewRecurrenceRule("hourly", 1, end)
		assert.Equal(t, RepeatType("hourly"), r.Type())
		assert.False(t, r.Type().IsValid())
	})
}

func TestRecurrenceRule_Group(t *testing.T) {
	r := NewRecurrenceRule(RepeatDaily, 1, caldate.MustParse("2025-01-05")).WithGroup("g1")
	id, ok := r.GroupID().Get()
	require.True(t, ok)
	assert.Equal(t, "g1", id)

	assert.True(t, r.WithoutGroup().GroupID().IsAbsent())
	assert.True(t, NoRepeat().WithGroup("g1").GroupID().IsAbsent())
}

func TestRecurrenceRule_JSON(t *testing.T) {
	var r RecurrenceRule
	require.NoError(t, json.Unmarshal([]byte(`{"type":"weekly","interval":2,"endDate":"2025-02-01","id":"grp"}`), &r))
	assert.Equal(t, RepeatWeekly, r.Type())
	assert.Equal(t, 2, r.Interval())
	assert.Equal(t, "2025-02-01", r.EndDate().MustGet().String())
	assert.Equal(t, "grp", r.GroupID().MustGet())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"weekly","interval":2,"endDate":"2025-02-01","id":"grp"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"daily","interval":1,"endDate":""}`), &r))
	assert.True(t, r.EndDate().IsAbsent())
	assert.True(t, r.GroupID().IsAbsent())

	out, err = json.Marshal(NoRepeat())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"none","interval":0}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"type":"daily","interval":1,"endDate":"2025-02-30"}`), &r))
}

func TestOccurrenceKey(t *testing.T) {
	tests := []struct {
		name string
		key  OccurrenceKey
	}{
		{"plain", OccurrenceKey{BaseID: "abc", Date: caldate.MustParse("2025-01-03")}},
		{"uuid base", OccurrenceKey{BaseID: "6f1c2d9e-3b1a-4c55-9e2f-0a8b7c6d5e4f", Date: caldate.MustParse("2024-02-29")}},
		{"base ending in date", OccurrenceKey{BaseID: "x-2020-01-01", Date: caldate.MustParse("2021-12-31")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseOccurrenceKey(tt.key.String())
			require.NoError(t, err)
			assert.Equal(t, tt.key.BaseID, parsed.BaseID)
			assert.True(t, tt.key.Date.Equal(parsed.Date))
		})
	}

	assert.Equal(t, "abc-2025-01-03", OccurrenceKey{BaseID: "abc", Date: caldate.MustParse("2025-01-03")}.String())
}

func TestParseOccurrenceKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "2025-01-01", "-2025-01-01x", "abc_2025-01-01", "abc-2025-13-01"} {
		_, err := ParseOccurrenceKey(s)
		assert.True(t, errors.Is(err, ErrInvalidOccurrenceKey), s)
	}
}

func TestEvent_Detach(t *testing.T) {
	e := Event{
		ID:     "base-2025-01-02",
		Title:  "standup",
		Date:   caldate.MustParse("2025-01-02"),
		Repeat: NewRecurrenceRule(RepeatDaily, 1, caldate.MustParse("2025-01-10")).WithGroup("g"),
	}
	require.True(t, e.IsRecurring())
	require.True(t, e.InGroup("g"))

	e.Detach()
	assert.False(t, e.IsRecurring())
	assert.False(t, e.InGroup("g"))
	assert.Equal(t, 0, e.Repeat.Interval())
	assert.True(t, e.Repeat.EndDate().IsAbsent())

	k, err := ParseOccurrenceKey(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "base", k.BaseID)
}

func TestEvent_Validate(t *testing.T) {
	valid := func() Event {
		return Event{
			Title:     "review",
			Date:      caldate.MustParse("2025-05-01"),
			StartTime: "09:00",
			EndTime:   "10:00",
			Repeat:    NewRecurrenceRule(RepeatWeekly, 1, caldate.MustParse("2025-06-01")),
		}
	}

	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
	}{
		{"valid", func(e *Event) {}, false},
		{"no times", func(e *Event) { e.StartTime, e.EndTime = "", "" }, false},
		{"missing title", func(e *Event) { e.Title = " " }, true},
		{"missing date", func(e *Event) { e.Date = caldate.Date{} }, true},
		{"bad time", func(e *Event) { e.StartTime = "9am" }, true},
		{"end before start", func(e *Event) { e.EndTime = "08:00" }, true},
		{"negative notification", func(e *Event) { e.NotificationTime = -1 }, true},
		{"end date before date", func(e *Event) {
			e.Repeat = NewRecurrenceRule(RepeatDaily, 1, caldate.MustParse("2025-04-01"))
		}, true},
		{"unknown repeat type", func(e *Event) {
			e.Repeat = NewRecurrenceRule("hourly", 1, caldate.MustParse("2025-06-01"))
		}, true},
	}

	// accessors work on values that are not addressable
	require.NoError(t, valid().Validate())
	assert.True(t, valid().IsRecurring())
	_, grouped := valid().GroupID()
	assert.False(t, grouped)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
