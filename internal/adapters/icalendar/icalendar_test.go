package icalendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
)

var exportTime = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func TestEncode(t *testing.T) {
	monthly := entities.NewRecurrenceRule(entities.RepeatMonthly, 1, caldate.MustParse("2025-06-30"))
	events := []entities.Event{
		{
			ID: "standup", Title: "Standup, daily", Date: caldate.MustParse("2025-01-31"),
			StartTime: "09:00", EndTime: "09:15", Category: "work",
			Repeat: monthly, NotificationTime: 10,
		},
		{
			ID: "trip-2025-02-01", Title: "Trip", Date: caldate.MustParse("2025-02-01"),
			Repeat: entities.NewRecurrenceRule(entities.RepeatDaily, 1, caldate.MustParse("2025-02-03")).WithGroup("g1"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, events, exportTime))
	out := strings.ReplaceAll(buf.String(), "\r\n ", "")

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PRODID:"+ProductID)
	assert.Contains(t, out, "UID:standup")
	assert.Contains(t, out, "DTSTART:20250131T090000")
	assert.Contains(t, out, "DTEND:20250131T091500")
	assert.Contains(t, out, `SUMMARY:Standup\, daily`)
	assert.Contains(t, out, "CATEGORIES:work")
	assert.Contains(t, out, "BEGIN:VALARM")
	assert.Contains(t, out, "TRIGGER:-PT10M")
	assert.Contains(t, out, "RRULE:")
	assert.Contains(t, out, "BYSETPOS=-1")

	// the grouped occurrence is exported without an RRULE
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250201")
	assert.Contains(t, out, PropGroup+":g1")
	assert.Contains(t, out, PropRepeat+":daily/1 until 2025-02-03")
	assert.Equal(t, 1, strings.Count(out, "RRULE:"))
}

// exportedDates evaluates the DTSTART and RRULE lines of an exported VEVENT
// the way another calendar client would.
func exportedDates(t *testing.T, out string) []string {
	t.Helper()

	var dtstart, rule string
	for _, line := range strings.Split(out, "\r\n") {
		switch {
		case strings.HasPrefix(line, "DTSTART;VALUE=DATE:"):
			dtstart = "DTSTART:" + strings.TrimPrefix(line, "DTSTART;VALUE=DATE:")
		case strings.HasPrefix(line, "DTSTART:"):
			dtstart = line
		case strings.HasPrefix(line, "RRULE:"):
			rule = line
		}
	}
	require.NotEmpty(t, dtstart)
	require.NotEmpty(t, rule)

	set, err := rrule.StrToRRuleSet(dtstart + "\n" + rule)
	require.NoError(t, err)

	var dates []string
	for _, at := range set.All() {
		dates = append(dates, caldate.FromTime(at).String())
	}
	return dates
}

func TestEncode_RRuleKeepsEndDate(t *testing.T) {
	tests := []struct {
		name  string
		event entities.Event
		want  []string
	}{
		{
			name: "timed daily",
			event: entities.Event{
				ID: "daily", Title: "Daily", Date: caldate.MustParse("2025-01-01"), StartTime: "09:00",
				Repeat: entities.NewRecurrenceRule(entities.RepeatDaily, 1, caldate.MustParse("2025-01-05")),
			},
			want: []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04", "2025-01-05"},
		},
		{
			name: "all day weekly",
			event: entities.Event{
				ID: "weekly", Title: "Weekly", Date: caldate.MustParse("2025-01-06"),
				Repeat: entities.NewRecurrenceRule(entities.RepeatWeekly, 1, caldate.MustParse("2025-01-27")),
			},
			want: []string{"2025-01-06", "2025-01-13", "2025-01-20", "2025-01-27"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, []entities.Event{tt.event}, exportTime))
			out := strings.ReplaceAll(buf.String(), "\r\n ", "")

			got := exportedDates(t, out)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, append([]string{tt.event.Date.String()}, recurrence.GenerateRepeatingDates(tt.event)...), got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	yearly := entities.NewRecurrenceRule(entities.RepeatYearly, 1, caldate.MustParse("2032-12-31"))
	original := entities.Event{
		ID: "leap", Title: "Leap day", Date: caldate.MustParse("2024-02-29"),
		StartTime: "18:30", EndTime: "20:00", Description: "line one\nline two",
		Location: "Hall; room 2", Category: "personal", Repeat: yearly, NotificationTime: 90,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []entities.Event{original}, exportTime))

	items, skipped, err := Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, items, 1)

	req := items[0].Request
	assert.Equal(t, "leap", items[0].UID)
	assert.Equal(t, original.Title, req.Title)
	assert.Equal(t, "2024-02-29", req.Date.String())
	assert.Equal(t, "18:30", req.StartTime)
	assert.Equal(t, "20:00", req.EndTime)
	assert.Equal(t, original.Description, req.Description)
	assert.Equal(t, original.Location, req.Location)
	assert.Equal(t, "personal", req.Category)
	assert.Equal(t, 90, req.NotificationTime)
	assert.Equal(t, yearly, req.Repeat)
}

func TestDecode(t *testing.T) {
	calendar := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:allday",
		"DTSTAMP:20250101T000000Z",
		"DTSTART;VALUE=DATE:20250310",
		"SUMMARY:Holiday",
		"CATEGORIES:off,family",
		"RRULE:FREQ=WEEKLY;COUNT=3",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weird",
		"DTSTAMP:20250101T000000Z",
		"DTSTART;VALUE=DATE:20250310",
		"SUMMARY:Weird",
		"RRULE:FREQ=MONTHLY;BYDAY=1MO,3MO",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:override",
		"DTSTAMP:20250101T000000Z",
		"DTSTART:20250311T100000",
		"RECURRENCE-ID:20250311T090000",
		"SUMMARY:Moved",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTAMP:20250101T000000Z",
		"DTSTART:20250311T100000",
		"SUMMARY:No uid",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	items, skipped, err := Decode(strings.NewReader(calendar))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, skipped, 3)

	req := items[0].Request
	assert.Equal(t, "Holiday", req.Title)
	assert.Empty(t, req.StartTime)
	assert.Equal(t, "off", req.Category)
	assert.Equal(t, entities.RepeatWeekly, req.Repeat.Type())
	end, ok := req.Repeat.EndDate().Get()
	require.True(t, ok)
	assert.Equal(t, "2025-03-24", end.String())

	assert.Equal(t, "weird", skipped[0].UID)
	assert.Contains(t, skipped[0].Reason, recurrence.ErrUnsupportedRule.Error())
	assert.Equal(t, "override", skipped[1].UID)
	assert.Equal(t, errMissingUID.Error(), skipped[2].Reason)
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"-PT15M", 15, true},
		{"-PT1H30M", 90, true},
		{"-P1D", 1440, true},
		{"-P1W", 10080, true},
		{"-PT0M", 0, true},
		{"PT15M", 0, false},
		{"-P", 0, false},
		{"20250101T090000Z", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseTrigger(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
