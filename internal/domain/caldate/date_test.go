package caldate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month int
		want  int
	}{
		{"january", 2025, 1, 31},
		{"april", 2025, 4, 30},
		{"february common year", 2025, 2, 28},
		{"february leap year", 2024, 2, 29},
		{"february century not leap", 1900, 2, 28},
		{"february 400 year leap", 2000, 2, 29},
		{"december", 2023, 12, 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysInMonth(tt.year, tt.month))
		})
	}
}

func TestDaysInMonth_PanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { DaysInMonth(2024, 0) })
	assert.Panics(t, func() { DaysInMonth(2024, 13) })
}

func TestIsLeapYear(t *testing.T) {
	assert.True(t, IsLeapYear(2024))
	assert.True(t, IsLeapYear(2000))
	assert.False(t, IsLeapYear(2100))
	assert.False(t, IsLeapYear(2023))
}

func TestFormatDate_ZeroPadded(t *testing.T) {
	assert.Equal(t, "2025-01-05", FormatDate(New(2025, time.January, 5)))
	assert.Equal(t, "0999-03-09", FormatDate(New(999, time.March, 9)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.February, d.Month())
	assert.Equal(t, 29, d.Day())

	_, err = ParseDate("2027-02-29")
	assert.Error(t, err)

	_, err = ParseDate("2025/01/01")
	assert.Error(t, err)
}

func TestFromTime_IgnoresZoneOffset(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	late := time.Date(2025, time.March, 1, 23, 30, 0, 0, seoul)
	assert.Equal(t, "2025-03-01", FromTime(late).String())
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustParse("2024-12-30")
	assert.Equal(t, "2025-01-02", d.AddDays(3).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, 0, d.Compare(MustParse("2024-12-30")))
	assert.Equal(t, -1, d.Compare(d.AddDays(1)))
	assert.Equal(t, 1, d.AddDays(1).Compare(d))
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
		End  Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-01-01","end":""}`), &payload))
	assert.Equal(t, "2025-01-01", payload.Date.String())
	assert.True(t, payload.End.IsZero())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-01-01","end":""}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"date":"2025-13-01"}`), &payload))
}

func TestDate_ScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-31", d.String())

	require.NoError(t, d.Scan([]byte("2024-02-29T00:00:00Z")))
	assert.Equal(t, "2024-02-29", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = MustParse("2024-03-01").Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", v)
}
