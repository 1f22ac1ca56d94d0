package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhowell/mailtriage/internal/graph"
)

// Wednesday 2026-08-26 14:30 UTC.
var flagNow = time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)

func TestFlagToday(t *testing.T) {
	f := BuildFollowupFlag(FlagToday, flagNow)
	require.NotNil(t, f)
	assert.Equal(t, graph.FlagStatusFlagged, f.FlagStatus)
	assert.Equal(t, "2026-08-26T14:30:00", f.StartDateTime.DateTime)
	assert.Equal(t, "2026-08-26T23:59:00", f.DueDateTime.DateTime)
	assert.Equal(t, "UTC", f.DueDateTime.TimeZone)
}

func TestFlagTomorrow(t *testing.T) {
	f := BuildFollowupFlag(FlagTomorrow, flagNow)
	require.NotNil(t, f)
	assert.Equal(t, "2026-08-27T09:00:00", f.StartDateTime.DateTime)
	assert.Equal(t, "2026-08-27T18:00:00", f.DueDateTime.DateTime)
}

func TestFlagThisWeek(t *testing.T) {
	f := BuildFollowupFlag(FlagThisWeek, flagNow)
	require.NotNil(t, f)
	// Coming Friday is 2026-08-28.
	assert.Equal(t, "2026-08-26T14:30:00", f.StartDateTime.DateTime)
	assert.Equal(t, "2026-08-28T18:00:00", f.DueDateTime.DateTime)
}

func TestFlagThisWeekOnFriday(t *testing.T) {
	friday := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f := BuildFollowupFlag(FlagThisWeek, friday)
	require.NotNil(t, f)
	assert.Equal(t, "2026-08-28T18:00:00", f.DueDateTime.DateTime, "before the cutoff today still counts")

	lateFriday := time.Date(2026, 8, 28, 19, 0, 0, 0, time.UTC)
	f = BuildFollowupFlag(FlagThisWeek, lateFriday)
	require.NotNil(t, f)
	assert.Equal(t, "2026-09-04T18:00:00", f.DueDateTime.DateTime, "past the cutoff rolls to next Friday")
}

func TestFlagNextWeek(t *testing.T) {
	f := BuildFollowupFlag(FlagNextWeek, flagNow)
	require.NotNil(t, f)
	assert.Equal(t, "2026-08-31T00:00:00", f.StartDateTime.DateTime)
	assert.Equal(t, "2026-09-04T18:00:00", f.DueDateTime.DateTime)
}

func TestFlagNextWeekFromMonday(t *testing.T) {
	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	f := BuildFollowupFlag(FlagNextWeek, monday)
	require.NotNil(t, f)
	assert.Equal(t, "2026-08-31T00:00:00", f.StartDateTime.DateTime, "next week is never the current Monday")
}

func TestFlagNoDate(t *testing.T) {
	f := BuildFollowupFlag(FlagNoDate, flagNow)
	require.NotNil(t, f)
	assert.Equal(t, graph.FlagStatusFlagged, f.FlagStatus)
	assert.Nil(t, f.StartDateTime)
	assert.Nil(t, f.DueDateTime)
}

func TestFlagMarkAsComplete(t *testing.T) {
	f := BuildFollowupFlag(FlagMarkAsComplete, flagNow)
	require.NotNil(t, f)
	assert.Equal(t, graph.FlagStatusComplete, f.FlagStatus)
	require.NotNil(t, f.CompletedDateTime)
	assert.Equal(t, "2026-08-26T14:30:00", f.CompletedDateTime.DateTime)
	assert.Nil(t, f.StartDateTime)
	assert.Nil(t, f.DueDateTime)
}

func TestFlagUnknownAndEmpty(t *testing.T) {
	assert.Nil(t, BuildFollowupFlag("", flagNow))
	assert.Nil(t, BuildFollowupFlag("someday", flagNow))
}

func TestFlagNameIsCaseInsensitive(t *testing.T) {
	f := BuildFollowupFlag(" today ", flagNow)
	require.NotNil(t, f)
	assert.Equal(t, "2026-08-26T23:59:00", f.DueDateTime.DateTime)
}

func TestReplyHTML(t *testing.T) {
	assert.Equal(t, "<p>hi</p>", ReplyHTML("hi"))
	assert.Equal(t, "<p>a<br>b</p>", ReplyHTML("a\nb"))
	assert.Equal(t, "<p>a<br>b</p>", ReplyHTML("a\r\nb"))
}
