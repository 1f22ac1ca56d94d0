package triage

import (
	"strings"
	"time"

	"github.com/dhowell/mailtriage/internal/graph"
)

// Flag names the classifier may emit (exact strings).
const (
	FlagToday          = "Today"
	FlagTomorrow       = "Tomorrow"
	FlagThisWeek       = "This week"
	FlagNextWeek       = "Next week"
	FlagNoDate         = "No date"
	FlagMarkAsComplete = "Mark as complete"
)

// graphTime is the dateTime layout Graph expects inside a
// dateTimeTimeZone pair; the zone rides in the TimeZone field.
const graphTime = "2006-01-02T15:04:05"

func graphDateTime(t time.Time) *graph.DateTimeTimeZone {
	return &graph.DateTimeTimeZone{
		DateTime: t.UTC().Truncate(time.Second).Format(graphTime),
		TimeZone: "UTC",
	}
}

// BuildFollowupFlag maps a symbolic flag name to a concrete follow-up
// flag, anchored at now (UTC). Unrecognized or absent names return
// nil, which leaves any existing flag untouched.
func BuildFollowupFlag(name string, now time.Time) *graph.FollowupFlag {
	now = now.UTC()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil

	case strings.ToLower(FlagToday):
		due := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, time.UTC)
		return flagged(now, due)

	case strings.ToLower(FlagTomorrow):
		tmr := now.AddDate(0, 0, 1)
		start := time.Date(tmr.Year(), tmr.Month(), tmr.Day(), 9, 0, 0, 0, time.UTC)
		due := time.Date(tmr.Year(), tmr.Month(), tmr.Day(), 18, 0, 0, 0, time.UTC)
		return flagged(start, due)

	case strings.ToLower(FlagThisWeek):
		target := comingFriday(now)
		due := time.Date(target.Year(), target.Month(), target.Day(), 18, 0, 0, 0, time.UTC)
		return flagged(now, due)

	case strings.ToLower(FlagNextWeek):
		monday := nextMonday(now)
		friday := monday.AddDate(0, 0, 4)
		start := time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
		due := time.Date(friday.Year(), friday.Month(), friday.Day(), 18, 0, 0, 0, time.UTC)
		return flagged(start, due)

	case strings.ToLower(FlagNoDate):
		return &graph.FollowupFlag{FlagStatus: graph.FlagStatusFlagged}

	case strings.ToLower(FlagMarkAsComplete):
		return &graph.FollowupFlag{
			FlagStatus:        graph.FlagStatusComplete,
			CompletedDateTime: graphDateTime(now),
		}

	default:
		return nil
	}
}

func flagged(start, due time.Time) *graph.FollowupFlag {
	return &graph.FollowupFlag{
		FlagStatus:    graph.FlagStatusFlagged,
		StartDateTime: graphDateTime(start),
		DueDateTime:   graphDateTime(due),
	}
}

// comingFriday is today when it is Friday and 18:00 has not passed,
// otherwise the next Friday.
func comingFriday(now time.Time) time.Time {
	daysAhead := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		cutoff := time.Date(now.Year(), now.Month(), now.Day(), 18, 0, 0, 0, time.UTC)
		if !now.Before(cutoff) {
			daysAhead = 7
		}
	}
	return now.AddDate(0, 0, daysAhead)
}

// nextMonday is the Monday of the following week, never today.
func nextMonday(now time.Time) time.Time {
	days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

// ReplyHTML wraps a plain-text reply body as a minimal HTML paragraph,
// preserving line breaks.
func ReplyHTML(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return "<p>" + strings.Join(strings.Split(body, "\n"), "<br>") + "</p>"
}
