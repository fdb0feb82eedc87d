// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// DayFormat is the calendar-day layout used for cache keys and calendar maps
const DayFormat = "2006-01-02"

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// TimeToUTC converts a time to UTC if it's not already
func TimeToUTC(t time.Time) time.Time {
	return t.UTC()
}

// TruncateToDay drops the time-of-day component, keeping the calendar day in UTC
func TruncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders the calendar day of t as YYYY-MM-DD
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight time
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayFormat, s, time.UTC)
}

// DaysBetween returns the number of whole days from 'from' until 'to'.
// Negative when 'to' precedes 'from'.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// HoursBetween returns the number of whole hours from 'from' until 'to'
func HoursBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours())
}
