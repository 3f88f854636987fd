package store

import "time"

// TimeLayout is the format used for every timestamp column. It matches
// sqlite's CURRENT_TIMESTAMP output so Go-written and SQL-written values
// compare lexicographically.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NowString is the current UTC time in TimeLayout.
func NowString() string {
	return FormatTime(time.Now())
}
