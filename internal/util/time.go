package util

import "time"

// RFC3339Now returns the current UTC time formatted as RFC3339.
func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FormatHumanTime converts an RFC3339 timestamp into a short human-readable
// form. The input is returned unchanged when it does not parse.
func FormatHumanTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04")
}
