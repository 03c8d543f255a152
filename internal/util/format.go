// Package util hosts small helpers shared by adapters and commands.
package util //nolint:revive // package name util hosts shared process and formatting helpers

import "time"

// FormatDuration formats a duration for logs and CLI output.
// Returns "-" for zero or negative durations and truncates to milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
