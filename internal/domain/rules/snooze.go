package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnoozeWindow is a time-of-day range during which cyclic delay alerts are suppressed.
// Start after End wraps across midnight. The zero value is disabled.
type SnoozeWindow struct {
	Start   time.Duration
	End     time.Duration
	Enabled bool
}

// NewSnoozeWindow builds a window from two "hh:mm" values. Two empty values disable it.
func NewSnoozeWindow(from, until string) (SnoozeWindow, error) {
	from, until = strings.TrimSpace(from), strings.TrimSpace(until)
	if from == "" && until == "" {
		return SnoozeWindow{}, nil
	}
	start, err := ParseClock(from)
	if err != nil {
		return SnoozeWindow{}, fmt.Errorf("snooze start: %w", err)
	}
	end, err := ParseClock(until)
	if err != nil {
		return SnoozeWindow{}, fmt.Errorf("snooze end: %w", err)
	}
	return SnoozeWindow{Start: start, End: end, Enabled: true}, nil
}

// Contains reports whether the time of day of t falls inside the window, bounds included.
func (w SnoozeWindow) Contains(t time.Time) bool {
	if !w.Enabled {
		return false
	}
	tod := timeOfDay(t)
	if w.Start <= w.End {
		return w.Start <= tod && tod <= w.End
	}
	return w.Start <= tod || tod <= w.End
}

func (w SnoozeWindow) String() string {
	if !w.Enabled {
		return "disabled"
	}
	return FormatClock(w.Start) + "-" + FormatClock(w.End)
}

// ParseClock parses "hh:mm" or "hh:mm:ss" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want hh:mm[:ss]", s)
	}
	limits := []int{24, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	if total > 24*time.Hour {
		return 0, fmt.Errorf("invalid time of day %q: past 24:00", s)
	}
	return total, nil
}

// FormatClock renders d as hh:mm:ss. An hour value of exactly 24 is shown as 00.
func FormatClock(d time.Duration) string {
	secs := int64(d / time.Second)
	h, rem := secs/3600, secs%3600
	m, s := rem/60, rem%60
	if h == 24 {
		h = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// wallClock returns the instant on t's calendar day whose clock reads offset.
// The offset is split into fields so DST transitions shift nothing.
func wallClock(t time.Time, offset time.Duration) time.Time {
	y, m, d := t.Date()
	secs := int(offset / time.Second)
	return time.Date(y, m, d, secs/3600, secs%3600/60, secs%60, 0, t.Location())
}
