// Package timeutil provides UTC time helpers for the challenge engine.
// All persisted timestamps and challenge windows are UTC; these helpers keep
// boundary math and parsing in one place. It also provides the Clock
// abstraction the application layer injects so tests can freeze time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Handlers and schedulers take a Clock so
// completion timestamps and window checks are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock, ticking in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns the production clock.
func NewSystemClock() Clock {
	return SystemClock{}
}

// FrozenClock is a settable clock for tests.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenClock creates a clock frozen at the given instant.
func NewFrozenClock(at time.Time) *FrozenClock {
	return &FrozenClock{now: at.UTC()}
}

// Now returns the frozen instant.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the frozen clock forward.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the frozen clock to an absolute instant.
func (c *FrozenClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY BOUNDARIES
// ══════════════════════════════════════════════════════════════════════════════

// StartOfDay returns the start of the UTC day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// StartOfWeek returns Monday 00:00:00 UTC of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(u.AddDate(0, 0, -(weekday - 1)))
}

// StartOfMonth returns the first day of the UTC month containing t.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := t1.UTC(), t2.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the whole days between two times, always non-negative.
func DaysBetween(t1, t2 time.Time) int {
	d := StartOfDay(t2).Sub(StartOfDay(t1))
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysUntil returns the whole days from now to a deadline, clamped at zero.
func DaysUntil(now, deadline time.Time) int {
	d := StartOfDay(deadline).Sub(StartOfDay(now))
	days := int(d.Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ══════════════════════════════════════════════════════════════════════════════
// WINDOWS
// ══════════════════════════════════════════════════════════════════════════════

// WithinWindow checks start <= t < end. Challenge windows are half-open so
// back-to-back challenges never overlap on the boundary instant.
func WithinWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// WindowProgress returns how far through a window t is, in [0, 1].
func WindowProgress(t, start, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 1
	}
	elapsed := t.Sub(start)
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= total:
		return 1
	default:
		return float64(elapsed) / float64(total)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATS & PARSING
// ══════════════════════════════════════════════════════════════════════════════

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a UTC date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatDateTimeStr formats a time as a UTC datetime string.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTime)
}

// ParseDate parses a date string (YYYY-MM-DD) as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}

// ParseTimestamp parses an RFC 3339 timestamp and normalizes it to UTC.
// Date-only strings are accepted as UTC midnight, matching how challenge
// windows arrive from clients.
func ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return ParseDate(value)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPLAY
// ══════════════════════════════════════════════════════════════════════════════

// FormatRelative returns a human-readable relative duration against now,
// such as "3h left" or "2d ago". Used in log lines and challenge summaries.
func FormatRelative(now, t time.Time) string {
	d := t.Sub(now)
	if d >= 0 {
		return formatSpan(d) + " left"
	}
	return formatSpan(-d) + " ago"
}

func formatSpan(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
