package types

import (
	"fmt"
	"time"
)

// NextBillingDate calculates the next billing date based on the given start time,
// billing period, and billing period unit (the frequency multiplier).
// For example:
// - If billing period is MONTHLY and unit is 2, we add two months.
// - If billing period is ANNUAL and unit is 1, we add one year.
// - If billing period is WEEKLY and unit is 3, we add 21 days (3 weeks).
// - If billing period is DAILY and unit is 10, we add 10 days.
func NextBillingDate(start time.Time, unit int, period BillingPeriod) (time.Time, error) {
	return AddBillingPeriods(start, 1, unit, period)
}

// AddBillingPeriods returns the boundary n periods after anchor. Boundaries are
// always derived from the anchor itself so that a period anchored on the 31st
// comes back to the 31st after a short month instead of drifting.
func AddBillingPeriods(anchor time.Time, n int, unit int, period BillingPeriod) (time.Time, error) {
	if unit <= 0 {
		return anchor, fmt.Errorf("billing period unit must be a positive integer, got %d", unit)
	}
	if n < 0 {
		return anchor, fmt.Errorf("billing period offset must not be negative, got %d", n)
	}

	switch period {
	case BILLING_PERIOD_DAILY:
		return anchor.AddDate(0, 0, n*unit), nil
	case BILLING_PERIOD_WEEKLY:
		return anchor.AddDate(0, 0, 7*n*unit), nil
	case BILLING_PERIOD_MONTHLY:
		return AddClampedDate(anchor, 0, n*unit, 0), nil
	case BILLING_PERIOD_ANNUAL:
		return AddClampedDate(anchor, n*unit, 0, 0), nil
	default:
		return anchor, fmt.Errorf("invalid billing period type: %s", period)
	}
}

// AddClampedDate adds years and months clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28/29), then adds days as plain
// calendar days.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// normalise the month into 1..12 carrying into the year
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1).Day()
	if d > lastDay {
		d = lastDay
	}

	out := time.Date(newY, newM, d, h, min, sec, t.Nanosecond(), t.Location())
	if days != 0 {
		out = out.AddDate(0, 0, days)
	}
	return out
}

// AddPhaseDuration returns t moved by a phase duration. The boolean is false
// for UNLIMITED durations which have no end.
func AddPhaseDuration(t time.Time, number int, unit DurationUnit) (time.Time, bool) {
	switch unit {
	case DURATION_UNIT_DAYS:
		return t.AddDate(0, 0, number), true
	case DURATION_UNIT_WEEKS:
		return t.AddDate(0, 0, 7*number), true
	case DURATION_UNIT_MONTHS:
		return AddClampedDate(t, 0, number, 0), true
	case DURATION_UNIT_YEARS:
		return AddClampedDate(t, number, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// StartOfDay truncates t to midnight UTC of its calendar date. All billing
// dates are handled at day granularity.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b, negative when b is before a
func DaysBetween(a, b time.Time) int {
	a, b = StartOfDay(a), StartOfDay(b)
	return int(b.Sub(a).Hours() / 24)
}

// Date is a shorthand for a UTC calendar date
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// MinTime returns the earlier of two times
func MinTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxTime returns the later of two times
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD date into a UTC day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}
