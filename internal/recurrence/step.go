package recurrence

import "time"

// Next returns the start of the occurrence following current. It must
// only be called with a rule that recurs.
//
// Monthly stepping keeps the day of month when the target month has it
// and otherwise clamps to that month's last day, so Jan 31 steps to
// Feb 29 (2024). Because each step starts from the previous occurrence
// the clamped day carries forward: Jan 31, Feb 29, Mar 29, ...
func Next(current time.Time, r Rule) time.Time {
	n := r.Interval
	if n < 1 {
		n = 1
	}
	switch r.Kind {
	case KindDaily:
		return current.AddDate(0, 0, n)
	case KindWeekly:
		return current.AddDate(0, 0, 7*n)
	case KindMonthly:
		return addMonthsClamped(current, n)
	default:
		return current
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// Normalize year/month through the first of the target month.
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
