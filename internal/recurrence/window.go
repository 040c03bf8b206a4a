package recurrence

import "time"

// Window is a pair of instants bounding an expansion query.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthView describes the window a calendar month view expands.
type MonthView struct {
	// Visible is the displayed month, [first day 00:00, first day of next month 00:00).
	Visible Window
	// Query is Visible padded by one month on both sides so that
	// occurrences starting before the month but ending inside it are kept.
	Query Window
}

// MonthWindow returns the visible and padded query windows for a month
// in loc. A nil loc means UTC.
func MonthWindow(year int, month time.Month, loc *time.Location) MonthView {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)
	return MonthView{
		Visible: Window{Start: first, End: next},
		Query:   Window{Start: first.AddDate(0, -1, 0), End: next.AddDate(0, 1, 0)},
	}
}

// ParseMonth parses "YYYY-MM" into a MonthView in loc.
func ParseMonth(s string, loc *time.Location) (MonthView, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return MonthView{}, err
	}
	return MonthWindow(t.Year(), t.Month(), loc), nil
}
