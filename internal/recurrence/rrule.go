package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// FromRRule converts an iCalendar RRULE value (with or without the
// "RRULE:" prefix) of a series starting at dtstart into a Rule. Only plain
// DAILY/WEEKLY/MONTHLY stepping with INTERVAL, COUNT and UNTIL is
// representable. Calendar clients often restate the start day as a single
// BYDAY (weekly) or BYMONTHDAY (monthly); that is accepted when it matches
// dtstart. Anything else is reported as unsupported.
func FromRRule(value string, dtstart time.Time) (Rule, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return None(), fmt.Errorf("recurrence: parse RRULE %q: %w", value, err)
	}

	var kind Kind
	switch opt.Freq {
	case rrule.DAILY:
		kind = KindDaily
	case rrule.WEEKLY:
		kind = KindWeekly
	case rrule.MONTHLY:
		kind = KindMonthly
	default:
		return None(), fmt.Errorf("recurrence: unsupported RRULE frequency %v", opt.Freq)
	}

	unsupported := fmt.Errorf("recurrence: unsupported RRULE pattern %q", value)
	if len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 || len(opt.Byminute) > 0 ||
		len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return None(), unsupported
	}
	if len(opt.Byweekday) > 0 {
		if kind != KindWeekly || len(opt.Byweekday) != 1 || !isStartWeekday(opt.Byweekday[0], dtstart) {
			return None(), unsupported
		}
	}
	if len(opt.Bymonthday) > 0 {
		if kind != KindMonthly || len(opt.Bymonthday) != 1 || opt.Bymonthday[0] != dtstart.Day() {
			return None(), unsupported
		}
	}

	r := Rule{Kind: kind, Interval: opt.Interval, Count: opt.Count}
	if r.Interval < 1 {
		r.Interval = 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		r.EndDate = &until
	}
	return r, nil
}

// ROption builds the rrule-go option set equivalent to r for plain
// daily/weekly stepping. Monthly rules map to FREQ=MONTHLY, which skips
// months without the start day instead of clamping like Next does.
func ROption(r Rule) (rrule.ROption, bool) {
	var freq rrule.Frequency
	switch r.Kind {
	case KindDaily:
		freq = rrule.DAILY
	case KindWeekly:
		freq = rrule.WEEKLY
	case KindMonthly:
		freq = rrule.MONTHLY
	default:
		return rrule.ROption{}, false
	}
	opt := rrule.ROption{Freq: freq, Interval: r.Interval, Count: r.Count}
	if r.EndDate != nil {
		opt.Until = r.EndDate.UTC()
	}
	return opt, true
}

// RRuleString renders r as an RRULE value, or "" when r does not recur.
func RRuleString(r Rule) string {
	opt, ok := ROption(r)
	if !ok {
		return ""
	}
	return opt.RRuleString()
}

// isStartWeekday reports whether wd is a plain weekday (no ordinal) equal
// to the weekday of t. rrule-go numbers weekdays from Monday.
func isStartWeekday(wd rrule.Weekday, t time.Time) bool {
	return wd.N() == 0 && wd.Day() == (int(t.Weekday())+6)%7
}
