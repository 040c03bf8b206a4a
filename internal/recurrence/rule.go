// Package recurrence turns stored calendar events into the concrete
// occurrences visible in a time window.
package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the stepping unit of a recurrence rule.
type Kind string

const (
	KindNone    Kind = "none"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Rule is the structured form of a persisted recurrence descriptor.
type Rule struct {
	Kind Kind
	// Interval means "every Interval Kind-units". Always >= 1.
	Interval int
	// EndDate, when set, stops the series once a candidate start is after it.
	EndDate *time.Time
	// Count, when > 0, is the maximum number of occurrences including the first.
	Count int
}

// None is the rule of an event that does not recur.
func None() Rule {
	return Rule{Kind: KindNone, Interval: 1}
}

// Recurs reports whether r generates more than the original event.
func (r Rule) Recurs() bool {
	return r.Kind != KindNone && r.Kind != ""
}

// wireRule is the JSON layout stored in events.recurrence_rule.
type wireRule struct {
	Type     string `json:"type"`
	Interval *int   `json:"interval,omitempty"`
	EndDate  string `json:"endDate,omitempty"`
	Count    *int   `json:"count,omitempty"`
}

// Parse decodes a persisted descriptor. An empty or malformed descriptor
// yields None(); Parse never fails.
func Parse(raw string) Rule {
	r, err := ParseStrict(raw)
	if err != nil {
		return None()
	}
	return r
}

// ParseStrict decodes a persisted descriptor and reports why it was
// rejected. An empty descriptor is not an error.
func ParseStrict(raw string) (Rule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return None(), nil
	}

	var w wireRule
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return None(), fmt.Errorf("recurrence: decode descriptor: %w", err)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(w.Type)))
	switch kind {
	case KindNone, "":
		return None(), nil
	case KindDaily, KindWeekly, KindMonthly:
	default:
		return None(), fmt.Errorf("recurrence: unknown type %q", w.Type)
	}

	r := Rule{Kind: kind, Interval: 1}
	if w.Interval != nil {
		if *w.Interval < 1 {
			return None(), fmt.Errorf("recurrence: interval must be positive, got %d", *w.Interval)
		}
		r.Interval = *w.Interval
	}
	if w.Count != nil {
		if *w.Count < 1 {
			return None(), fmt.Errorf("recurrence: count must be positive, got %d", *w.Count)
		}
		r.Count = *w.Count
	}
	if w.EndDate != "" {
		t, err := parseEndDate(w.EndDate)
		if err != nil {
			return None(), err
		}
		r.EndDate = &t
	}
	return r, nil
}

// parseEndDate accepts an RFC 3339 instant or a bare calendar date, the
// latter read as UTC midnight.
func parseEndDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("recurrence: invalid endDate %q", s)
}

// Serialize encodes r for storage. A rule that does not recur encodes to
// the empty string, which the store persists as NULL.
func Serialize(r Rule) string {
	if !r.Recurs() {
		return ""
	}
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	w := wireRule{Type: string(r.Kind), Interval: &interval}
	if r.Count > 0 {
		count := r.Count
		w.Count = &count
	}
	if r.EndDate != nil {
		w.EndDate = r.EndDate.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(w)
	if err != nil {
		// wireRule holds only strings and ints.
		panic(err)
	}
	return string(b)
}

// Validate rejects rules that Serialize would have to repair.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindNone, "":
		return nil
	case KindDaily, KindWeekly, KindMonthly:
	default:
		return fmt.Errorf("recurrence: unknown type %q", r.Kind)
	}
	if r.Interval < 1 {
		return errors.New("recurrence: interval must be positive")
	}
	if r.Count < 0 {
		return errors.New("recurrence: count must not be negative")
	}
	return nil
}

var unitNames = map[Kind][2]string{
	KindDaily:   {"Daily", "days"},
	KindWeekly:  {"Weekly", "weeks"},
	KindMonthly: {"Monthly", "months"},
}

// Label renders r for display, e.g. "Weekly" or "Every 3 days".
func Label(r Rule) string {
	names, ok := unitNames[r.Kind]
	if !ok {
		return "Does not repeat"
	}
	if r.Interval <= 1 {
		return names[0]
	}
	return fmt.Sprintf("Every %d %s", r.Interval, names[1])
}
