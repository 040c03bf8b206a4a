package recurrence

import (
	"sort"
	"time"

	"plannercal/internal/model"
)

// DefaultMaxOccurrences caps how many occurrences a rule without COUNT or
// end date may generate per expansion. It bounds the worst-case work of
// Expand to len(events) * DefaultMaxOccurrences steps.
const DefaultMaxOccurrences = 52

// Expander expands events into occurrences. The zero value uses
// DefaultMaxOccurrences.
type Expander struct {
	// MaxOccurrences is the safety ceiling for unbounded rules. Values
	// <= 0 select DefaultMaxOccurrences.
	MaxOccurrences int
}

// Result is the outcome of Expander.Run.
type Result struct {
	// Occurrences are sorted by start; equal starts keep input order.
	Occurrences []model.Occurrence
	// Truncated lists events whose unbounded series stopped at the
	// safety ceiling while still inside the window.
	Truncated []string
	// Degraded lists events whose recurrence descriptor could not be
	// decoded and which were treated as non-recurring.
	Degraded []string
}

// Expand returns every occurrence of events overlapping
// (rangeStart, rangeEnd) using the default safety ceiling.
//
// An occurrence overlaps when end > rangeStart and start < rangeEnd, so
// one ending exactly at rangeStart or starting exactly at rangeEnd is
// left out. Callers rendering a month should query MonthWindow's padded
// range so multi-day and month-spanning occurrences are not dropped.
func Expand(events []model.Event, rangeStart, rangeEnd time.Time) []model.Occurrence {
	return Expander{}.Run(events, rangeStart, rangeEnd).Occurrences
}

// Expand is Run without the diagnostics.
func (x Expander) Expand(events []model.Event, rangeStart, rangeEnd time.Time) []model.Occurrence {
	return x.Run(events, rangeStart, rangeEnd).Occurrences
}

// Run expands events over the window and reports truncated and degraded
// series alongside the occurrences.
func (x Expander) Run(events []model.Event, rangeStart, rangeEnd time.Time) Result {
	ceiling := x.MaxOccurrences
	if ceiling <= 0 {
		ceiling = DefaultMaxOccurrences
	}

	res := Result{Occurrences: make([]model.Occurrence, 0, len(events))}
	for _, ev := range events {
		rule, err := ParseStrict(ev.RecurrenceRule)
		if err != nil {
			res.Degraded = append(res.Degraded, ev.ID)
		}

		if !rule.Recurs() {
			if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
				res.Occurrences = append(res.Occurrences, model.Occurrence{
					Event: ev,
					Start: ev.Start,
					End:   ev.End,
				})
			}
			continue
		}

		var hitCeiling bool
		res.Occurrences, hitCeiling = expandSeries(res.Occurrences, ev, rule, rangeStart, rangeEnd, ceiling)
		if hitCeiling {
			res.Truncated = append(res.Truncated, ev.ID)
		}
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		return res.Occurrences[i].Start.Before(res.Occurrences[j].Start)
	})
	return res
}

// expandSeries appends the in-window occurrences of a recurring event to
// out. It reports whether generation stopped at the ceiling rather than
// at the window, the end date or the rule's own count.
func expandSeries(out []model.Occurrence, ev model.Event, rule Rule, rangeStart, rangeEnd time.Time, ceiling int) ([]model.Occurrence, bool) {
	duration := ev.End.Sub(ev.Start).Truncate(time.Minute)

	limit := ceiling
	if rule.Count > 0 {
		limit = rule.Count
	}

	start := ev.Start
	for seq := 0; ; seq++ {
		if start.After(rangeEnd) {
			return out, false
		}
		if rule.EndDate != nil && start.After(*rule.EndDate) {
			return out, false
		}
		if seq >= limit {
			return out, rule.Count == 0
		}

		end := start.Add(duration)
		if overlaps(start, end, rangeStart, rangeEnd) {
			out = append(out, model.Occurrence{
				Event:     ev,
				Start:     start,
				End:       end,
				Generated: true,
				Sequence:  seq,
			})
		}
		start = Next(start, rule)
	}
}

func overlaps(start, end, rangeStart, rangeEnd time.Time) bool {
	return end.After(rangeStart) && start.Before(rangeEnd)
}
