package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func TestNext(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rule Rule
		want time.Time
	}{
		{"daily", Rule{Kind: KindDaily, Interval: 1}, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"every 3 days", Rule{Kind: KindDaily, Interval: 3}, time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)},
		{"weekly", Rule{Kind: KindWeekly, Interval: 1}, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"every 2 weeks", Rule{Kind: KindWeekly, Interval: 2}, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"monthly", Rule{Kind: KindMonthly, Interval: 1}, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)},
		{"every 14 months", Rule{Kind: KindMonthly, Interval: 14}, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(Next(base, tt.rule)), "want %s, got %s", tt.want, Next(base, tt.rule))
		})
	}
}

func TestNext_MonthlyClampsToLastDay(t *testing.T) {
	monthly := Rule{Kind: KindMonthly, Interval: 1}

	tests := []struct {
		from, want time.Time
	}{
		{time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)},
		{time.Date(2023, 1, 31, 10, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 10, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC), time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := Next(tt.from, monthly)
		assert.True(t, tt.want.Equal(got), "from %s: want %s, got %s", tt.from, tt.want, got)
	}

	// Clamping carries forward because each step starts from the last occurrence.
	cur := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	var days []int
	for i := 0; i < 4; i++ {
		days = append(days, cur.Day())
		cur = Next(cur, monthly)
	}
	assert.Equal(t, []int{31, 29, 29, 29}, days)
}

func TestNext_MatchesRRuleForDailyAndWeekly(t *testing.T) {
	start := time.Date(2024, 1, 30, 9, 15, 0, 0, time.UTC)
	for _, r := range []Rule{
		{Kind: KindDaily, Interval: 1, Count: 40},
		{Kind: KindDaily, Interval: 3, Count: 40},
		{Kind: KindWeekly, Interval: 1, Count: 40},
		{Kind: KindWeekly, Interval: 2, Count: 40},
	} {
		t.Run(Label(r), func(t *testing.T) {
			opt, ok := ROption(r)
			require.True(t, ok)
			opt.Dtstart = start
			rr, err := rrule.NewRRule(opt)
			require.NoError(t, err)

			want := rr.All()
			require.Len(t, want, r.Count)

			cur := start
			for i, w := range want {
				require.True(t, w.Equal(cur), "step %d: want %s, got %s", i, w, cur)
				cur = Next(cur, r)
			}
		})
	}
}
