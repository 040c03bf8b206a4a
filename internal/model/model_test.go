package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOccurrenceID(t *testing.T) {
	ev := Event{ID: "abc"}
	assert.Equal(t, "abc", Occurrence{Event: ev}.ID())
	assert.Equal(t, "abc_0", Occurrence{Event: ev, Generated: true}.ID())
	assert.Equal(t, "abc_12", Occurrence{Event: ev, Generated: true, Sequence: 12}.ID())
	assert.Equal(t, "abc", Occurrence{Event: ev, Generated: true, Sequence: 3}.EventID())
}

func TestSplitOccurrenceID(t *testing.T) {
	tests := []struct {
		id        string
		eventID   string
		seq       int
		generated bool
	}{
		{"abc", "abc", 0, false},
		{"abc_0", "abc", 0, true},
		{"abc_17", "abc", 17, true},
		{"my_event_3", "my_event", 3, true},
		{"abc_", "abc_", 0, false},
		{"_4", "_4", 0, false},
		{"abc_x", "abc_x", 0, false},
		{"abc_-1", "abc_-1", 0, false},
		{"abc_+1", "abc_+1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			eventID, seq, generated := SplitOccurrenceID(tt.id)
			assert.Equal(t, tt.eventID, eventID)
			assert.Equal(t, tt.seq, seq)
			assert.Equal(t, tt.generated, generated)
		})
	}
}

func TestEventValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.NoError(t, Event{Title: "x", Start: start, End: start}.Validate())
	assert.NoError(t, Event{Title: "x", Start: start, End: start.Add(time.Hour)}.Validate())
	assert.Error(t, Event{Title: " ", Start: start, End: start}.Validate())
	assert.Error(t, Event{Title: "x", Start: start, End: start.Add(-time.Minute)}.Validate())
	assert.Error(t, Event{Title: "x"}.Validate())
}
