package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// OccurrenceIDSeparator joins an event ID and a sequence number in the
// string form of a generated occurrence ID.
const OccurrenceIDSeparator = "_"

// Event is a schedulable calendar item as stored by the events table.
// The recurrence expander only ever reads it.
type Event struct {
	ID          string
	Title       string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool

	Location string
	Color    string

	// RecurrenceRule is the persisted recurrence descriptor. Empty means
	// the event does not recur.
	RecurrenceRule string

	// Ownership fields are carried through untouched.
	UserID      string
	WorkspaceID string

	// SourceID is the ICS subscription an event was imported from, empty
	// for events created locally.
	SourceID string
}

// Validate checks the invariants the store relies on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("event: title is required")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return errors.New("event: start and end are required")
	}
	if e.End.Before(e.Start) {
		return errors.New("event: end is before start")
	}
	return nil
}

// Occurrence is one concrete instance of an Event inside a requested
// window. It is either the event itself (Generated == false) or the
// Sequence-th instance produced from its recurrence rule.
type Occurrence struct {
	Event Event

	// Start / End are the occurrence's own instants. For an original
	// occurrence they equal Event.Start / Event.End.
	Start time.Time
	End   time.Time

	Generated bool
	Sequence  int
}

// EventID returns the ID of the event this occurrence was derived from.
func (o Occurrence) EventID() string {
	return o.Event.ID
}

// ID renders the occurrence identity used by API and ICS consumers:
// "{event_id}" for an original occurrence and "{event_id}_{n}" for a
// generated one.
func (o Occurrence) ID() string {
	if !o.Generated {
		return o.Event.ID
	}
	return o.Event.ID + OccurrenceIDSeparator + strconv.Itoa(o.Sequence)
}

// SplitOccurrenceID is the inverse of Occurrence.ID. An ID whose last
// separator is not followed by a non-negative integer is treated as an
// original occurrence.
func SplitOccurrenceID(id string) (eventID string, seq int, generated bool) {
	i := strings.LastIndex(id, OccurrenceIDSeparator)
	if i <= 0 || i == len(id)-1 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 || strings.HasPrefix(id[i+1:], "+") {
		return id, 0, false
	}
	return id[:i], n, true
}
