package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "plannercal/internal/log"
	"plannercal/internal/model"
	"plannercal/internal/recurrence"
)

// importNamespace seeds the deterministic IDs of imported events.
var importNamespace = uuid.MustParse("6f2b8f0e-4c1a-4b51-9a43-1f7f8f1c2d9e")

// ImportedID derives the stable event ID of a VEVENT UID from a source,
// so that re-importing a feed keeps occurrence IDs stable.
func ImportedID(sourceID, uid string) string {
	return uuid.NewSHA1(importNamespace, []byte(sourceID+"\x00"+uid)).String()
}

// ParseEvents converts the VEVENTs of an ICS payload into events.
//
//   - RRULEs are converted to recurrence descriptors; patterns that cannot
//     be represented (BYDAY, YEARLY, ...) import as a single event.
//   - VEVENTs carrying RECURRENCE-ID are overrides of one instance and are
//     skipped, as are EXDATEs.
//   - A missing DTEND gives a zero-length event, or one day when all-day.
//
// Broken VEVENTs are logged and skipped; only an unreadable payload is an
// error.
func ParseEvents(src Source, body []byte) ([]model.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, ok, err := convertVEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID)
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func convertVEvent(src Source, ve *ical.VEvent) (model.Event, bool, error) {
	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return model.Event{}, false, errors.New("missing UID")
	}
	if propValue(ve, "RECURRENCE-ID") != "" {
		appLog.Debug("ics override instance skipped", "id", src.ID, "uid", uid)
		return model.Event{}, false, nil
	}

	ev := model.Event{
		ID:          ImportedID(src.ID, uid),
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Color:       src.Color,
		AllDay:      isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart)),
		SourceID:    src.ID,
	}
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}
	if c := propValue(ve, ical.ComponentProperty("COLOR")); c != "" {
		ev.Color = c
	}

	var err error
	if ev.AllDay {
		ev.Start, err = parseDate(propValue(ve, ical.ComponentPropertyDtStart))
	} else {
		ev.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return model.Event{}, false, fmt.Errorf("uid %s: DTSTART: %w", uid, err)
	}

	var end time.Time
	if ev.AllDay {
		end, err = parseDate(propValue(ve, ical.ComponentPropertyDtEnd))
	} else {
		end, err = ve.GetEndAt()
	}
	switch {
	case err == nil && !end.Before(ev.Start):
		ev.End = end
	case ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		ev.End = ev.Start
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rule, err := recurrence.FromRRule(raw, ev.Start)
		if err != nil {
			appLog.Warn("ics rrule not representable, importing single event", "id", src.ID, "uid", uid, "rrule", raw, "cause", err)
		} else {
			ev.RecurrenceRule = recurrence.Serialize(rule)
		}
	}

	return ev, true, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// parseDate reads a DATE value as UTC midnight.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty date value")
	}
	return time.Parse("20060102", v)
}

// isAllDay reports whether DTSTART is a DATE rather than a DATE-TIME.
func isAllDay(prop *ical.IANAProperty) bool {
	if prop == nil {
		return false
	}
	if vs, ok := prop.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}
