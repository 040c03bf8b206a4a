package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"plannercal/internal/model"
)

const productID = "-//plannercal//occurrences//EN"

// EncodeOccurrences renders occurrences as a VCALENDAR with one VEVENT per
// occurrence. Recurring series are exported already expanded, with the
// occurrence ID as UID, so consumers never re-apply our stepping rules.
func EncodeOccurrences(name string, occs []model.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, occ := range occs {
		ve := cal.AddEvent(occ.ID())
		ve.SetDtStampTime(stamp)
		if occ.Event.AllDay {
			ve.SetAllDayStartAt(occ.Start)
			ve.SetAllDayEndAt(occ.End)
		} else {
			ve.SetStartAt(occ.Start)
			ve.SetEndAt(occ.End)
		}
		ve.SetSummary(occ.Event.Title)
		if occ.Event.Description != "" {
			ve.SetDescription(occ.Event.Description)
		}
		if occ.Event.Location != "" {
			ve.SetLocation(occ.Event.Location)
		}
		if occ.Event.Color != "" {
			ve.SetProperty(ical.ComponentProperty("COLOR"), occ.Event.Color)
		}
	}
	return cal.Serialize()
}
