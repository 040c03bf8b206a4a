package web

import (
	"net/http"
	"time"

	"plannercal/internal/ics"
	"plannercal/internal/model"
	"plannercal/internal/recurrence"
)

// occurrenceDTO is the JSON view of an occurrence. ID is the string
// identity ("{event_id}" or "{event_id}_{n}"); EventID is always the
// source event.
type occurrenceDTO struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	Generated       bool      `json:"generated"`
	Sequence        *int      `json:"sequence,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AllDay          bool      `json:"all_day"`
	Location        string    `json:"location,omitempty"`
	Color           string    `json:"color,omitempty"`
	RecurrenceLabel string    `json:"recurrence_label"`
	UserID          string    `json:"user_id,omitempty"`
	WorkspaceID     string    `json:"workspace_id,omitempty"`
	SourceID        string    `json:"source_id,omitempty"`
}

type occurrencesResponse struct {
	Occurrences  []occurrenceDTO `json:"occurrences"`
	VisibleStart time.Time       `json:"visible_start"`
	VisibleEnd   time.Time       `json:"visible_end"`
	RangeStart   time.Time       `json:"range_start"`
	RangeEnd     time.Time       `json:"range_end"`
	TimeZone     string          `json:"timezone"`
	TruncatedIDs []string        `json:"truncated_event_ids,omitempty"`
	DegradedIDs  []string        `json:"degraded_event_ids,omitempty"`
}

func toOccurrenceDTO(o model.Occurrence) occurrenceDTO {
	dto := occurrenceDTO{
		ID:              o.ID(),
		EventID:         o.EventID(),
		Generated:       o.Generated,
		Title:           o.Event.Title,
		Description:     o.Event.Description,
		Start:           o.Start,
		End:             o.End,
		AllDay:          o.Event.AllDay,
		Location:        o.Event.Location,
		Color:           o.Event.Color,
		RecurrenceLabel: recurrence.Label(recurrence.Parse(o.Event.RecurrenceRule)),
		UserID:          o.Event.UserID,
		WorkspaceID:     o.Event.WorkspaceID,
		SourceID:        o.Event.SourceID,
	}
	if o.Generated {
		seq := o.Sequence
		dto.Sequence = &seq
	}
	return dto
}

// resolveView reads the requested window:
//
//   - month=YYYY-MM expands the month padded by one month on each side
//   - start=&end= (RFC 3339) expands exactly that window
//   - neither expands the current month, padded
func (s *Server) resolveView(r *http.Request) (recurrence.MonthView, string) {
	q := r.URL.Query()

	if month := q.Get("month"); month != "" {
		v, err := recurrence.ParseMonth(month, s.loc)
		if err != nil {
			return recurrence.MonthView{}, "month must be YYYY-MM"
		}
		return v, ""
	}

	if q.Get("start") != "" || q.Get("end") != "" {
		start, err1 := time.Parse(time.RFC3339, q.Get("start"))
		end, err2 := time.Parse(time.RFC3339, q.Get("end"))
		if err1 != nil || err2 != nil {
			return recurrence.MonthView{}, "start and end must both be RFC 3339 timestamps"
		}
		if end.Before(start) {
			return recurrence.MonthView{}, "end is before start"
		}
		w := recurrence.Window{Start: start, End: end}
		return recurrence.MonthView{Visible: w, Query: w}, ""
	}

	now := s.now().In(s.loc)
	return recurrence.MonthWindow(now.Year(), now.Month(), s.loc), ""
}

// handleOccurrences returns the expanded occurrences of a window.
//
// GET /api/occurrences?month=2024-01
// GET /api/occurrences?start=2024-01-01T00:00:00Z&end=2024-01-31T00:00:00Z
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	view, problem := s.resolveView(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	res, err := s.expand(r.Context(), view.Query)
	if err != nil {
		writeStoreError(w, "expand", err)
		return
	}

	dtos := make([]occurrenceDTO, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		dtos = append(dtos, toOccurrenceDTO(occ))
	}

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:  dtos,
		VisibleStart: view.Visible.Start,
		VisibleEnd:   view.Visible.End,
		RangeStart:   view.Query.Start,
		RangeEnd:     view.Query.End,
		TimeZone:     s.loc.String(),
		TruncatedIDs: res.Truncated,
		DegradedIDs:  res.Degraded,
	})
}

// handleCalendarICS exports the occurrences of a window as iCalendar.
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	view, problem := s.resolveView(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	res, err := s.expand(r.Context(), view.Query)
	if err != nil {
		writeStoreError(w, "expand", err)
		return
	}

	body := ics.EncodeOccurrences("plannercal", res.Occurrences, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
