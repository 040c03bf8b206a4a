package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plannercal/internal/model"
	"plannercal/internal/recurrence"
	"plannercal/internal/store"
)

// ruleDTO is the structured recurrence accepted and returned by the API.
type ruleDTO struct {
	Type     string     `json:"type"`
	Interval int        `json:"interval,omitempty"`
	EndDate  *time.Time `json:"end_date,omitempty"`
	Count    int        `json:"count,omitempty"`
}

type eventDTO struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AllDay          bool      `json:"all_day"`
	Location        string    `json:"location,omitempty"`
	Color           string    `json:"color,omitempty"`
	Recurrence      *ruleDTO  `json:"recurrence,omitempty"`
	RecurrenceLabel string    `json:"recurrence_label"`
	RRule           string    `json:"rrule,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	WorkspaceID     string    `json:"workspace_id,omitempty"`
	SourceID        string    `json:"source_id,omitempty"`
}

type eventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location"`
	Color       string    `json:"color"`
	Recurrence  *ruleDTO  `json:"recurrence"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
}

func toEventDTO(ev model.Event) eventDTO {
	rule := recurrence.Parse(ev.RecurrenceRule)
	dto := eventDTO{
		ID:              ev.ID,
		Title:           ev.Title,
		Description:     ev.Description,
		Start:           ev.Start,
		End:             ev.End,
		AllDay:          ev.AllDay,
		Location:        ev.Location,
		Color:           ev.Color,
		RecurrenceLabel: recurrence.Label(rule),
		RRule:           recurrence.RRuleString(rule),
		UserID:          ev.UserID,
		WorkspaceID:     ev.WorkspaceID,
		SourceID:        ev.SourceID,
	}
	if rule.Recurs() {
		dto.Recurrence = &ruleDTO{
			Type:     string(rule.Kind),
			Interval: rule.Interval,
			EndDate:  rule.EndDate,
			Count:    rule.Count,
		}
	}
	return dto
}

// toEvent validates in and encodes its recurrence for storage.
func (in eventInput) toEvent(id string) (model.Event, error) {
	ev := model.Event{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		AllDay:      in.AllDay,
		Location:    in.Location,
		Color:       in.Color,
		UserID:      in.UserID,
		WorkspaceID: in.WorkspaceID,
	}
	if in.Recurrence != nil {
		rule := recurrence.Rule{
			Kind:     recurrence.Kind(strings.ToLower(in.Recurrence.Type)),
			Interval: in.Recurrence.Interval,
			EndDate:  in.Recurrence.EndDate,
			Count:    in.Recurrence.Count,
		}
		if rule.Interval == 0 {
			rule.Interval = 1
		}
		if err := rule.Validate(); err != nil {
			return model.Event{}, err
		}
		ev.RecurrenceRule = recurrence.Serialize(rule)
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func decodeEventInput(w http.ResponseWriter, r *http.Request) (eventInput, error) {
	var in eventInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("invalid JSON body: %w", err)
	}
	return in, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, "list", err)
		return
	}
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toEventDTO(ev))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.lookupEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	in, err := decodeEventInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := in.toEvent("")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.Create(r.Context(), ev)
	if err != nil {
		writeStoreError(w, "create", err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusCreated, toEventDTO(created))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	current, ok := s.writableEvent(w, r)
	if !ok {
		return
	}

	in, err := decodeEventInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := in.toEvent(current.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.store.Update(r.Context(), ev)
	if err != nil {
		writeStoreError(w, "update", err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusOK, toEventDTO(updated))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	current, ok := s.writableEvent(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), current.ID); err != nil {
		writeStoreError(w, "delete", err)
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// lookupEvent loads an event by its own id or by the id of one of its
// occurrences ("{event_id}_{n}"), which resolves to the source event.
func (s *Server) lookupEvent(ctx context.Context, id string) (model.Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return ev, err
	}
	eventID, _, generated := model.SplitOccurrenceID(id)
	if !generated {
		return model.Event{}, err
	}
	return s.store.Get(ctx, eventID)
}

// writableEvent resolves the path id and rejects events owned by a
// subscription; the next refresh would overwrite them anyway.
func (s *Server) writableEvent(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	ev, err := s.lookupEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "get", err)
		return model.Event{}, false
	}
	if ev.SourceID != "" {
		writeError(w, http.StatusConflict, "event is managed by subscription "+ev.SourceID)
		return model.Event{}, false
	}
	return ev, true
}
