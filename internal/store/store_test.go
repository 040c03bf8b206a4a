package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plannercal/internal/model"
	"plannercal/internal/recurrence"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(title string, start time.Time, d time.Duration, rule string) model.Event {
	return model.Event{
		Title:          title,
		Start:          start,
		End:            start.Add(d),
		RecurrenceRule: rule,
		Color:          "#22c55e",
		UserID:         "user-1",
		WorkspaceID:    "ws-1",
	}
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	kst := time.FixedZone("KST", 9*3600)
	in := event("Planning", time.Date(2024, 1, 8, 9, 30, 0, 0, kst), time.Hour, `{"type":"weekly","interval":1}`)
	in.Description = "sprint planning"
	in.Location = "HQ"

	created, err := s.Create(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, "sprint planning", got.Description)
	assert.Equal(t, "HQ", got.Location)
	assert.Equal(t, "ws-1", got.WorkspaceID)
	assert.True(t, in.Start.Equal(got.Start))
	assert.True(t, in.End.Equal(got.End))
	assert.Equal(t, in.RecurrenceRule, got.RecurrenceRule)
	assert.Equal(t, recurrence.KindWeekly, recurrence.Parse(got.RecurrenceRule).Kind)
}

func TestStore_NoRecurrenceIsNull(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, event("One-off", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), time.Hour, ""))
	require.NoError(t, err)

	var rule *string
	require.NoError(t, s.db.QueryRow(`SELECT recurrence_rule FROM events WHERE id = ?`, created.ID).Scan(&rule))
	assert.Nil(t, rule)
}

func TestStore_CreateRejectsInvalidEvent(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Create(context.Background(), event("Backwards", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), -time.Hour, ""))
	assert.Error(t, err)
}

func TestStore_UpdateDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, event("Draft", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), time.Hour, ""))
	require.NoError(t, err)

	created.Title = "Final"
	created.RecurrenceRule = `{"type":"daily","interval":1,"count":3}`
	updated, err := s.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, created.RecurrenceRule, updated.RecurrenceRule)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)

	_, err = s.Update(ctx, created)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListWindow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mk := func(title string, start time.Time, d time.Duration, rule string) string {
		ev, err := s.Create(ctx, event(title, start, d, rule))
		require.NoError(t, err)
		return ev.ID
	}
	before := mk("before", time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC), time.Hour, "")
	series := mk("series", time.Date(2023, 11, 6, 10, 0, 0, 0, time.UTC), time.Hour, `{"type":"weekly","interval":1}`)
	spanning := mk("spanning", time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), 72*time.Hour, "")
	inside := mk("inside", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Hour, "")
	after := mk("after", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), time.Hour, `{"type":"daily","interval":1}`)

	events, err := s.ListWindow(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		got = append(got, ev.ID)
	}
	assert.ElementsMatch(t, []string{series, spanning, inside}, got)
	assert.NotContains(t, got, before)
	assert.NotContains(t, got, after)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ReplaceSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	local, err := s.Create(ctx, event("Local", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), time.Hour, ""))
	require.NoError(t, err)

	first := []model.Event{
		withID(event("A", time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), time.Hour, ""), "team-a"),
		withID(event("B", time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC), time.Hour, ""), "team-b"),
	}
	require.NoError(t, s.ReplaceSource(ctx, "team", first))

	second := []model.Event{
		withID(event("B2", time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC), time.Hour, ""), "team-b"),
	}
	require.NoError(t, s.ReplaceSource(ctx, "team", second))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, local.ID, all[0].ID)
	assert.Equal(t, "", all[0].SourceID)
	assert.Equal(t, "B2", all[1].Title)
	assert.Equal(t, "team", all[1].SourceID)

	// A bad event rolls the whole swap back.
	bad := withID(event("bad", time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), -time.Hour, ""), "team-bad")
	assert.Error(t, s.ReplaceSource(ctx, "team", []model.Event{bad}))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Create(context.Background(), event("x", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), 0, ""))
	assert.NoError(t, err)
}

func withID(ev model.Event, id string) model.Event {
	ev.ID = id
	return ev
}
