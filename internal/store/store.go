// Package store persists calendar events in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"plannercal/internal/model"
)

// ErrNotFound is returned when an event ID does not exist.
var ErrNotFound = errors.New("store: event not found")

// timeLayout is fixed width in UTC so that text comparison in SQL orders
// instants correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps the sql.DB connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database and runs migrations. ":memory:"
// opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const eventColumns = `id, title, description, start_time, end_time, all_day, location, color,
	recurrence_rule, user_id, workspace_id, source_id`

// Create inserts ev, assigning a random UUID when ev.ID is empty.
func (s *Store) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	if err := insertEvent(ctx, s.db, ev); err != nil {
		return model.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return ev, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, ev model.Event) error {
	now := formatTime(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Title, ev.Description, formatTime(ev.Start), formatTime(ev.End), ev.AllDay,
		ev.Location, ev.Color, nullString(ev.RecurrenceRule), ev.UserID, ev.WorkspaceID,
		nullString(ev.SourceID), now, now)
	return err
}

// Update overwrites the event with ev.ID.
func (s *Store) Update(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, start_time = ?, end_time = ?, all_day = ?,
		    location = ?, color = ?, recurrence_rule = ?, user_id = ?, workspace_id = ?,
		    updated_at = ?
		WHERE id = ?
	`, ev.Title, ev.Description, formatTime(ev.Start), formatTime(ev.End), ev.AllDay,
		ev.Location, ev.Color, nullString(ev.RecurrenceRule), ev.UserID, ev.WorkspaceID,
		formatTime(time.Now()), ev.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Event{}, ErrNotFound
	}
	return s.Get(ctx, ev.ID)
}

// Delete removes the event with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves an event by its ID.
func (s *Store) Get(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

// List returns every event ordered by start.
func (s *Store) List(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListWindow returns the events that may have occurrences in
// (start, end): non-recurring events overlapping it and every event with
// a recurrence descriptor that starts no later than end. The expander
// does the exact filtering.
func (s *Store) ListWindow(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE start_time <= ?
		  AND (recurrence_rule IS NOT NULL OR end_time > ?)
		ORDER BY start_time, id
	`, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReplaceSource swaps all events imported from sourceID for events in a
// single transaction. Events are stored with SourceID set to sourceID.
func (s *Store) ReplaceSource(ctx context.Context, sourceID string, events []model.Event) error {
	if sourceID == "" {
		return errors.New("store: source ID is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to clear source %s: %w", sourceID, err)
	}
	for _, ev := range events {
		ev.SourceID = sourceID
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		ev                model.Event
		start, end        string
		rule, sourceID    sql.NullString
		desc, loc, color  sql.NullString
		userID, workspace sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Title, &desc, &start, &end, &ev.AllDay, &loc, &color,
		&rule, &userID, &workspace, &sourceID); err != nil {
		return model.Event{}, err
	}

	var err error
	if ev.Start, err = parseTime(start); err != nil {
		return model.Event{}, fmt.Errorf("event %s: start_time: %w", ev.ID, err)
	}
	if ev.End, err = parseTime(end); err != nil {
		return model.Event{}, fmt.Errorf("event %s: end_time: %w", ev.ID, err)
	}
	ev.Description = desc.String
	ev.Location = loc.String
	ev.Color = color.String
	ev.RecurrenceRule = rule.String
	ev.UserID = userID.String
	ev.WorkspaceID = workspace.String
	ev.SourceID = sourceID.String
	return ev, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
