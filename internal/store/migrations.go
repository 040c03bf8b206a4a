package store

import "fmt"

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE events (
				id              TEXT PRIMARY KEY,
				title           TEXT NOT NULL,
				description     TEXT,
				start_time      TEXT NOT NULL,
				end_time        TEXT NOT NULL,
				all_day         INTEGER NOT NULL DEFAULT 0,
				location        TEXT,
				color           TEXT,
				recurrence_rule TEXT,
				user_id         TEXT,
				workspace_id    TEXT,
				created_at      TEXT NOT NULL,
				updated_at      TEXT NOT NULL,
				CHECK (end_time >= start_time)
			);
			CREATE INDEX idx_events_start ON events(start_time);
		`,
	},
	{
		version: 2,
		sql: `
			ALTER TABLE events ADD COLUMN source_id TEXT;
			CREATE INDEX idx_events_source ON events(source_id);
		`,
	},
}

// migrate applies every migration newer than the recorded version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.runMigration(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) runMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
