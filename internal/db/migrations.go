package db

import (
	"fmt"
)

// migrations is an ordered list of SQL statements to run. Statements are
// written in the subset of SQL shared by SQLite and PostgreSQL.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id           TEXT PRIMARY KEY,
		user_name    TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		house_number TEXT NOT NULL DEFAULT '',
		street       TEXT NOT NULL DEFAULT '',
		city         TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL DEFAULT '',
		pincode      TEXT NOT NULL DEFAULT '',
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id            TEXT PRIMARY KEY,
		client_id     TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		caregiver_id  TEXT NOT NULL,
		service_name  TEXT NOT NULL DEFAULT '',
		slot_from     TIMESTAMP NOT NULL,
		slot_to       TIMESTAMP NOT NULL,
		status        TEXT NOT NULL DEFAULT 'upcoming'
		              CHECK (status IN ('upcoming', 'in_progress', 'completed', 'missed')),
		checkin_time  TIMESTAMP,
		checkin_lat   DOUBLE PRECISION,
		checkin_long  DOUBLE PRECISION,
		checkout_time TIMESTAMP,
		checkout_lat  DOUBLE PRECISION,
		checkout_long DOUBLE PRECISION,
		note          TEXT,
		created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CHECK (slot_from < slot_to)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_caregiver ON visits (caregiver_id, slot_from)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		visit_id    TEXT NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed')),
		feedback    TEXT,
		updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_visit ON tasks (visit_id, position)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		key_prefix   TEXT NOT NULL,
		key_hash     TEXT NOT NULL UNIQUE,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used_at TIMESTAMP
	)`,
}

// columnMigrations are additive column changes applied after the tables exist.
var columnMigrations = []struct {
	table, column, definition string
}{
	{"api_keys", "caregiver_id", "TEXT NOT NULL DEFAULT ''"},
}

// migrate runs all migrations in order.
func (d *DB) migrate() error {
	for i, m := range migrations {
		if _, err := d.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	for _, cm := range columnMigrations {
		if err := d.addColumnIfNotExists(cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func (d *DB) addColumnIfNotExists(table, column, definition string) error {
	if d.dialect == Postgres {
		_, err := d.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, definition))
		return err
	}

	exists, err := d.hasColumn(table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = d.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// hasColumn reports whether a SQLite table has the named column.
func (d *DB) hasColumn(table, column string) (found bool, err error) {
	rows, err := d.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating columns: %w", err)
	}

	return false, nil
}
