// Package db opens the visit database (SQLite or PostgreSQL) and runs migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is a *sql.DB that knows its dialect. Queries in this module are
// written with ? placeholders and passed through Rebind.
type DB struct {
	*sql.DB
	dialect Dialect
}

// DefaultPath returns the default database path: ~/.carevisit/visits.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".carevisit", "visits.db"), nil
}

// IsPostgresDSN reports whether dsn addresses a PostgreSQL server.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open opens the database named by dsn and runs migrations. A postgres://
// URL uses the pgx driver; anything else is treated as a SQLite file path,
// created if missing, with WAL mode and foreign keys enabled.
func Open(dsn string) (*DB, error) {
	if IsPostgresDSN(dsn) {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return finishOpen(&DB{DB: conn, dialect: Postgres})
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return finishOpen(&DB{DB: conn, dialect: SQLite})
}

func finishOpen(d *DB) (*DB, error) {
	if err := d.configure(); err != nil {
		closeErr := d.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close: %v)", err, closeErr)
		}
		return nil, err
	}

	if err := d.migrate(); err != nil {
		closeErr := d.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (also failed to close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Dialect returns the SQL dialect of the connection.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind rewrites ? placeholders into $1, $2, ... for PostgreSQL.
// SQLite queries are returned unchanged.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// configure sets SQLite pragmas for WAL mode and foreign keys.
// PostgreSQL needs no session setup; it is pinged instead.
func (d *DB) configure() error {
	if d.dialect == Postgres {
		if err := d.Ping(); err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		return nil
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	}

	for _, p := range pragmas {
		if _, err := d.Exec(p); err != nil {
			return fmt.Errorf("executing %s: %w", p, err)
		}
	}

	return nil
}
