// Package persistence provides SQL storage for edited levels.
// SQLite (pure Go) is the default; Postgres is supported through the same
// queries, rebound to its placeholder style.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/talgya/system-tactics/internal/level"
)

// ErrNotFound is returned when no stored level has the requested name.
var ErrNotFound = errors.New("level not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a SQL connection for level persistence.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// Summary describes a stored level without its height field.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	UpdatedAt time.Time `json:"updated_at"`
}

type levelRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Rows      int    `db:"row_count"`
	Columns   int    `db:"col_count"`
	Data      string `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}

// Open opens or creates a level database. For SQLite the dsn is a file path.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// One writer keeps SQLite free of lock contention.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS levels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		row_count INTEGER NOT NULL,
		col_count INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_levels_updated ON levels(updated_at);
	`
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveLevel inserts or replaces the level with the same name.
func (db *DB) SaveLevel(l *level.Level) error {
	return db.saveLevel(db.conn, l)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (db *DB) saveLevel(ex execer, l *level.Level) error {
	if err := l.Check(); err != nil {
		return err
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode level %q: %w", l.Name(), err)
	}

	_, err = ex.Exec(db.conn.Rebind(`INSERT INTO levels
		(id, name, row_count, col_count, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			row_count = excluded.row_count,
			col_count = excluded.col_count,
			data = excluded.data,
			updated_at = excluded.updated_at`),
		uuid.NewString(), l.Name(), l.Rows(), l.Columns(), string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert level %q: %w", l.Name(), err)
	}
	return nil
}

// SaveLevels writes all levels in one transaction (full replace).
func (db *DB) SaveLevels(levels []*level.Level) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM levels"); err != nil {
		return err
	}
	for _, l := range levels {
		if err := db.saveLevel(tx, l); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("levels saved", "count", len(levels))
	return nil
}

// LoadLevel returns the stored level with the given name.
func (db *DB) LoadLevel(name string) (*level.Level, error) {
	var row levelRow
	err := db.conn.Get(&row, db.conn.Rebind("SELECT * FROM levels WHERE name = ?"), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query level %q: %w", name, err)
	}
	return row.decode()
}

// LoadLevels returns every stored level, ordered by name.
func (db *DB) LoadLevels() ([]*level.Level, error) {
	var rows []levelRow
	if err := db.conn.Select(&rows, "SELECT * FROM levels ORDER BY name"); err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}

	levels := make([]*level.Level, 0, len(rows))
	for _, r := range rows {
		l, err := r.decode()
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// ListLevels returns summaries of every stored level, ordered by name.
func (db *DB) ListLevels() ([]Summary, error) {
	var rows []levelRow
	err := db.conn.Select(&rows,
		"SELECT id, name, row_count, col_count, '' AS data, updated_at FROM levels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}

	out := make([]Summary, len(rows))
	for i, r := range rows {
		out[i] = Summary{
			ID:        r.ID,
			Name:      r.Name,
			Rows:      r.Rows,
			Columns:   r.Columns,
			UpdatedAt: time.Unix(r.UpdatedAt, 0).UTC(),
		}
	}
	return out, nil
}

// DeleteLevel removes a stored level.
func (db *DB) DeleteLevel(name string) error {
	res, err := db.conn.Exec(db.conn.Rebind("DELETE FROM levels WHERE name = ?"), name)
	if err != nil {
		return fmt.Errorf("delete level %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// SaveMeta stores a key-value pair in store metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(db.conn.Rebind(`INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, db.conn.Rebind("SELECT value FROM store_meta WHERE key = ?"), key)
	return value, err
}

func (r levelRow) decode() (*level.Level, error) {
	var l level.Level
	if err := json.Unmarshal([]byte(r.Data), &l); err != nil {
		return nil, fmt.Errorf("decode level %q: %w", r.Name, err)
	}
	if l.Rows() != r.Rows || l.Columns() != r.Columns {
		return nil, fmt.Errorf("decode level %q: %w: row says %dx%d, data %dx%d",
			r.Name, level.ErrMalformed, r.Rows, r.Columns, l.Rows(), l.Columns())
	}
	return &l, nil
}
