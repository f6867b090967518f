// Package records persists one PulseRecord per definition id in SQLite.
package records

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRecordNotFound is returned when no record exists for an id.
var ErrRecordNotFound = errors.New("pulse record not found")

// Record is the persisted scheduling state of one pulse.
type Record struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Heartbeat       string     `json:"heartbeat"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	LastAnchorValue *string    `json:"last_anchor_value,omitempty"`
	Enabled         bool       `json:"enabled"`
	AddedAt         time.Time  `json:"added_at"`
	FilePath        string     `json:"file_path"`
}

// Store manages pulse records using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the records database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer process; one connection avoids SQLITE_BUSY between
	// concurrent pulse executions.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pulse_records (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		heartbeat TEXT NOT NULL,
		last_checked TEXT,
		last_anchor_value TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		added_at TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetRecord retrieves the record for id.
func (s *Store) GetRecord(id string) (*Record, error) {
	query := `
		SELECT id, name, heartbeat, last_checked, last_anchor_value,
		       enabled, added_at, file_path
		FROM pulse_records
		WHERE id = ?
	`

	rec, err := scanRecord(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return rec, nil
}

// ListRecords returns every record ordered by id.
func (s *Store) ListRecords() ([]Record, error) {
	query := `
		SELECT id, name, heartbeat, last_checked, last_anchor_value,
		       enabled, added_at, file_path
		FROM pulse_records
		ORDER BY id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return out, nil
}

// SaveRecord inserts rec or replaces the stored record with the same id.
func (s *Store) SaveRecord(rec *Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now()
	}

	var anchor any
	if rec.LastAnchorValue != nil {
		anchor = *rec.LastAnchorValue
	}

	query := `
		INSERT INTO pulse_records (
			id, name, heartbeat, last_checked, last_anchor_value,
			enabled, added_at, file_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			heartbeat = excluded.heartbeat,
			last_checked = excluded.last_checked,
			last_anchor_value = excluded.last_anchor_value,
			enabled = excluded.enabled,
			file_path = excluded.file_path
	`

	_, err := s.db.Exec(query,
		rec.ID,
		rec.Name,
		rec.Heartbeat,
		formatTime(rec.LastChecked),
		anchor,
		rec.Enabled,
		formatTime(&rec.AddedAt),
		rec.FilePath,
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var lastChecked, lastAnchor sql.NullString
	var addedAt string

	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Heartbeat,
		&lastChecked, &lastAnchor,
		&rec.Enabled, &addedAt, &rec.FilePath,
	)
	if err != nil {
		return nil, err
	}

	rec.AddedAt, _ = parseTime(addedAt)

	// An unparseable timestamp reads back as never checked, which makes the
	// pulse due.
	if lastChecked.Valid {
		if t, ok := parseTime(lastChecked.String); ok {
			rec.LastChecked = &t
		}
	}
	if lastAnchor.Valid {
		rec.LastAnchorValue = &lastAnchor.String
	}

	return &rec, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.Truncate(0), true
}
