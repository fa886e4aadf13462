// Package presets persists named channel snapshots in sqlite.
package presets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"webdmx/internal/logger"
)

const (
	busyTimeout       = 5000 // milliseconds
	connectionTimeout = 5 * time.Second
)

const schema = `CREATE TABLE IF NOT EXISTS presets (
	name    TEXT PRIMARY KEY,
	payload TEXT NOT NULL
)`

// Preset is a named snapshot. The master is not part of it.
type Preset struct {
	Name  string `json:"name"`
	Value []int  `json:"value"`
}

// Store is the sqlite backed preset store.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (and creates if needed) the preset database at path.
func Open(log logger.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=%d", path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening preset database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating preset table: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every preset ordered by name.
func (s *Store) List(ctx context.Context) ([]Preset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	defer rows.Close()

	presets := []Preset{}
	for rows.Next() {
		var (
			p       Preset
			payload string
		)
		if err := rows.Scan(&p.Name, &payload); err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p.Value); err != nil {
			s.log.With(logger.Fields{"module": "presets"}).Warnf("skipping preset %q: %v", p.Name, err)
			continue
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// Load returns the snapshot stored under name. A missing preset is reported
// with found == false and no error.
func (s *Store) Load(ctx context.Context, name string) (value []int, found bool, err error) {
	var payload string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM presets WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading preset %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, false, fmt.Errorf("decoding preset %q: %w", name, err)
	}
	s.log.With(logger.Fields{"module": "presets"}).Infof("Loading preset: %s", name)
	return value, true, nil
}

// Save stores value under name, replacing any previous snapshot. Tables
// created by older gateways have no key on name, so the upsert is done by
// hand.
func (s *Store) Save(ctx context.Context, name string, value []int) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding preset %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	res, err := tx.ExecContext(ctx, `UPDATE presets SET payload = ? WHERE name = ?`, string(payload), name)
	if err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	if n == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO presets (name, payload) VALUES (?, ?)`, name, string(payload)); err != nil {
			return fmt.Errorf("saving preset %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	return nil
}
