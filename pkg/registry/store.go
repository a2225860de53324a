package registry

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/schema"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS tools (
	name        TEXT PRIMARY KEY,
	schema_json TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// Store persists the tool library in sqlite so invented tools survive
// orchestration sessions.
type Store struct {
	db        *sql.DB
	validator *schema.Validator
	logger    zerolog.Logger
}

// OpenStore opens (creating if needed) a tool store at the given path
func OpenStore(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open tool store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize tool store: %w", err)
	}
	return &Store{
		db:        db,
		validator: schema.NewValidator(0, nil),
		logger:    logger.With().Str("component", "toolstore").Logger(),
	}, nil
}

// Save upserts a schema
func (s *Store) Save(t *schema.ToolSchema) error {
	raw, err := t.Serialize()
	if err != nil {
		return fmt.Errorf("serialize schema %q: %w", t.Name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tools (name, schema_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET schema_json = excluded.schema_json, updated_at = excluded.updated_at`,
		t.Name, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save schema %q: %w", t.Name, err)
	}
	return nil
}

// LoadAll returns every stored schema. Rows that no longer validate are
// skipped and logged, not fatal: one corrupt row must not take the library
// down.
func (s *Store) LoadAll() ([]*schema.ToolSchema, error) {
	rows, err := s.db.Query(`SELECT name, schema_json FROM tools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load tool store: %w", err)
	}
	defer rows.Close()

	schemas := []*schema.ToolSchema{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		parsed, err := s.validator.Validate([]byte(raw))
		if err != nil {
			s.logger.Warn().Str("tool", name).Err(err).Msg("Stored schema no longer validates, skipping")
			continue
		}
		schemas = append(schemas, parsed)
	}
	return schemas, rows.Err()
}

// Delete removes a schema from the store
func (s *Store) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM tools WHERE name = ?`, name)
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
