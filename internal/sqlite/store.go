// Package sqlite is the durable storage backend: account and profile
// records as JSON documents keyed by id, and a content-addressed,
// reference-counted texture blob table shared between profiles.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mcauthd/yggdrasil/identity"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS textures (
	hash     TEXT PRIMARY KEY,
	data     BLOB NOT NULL,
	refcount INTEGER NOT NULL DEFAULT 0
);
`

// Store is the sqlite-backed record store. One instance owns the
// database handle for the whole process.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// the schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// A single writer avoids SQLITE_BUSY under the flusher's burst
	// writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadUsers reads every stored user record.
func (s *Store) LoadUsers() ([]*identity.User, error) {
	rows, err := s.db.Query(`SELECT data FROM users`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load users: %w", err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		u := new(identity.User)
		if err := json.Unmarshal(data, u); err != nil {
			return nil, fmt.Errorf("sqlite: decode user record: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LoadProfiles reads every stored profile record.
func (s *Store) LoadProfiles() ([]*identity.Profile, error) {
	rows, err := s.db.Query(`SELECT data FROM profiles`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*identity.Profile
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p := new(identity.Profile)
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("sqlite: decode profile record: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpsertUser writes the user record, replacing any previous version.
func (s *Store) UpsertUser(u *identity.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO users (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		u.ID, data,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertProfile writes the profile record, replacing any previous
// version.
func (s *Store) UpsertProfile(p *identity.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO profiles (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		p.ID, data,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// DeleteUser removes the user record. Deleting an absent id is not an
// error.
func (s *Store) DeleteUser(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete user %s: %w", id, err)
	}
	return nil
}

// DeleteProfile removes the profile record. Deleting an absent id is
// not an error.
func (s *Store) DeleteProfile(id string) error {
	_, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete profile %s: %w", id, err)
	}
	return nil
}
