package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrTextureNotFound is returned when no blob exists for a hash.
var ErrTextureNotFound = errors.New("texture not found")

// PutTexture stores the blob under its SHA-256 hash and bumps the
// reference count. Uploading the same bytes from multiple profiles
// shares one row.
func (s *Store) PutTexture(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	_, err := s.db.Exec(
		`INSERT INTO textures (hash, data, refcount) VALUES (?, ?, 1)
		 ON CONFLICT(hash) DO UPDATE SET refcount = refcount + 1`,
		hash, data,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: put texture: %w", err)
	}
	return hash, nil
}

// Texture returns the blob for the given hash.
func (s *Store) Texture(hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM textures WHERE hash = ?`, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTextureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read texture %s: %w", hash, err)
	}
	return data, nil
}

// ReleaseTexture drops one reference and deletes the blob when the
// count reaches zero. Releasing an unknown hash is a no-op.
func (s *Store) ReleaseTexture(hash string) error {
	if hash == "" {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE textures SET refcount = refcount - 1 WHERE hash = ?`, hash,
	); err != nil {
		return fmt.Errorf("sqlite: release texture %s: %w", hash, err)
	}
	if _, err := tx.Exec(
		`DELETE FROM textures WHERE hash = ? AND refcount <= 0`, hash,
	); err != nil {
		return fmt.Errorf("sqlite: reap texture %s: %w", hash, err)
	}

	return tx.Commit()
}
