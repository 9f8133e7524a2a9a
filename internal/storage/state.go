package storage

import (
	"database/sql"
	"fmt"
)

// GetState reads a value from the watch_meta key/value slot.
// Returns "" when the key has never been written.
func (db *DB) GetState(key string) (string, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM watch_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a value to the watch_meta key/value slot.
func (db *DB) SetState(key, value string) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO watch_meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}
