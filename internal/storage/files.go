package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// FileRecord is one indexed file's tracking entry.
type FileRecord struct {
	Path         string
	Checksum     string
	LastModified time.Time
	IndexedAt    time.Time
}

// GetFileChecksum returns the stored checksum for a path, or "" when the
// path has never been indexed.
func (db *DB) GetFileChecksum(path string) (string, error) {
	var checksum string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&checksum)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get checksum for %s: %w", path, err)
	}
	return checksum, nil
}

// SaveFileChecksum records a file's checksum and modification time.
func (db *DB) SaveFileChecksum(path, checksum string, lastModified time.Time) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO files (path, checksum, mtime, indexed_at)
		VALUES (?, ?, ?, ?)
	`, path, checksum, lastModified.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save checksum for %s: %w", path, err)
	}
	return nil
}

// DeleteFile removes a file's tracking entry.
func (db *DB) DeleteFile(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// GetFiles enumerates all indexed files.
func (db *DB) GetFiles() ([]FileRecord, error) {
	rows, err := db.conn.Query(`SELECT path, checksum, mtime, indexed_at FROM files`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var mtime, indexedAt int64
		if err := rows.Scan(&f.Path, &f.Checksum, &mtime, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		f.LastModified = time.Unix(mtime, 0)
		f.IndexedAt = time.Unix(indexedAt, 0)
		files = append(files, f)
	}

	return files, rows.Err()
}

// FileCount returns the number of tracked files.
func (db *DB) FileCount() int {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&count); err != nil {
		return 0
	}
	return count
}
