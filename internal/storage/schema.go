package storage

import "fmt"

// currentSchemaVersion tracks the watch bookkeeping schema.
const currentSchemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
		path        TEXT PRIMARY KEY,
		checksum    TEXT NOT NULL,
		mtime       INTEGER NOT NULL DEFAULT 0,
		indexed_at  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS modules (
		id    TEXT PRIMARY KEY,
		path  TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS graph_edges (
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		edge_type  TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, edge_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_edges_to ON graph_edges(to_id, edge_type)`,
	`CREATE TABLE IF NOT EXISTS watch_meta (
		key    TEXT PRIMARY KEY,
		value  TEXT NOT NULL
	)`,
}

// initializeSchema creates all tables if they do not exist
func (db *DB) initializeSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO watch_meta (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", currentSchemaVersion),
	)
	return err
}
