package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// Module is a node in the code knowledge graph with a file-system identity.
type Module struct {
	ID   string
	Path string
}

// Edge is a typed, directed relationship between two modules.
type Edge struct {
	FromID   string
	ToID     string
	EdgeType string
}

// EdgeQuery filters graph edges. Empty fields are unconstrained.
type EdgeQuery struct {
	EdgeTypes []string
	ToIDs     []string
	FromIDs   []string
}

// GetModuleByPath resolves a file path to its module, or nil when unknown.
func (db *DB) GetModuleByPath(path string) (*Module, error) {
	var m Module
	err := db.conn.QueryRow(`SELECT id, path FROM modules WHERE path = ?`, path).Scan(&m.ID, &m.Path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve module for %s: %w", path, err)
	}
	return &m, nil
}

// GetModule resolves a module id, or nil when unknown.
func (db *DB) GetModule(id string) (*Module, error) {
	var m Module
	err := db.conn.QueryRow(`SELECT id, path FROM modules WHERE id = ?`, id).Scan(&m.ID, &m.Path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module %s: %w", id, err)
	}
	return &m, nil
}

// UpsertModule records a module identity.
func (db *DB) UpsertModule(m Module) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO modules (id, path) VALUES (?, ?)`, m.ID, m.Path)
	if err != nil {
		return fmt.Errorf("failed to upsert module %s: %w", m.ID, err)
	}
	return nil
}

// AddGraphEdge records a directed edge between two modules.
func (db *DB) AddGraphEdge(e Edge) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO graph_edges (from_id, to_id, edge_type) VALUES (?, ?, ?)
	`, e.FromID, e.ToID, e.EdgeType)
	if err != nil {
		return fmt.Errorf("failed to add edge %s->%s: %w", e.FromID, e.ToID, err)
	}
	return nil
}

// GetGraphEdges returns edges matching the query.
func (db *DB) GetGraphEdges(q EdgeQuery) ([]Edge, error) {
	query := `SELECT from_id, to_id, edge_type FROM graph_edges`
	var clauses []string
	var args []interface{}

	if len(q.EdgeTypes) > 0 {
		clauses = append(clauses, inClause("edge_type", len(q.EdgeTypes)))
		for _, t := range q.EdgeTypes {
			args = append(args, t)
		}
	}
	if len(q.ToIDs) > 0 {
		clauses = append(clauses, inClause("to_id", len(q.ToIDs)))
		for _, id := range q.ToIDs {
			args = append(args, id)
		}
	}
	if len(q.FromIDs) > 0 {
		clauses = append(clauses, inClause("from_id", len(q.FromIDs)))
		for _, id := range q.FromIDs {
			args = append(args, id)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph edges: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.EdgeType); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

func inClause(column string, n int) string {
	return column + " IN (?" + strings.Repeat(",?", n-1) + ")"
}
