package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is bumped whenever a table definition changes.
const SchemaVersion = "1"

// CreateSchema creates the export tables if they do not exist yet.
// Uses a transaction so that schema creation succeeds or fails as a whole.
//
// Tables:
//   - index_runs: one row per exported artifact
//   - definitions: one row per symbol record (list definitions have one row per entry)
//   - call_edges: caller -> callee pairs, deduplicated per run
//   - function_sources: per-file function source text
//   - export_metadata: schema version bookkeeping
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"index_runs", createIndexRunsTable},
		{"definitions", createDefinitionsTable},
		{"call_edges", createCallEdgesTable},
		{"function_sources", createFunctionSourcesTable},
		{"export_metadata", createExportMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO export_metadata (key, value, updated_at)
		VALUES ('schema_version', ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, SchemaVersion, now); err != nil {
		return fmt.Errorf("failed to bootstrap export_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	return nil
}

// GetSchemaVersion retrieves the schema version from export_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='export_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check export_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM export_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in export_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// Table DDL constants

const createIndexRunsTable = `
CREATE TABLE IF NOT EXISTS index_runs (
    run_id TEXT PRIMARY KEY,                     -- UUID
    kind TEXT NOT NULL,                          -- symbols or functions
    input_path TEXT NOT NULL,                    -- build log or source list
    output_path TEXT NOT NULL,                   -- JSON artifact written alongside
    files INTEGER NOT NULL,
    items INTEGER NOT NULL,
    created_at TEXT NOT NULL                     -- ISO 8601
)`

const createDefinitionsTable = `
CREATE TABLE IF NOT EXISTS definitions (
    run_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    def_type TEXT NOT NULL,                      -- function, struct, macro, ...
    name TEXT NOT NULL,
    position INTEGER NOT NULL,                   -- index within a list definition, 0 for single
    is_list INTEGER NOT NULL,
    code TEXT NOT NULL,
    record TEXT NOT NULL,                        -- full record as JSON
    PRIMARY KEY (run_id, file_path, def_type, name, position),
    FOREIGN KEY (run_id) REFERENCES index_runs(run_id) ON DELETE CASCADE
)`

const createCallEdgesTable = `
CREATE TABLE IF NOT EXISTS call_edges (
    run_id TEXT NOT NULL,
    caller TEXT NOT NULL,
    callee TEXT NOT NULL,
    PRIMARY KEY (run_id, caller, callee),
    FOREIGN KEY (run_id) REFERENCES index_runs(run_id) ON DELETE CASCADE
)`

const createFunctionSourcesTable = `
CREATE TABLE IF NOT EXISTS function_sources (
    run_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    function_name TEXT NOT NULL,
    code TEXT NOT NULL,
    PRIMARY KEY (run_id, file_path, function_name),
    FOREIGN KEY (run_id) REFERENCES index_runs(run_id) ON DELETE CASCADE
)`

const createExportMetadataTable = `
CREATE TABLE IF NOT EXISTS export_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name)",
	"CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(run_id, callee)",
	"CREATE INDEX IF NOT EXISTS idx_function_sources_name ON function_sources(function_name)",
	"CREATE INDEX IF NOT EXISTS idx_index_runs_created ON index_runs(created_at)",
}
