package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Run is one row of index_runs.
type Run struct {
	ID         string
	Kind       string
	InputPath  string
	OutputPath string
	Files      int
	Items      int
	CreatedAt  time.Time
}

// DefinitionRow is one record of an exported definition.
type DefinitionRow struct {
	File     string
	DefType  string
	Name     string
	Position int
	IsList   bool
	Code     string
	Record   string
}

// Runs lists exported runs, newest first.
func (e *Exporter) Runs(ctx context.Context) ([]Run, error) {
	rows, err := sq.Select("run_id", "kind", "input_path", "output_path", "files", "items", "created_at").
		From("index_runs").
		OrderBy("created_at DESC", "rowid DESC").
		RunWith(e.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Kind, &r.InputPath, &r.OutputPath, &r.Files, &r.Items, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(runTimeLayout, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Definitions returns the records exported for name in a run, ordered by file,
// definition type and list position.
func (e *Exporter) Definitions(ctx context.Context, runID, name string) ([]DefinitionRow, error) {
	rows, err := sq.Select("file_path", "def_type", "name", "position", "is_list", "code", "record").
		From("definitions").
		Where(sq.Eq{"run_id": runID, "name": name}).
		OrderBy("file_path", "def_type", "position").
		RunWith(e.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	var defs []DefinitionRow
	for rows.Next() {
		var d DefinitionRow
		if err := rows.Scan(&d.File, &d.DefType, &d.Name, &d.Position, &d.IsList, &d.Code, &d.Record); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// Callees returns the sorted names called by caller in a run.
func (e *Exporter) Callees(ctx context.Context, runID, caller string) ([]string, error) {
	return e.names(ctx, "callee", sq.Eq{"run_id": runID, "caller": caller})
}

// Callers returns the sorted names calling callee in a run.
func (e *Exporter) Callers(ctx context.Context, runID, callee string) ([]string, error) {
	return e.names(ctx, "caller", sq.Eq{"run_id": runID, "callee": callee})
}

func (e *Exporter) names(ctx context.Context, column string, where sq.Eq) ([]string, error) {
	rows, err := sq.Select(column).
		From("call_edges").
		Where(where).
		OrderBy(column).
		RunWith(e.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query call edges: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan call edge: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// FunctionSource returns the exported source of a function in a run.
func (e *Exporter) FunctionSource(ctx context.Context, runID, file, name string) (string, bool, error) {
	var code string
	err := sq.Select("code").
		From("function_sources").
		Where(sq.Eq{"run_id": runID, "file_path": file, "function_name": name}).
		RunWith(e.db).
		QueryRowContext(ctx).
		Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query function source: %w", err)
	}
	return code, true, nil
}
