// Package storage exports index artifacts into a SQLite database so they can be
// queried with SQL next to the JSON files.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/ccindex/internal/codedb"
)

// Run kinds stored in index_runs.kind.
const (
	RunKindSymbols   = "symbols"
	RunKindFunctions = "functions"
)

// runTimeLayout is fixed-width so created_at sorts chronologically as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunInfo describes the artifact being exported.
type RunInfo struct {
	InputPath  string
	OutputPath string
}

// Exporter writes index artifacts to SQLite. Every export adds a new run;
// earlier runs stay until PruneRuns removes them.
type Exporter struct {
	db     *sql.DB
	ownsDB bool // true if we opened the connection, false if shared
	now    func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*Exporter, error) {
	// Foreign keys are per connection; the DSN applies them to every pooled one.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Exporter{db: db, ownsDB: true, now: time.Now}, nil
}

// NewExporterWithDB creates an Exporter using an existing database connection.
// The caller owns the connection and must have created the schema.
func NewExporterWithDB(db *sql.DB) *Exporter {
	return &Exporter{db: db, ownsDB: false, now: time.Now}
}

// Close closes the database connection if owned by this exporter.
func (e *Exporter) Close() error {
	if !e.ownsDB {
		return nil
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// WriteIndex exports a symbol and call graph database as a new run and returns its ID.
func (e *Exporter) WriteIndex(ctx context.Context, info RunInfo, db *codedb.Database) (string, error) {
	files, symbols := db.Summary()

	return e.writeRun(ctx, RunKindSymbols, info, files, symbols, func(tx *sql.Tx, runID string) error {
		if err := writeDefinitions(ctx, tx, runID, db.Src); err != nil {
			return fmt.Errorf("failed to write definitions: %w", err)
		}
		if err := writeCallEdges(ctx, tx, runID, db.CallGraph); err != nil {
			return fmt.Errorf("failed to write call edges: %w", err)
		}
		return nil
	})
}

// WriteFuncSources exports a function-source artifact as a new run and returns its ID.
func (e *Exporter) WriteFuncSources(ctx context.Context, info RunInfo, fs *codedb.FuncSourceDB) (string, error) {
	files, functions := fs.Summary()

	return e.writeRun(ctx, RunKindFunctions, info, files, functions, func(tx *sql.Tx, runID string) error {
		err := fs.Each(func(file, name, src string) error {
			_, err := sq.Insert("function_sources").
				Columns("run_id", "file_path", "function_name", "code").
				Values(runID, file, name, src).
				RunWith(tx).
				ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert function %s in %s: %w", name, file, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write function sources: %w", err)
		}
		return nil
	})
}

// PruneRuns deletes all but the newest keep runs. Child rows are removed by cascade.
func (e *Exporter) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	newest := sq.Select("run_id").
		From("index_runs").
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(keep))
	sub, args, err := newest.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build prune query: %w", err)
	}

	res, err := sq.Delete("index_runs").
		Where("run_id NOT IN ("+sub+")", args...).
		RunWith(e.db).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// writeRun inserts the index_runs row and calls write in the same transaction.
func (e *Exporter) writeRun(ctx context.Context, kind string, info RunInfo, files, items int, write func(*sql.Tx, string) error) (string, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	runID := uuid.NewString()
	_, err = sq.Insert("index_runs").
		Columns("run_id", "kind", "input_path", "output_path", "files", "items", "created_at").
		Values(runID, kind, info.InputPath, info.OutputPath, files, items, e.now().UTC().Format(runTimeLayout)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if err := write(tx, runID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return runID, nil
}

func writeDefinitions(ctx context.Context, tx *sql.Tx, runID string, src codedb.SymbolDB) error {
	for file, types := range src {
		for defType, defs := range types {
			for name, def := range defs {
				isList := def.Kind() == codedb.KindMultiple
				for pos, record := range def.Records() {
					raw, err := json.Marshal(record)
					if err != nil {
						return fmt.Errorf("failed to encode %s %s: %w", defType, name, err)
					}

					_, err = sq.Insert("definitions").
						Columns("run_id", "file_path", "def_type", "name", "position", "is_list", "code", "record").
						Values(runID, file, defType, name, pos, isList, record.Code(), string(raw)).
						RunWith(tx).
						ExecContext(ctx)
					if err != nil {
						return fmt.Errorf("failed to insert %s %s in %s: %w", defType, name, file, err)
					}
				}
			}
		}
	}
	return nil
}

func writeCallEdges(ctx context.Context, tx *sql.Tx, runID string, cg codedb.CallGraph) error {
	insert := func(caller, callee string) error {
		_, err := sq.Insert("call_edges").
			Options("OR IGNORE").
			Columns("run_id", "caller", "callee").
			Values(runID, caller, callee).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert call %s -> %s: %w", caller, callee, err)
		}
		return nil
	}

	for name, node := range cg {
		for _, callee := range node.Callees {
			if err := insert(name, callee); err != nil {
				return err
			}
		}
		for _, caller := range node.Callers {
			if err := insert(caller, name); err != nil {
				return err
			}
		}
	}
	return nil
}
