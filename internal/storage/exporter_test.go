package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvp-joe/ccindex/internal/codedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Exporter:
// - Open creates the schema and is idempotent on an existing file
// - WriteIndex stores one row per record, list definitions keep their positions
// - call edges recorded on either side are stored once
// - WriteFuncSources stores every function and skips nothing
// - each export is a separate run; Runs lists newest first
// - PruneRuns keeps the newest runs and cascades to child rows
// - NewExporterWithDB does not close a shared connection

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testIndex(t *testing.T) *codedb.Database {
	t.Helper()
	db := codedb.NewDatabase()
	_, err := db.MergeSymbols([]byte(`{
		"main.c": {"function": {"main": {"code": "int main(){}"}}},
		"util.h": {"function": {"max": [{"code": "int max(int,int);", "line": 3}, {"code": "long max(long,long);", "line": 9}]}}
	}`))
	require.NoError(t, err)
	_, err = db.MergeCallGraph([]byte(`{
		"main": {"callees": ["max"], "callers": []},
		"max": {"callees": [], "callers": ["main"]}
	}`))
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestOpen_CreatesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	e, err := Open(path)
	require.NoError(t, err)

	version, err := GetSchemaVersion(e.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	require.NoError(t, e.Close())

	// Reopening an existing database keeps it usable.
	e, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestGetSchemaVersion_NewDatabase(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "0", version)
}

func TestWriteIndex(t *testing.T) {
	t.Parallel()
	e := newTestExporter(t)
	ctx := context.Background()

	runID, err := e.WriteIndex(ctx, RunInfo{InputPath: "/p/build.log", OutputPath: "/p/out.json"}, testIndex(t))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	runs, err := e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, RunKindSymbols, runs[0].Kind)
	assert.Equal(t, "/p/build.log", runs[0].InputPath)
	assert.Equal(t, 2, runs[0].Files)
	assert.Equal(t, 2, runs[0].Items)
	assert.False(t, runs[0].CreatedAt.IsZero())

	defs, err := e.Definitions(ctx, runID, "max")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.True(t, defs[0].IsList)
	assert.Equal(t, 0, defs[0].Position)
	assert.Equal(t, "int max(int,int);", defs[0].Code)
	assert.Equal(t, 1, defs[1].Position)
	assert.JSONEq(t, `{"code": "long max(long,long);", "line": 9}`, defs[1].Record)

	defs, err = e.Definitions(ctx, runID, "main")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.False(t, defs[0].IsList)
	assert.Equal(t, "main.c", defs[0].File)
	assert.Equal(t, "function", defs[0].DefType)

	callees, err := e.Callees(ctx, runID, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"max"}, callees)

	callers, err := e.Callers(ctx, runID, "max")
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, callers)

	assert.Equal(t, 1, countRows(t, e.db, "call_edges"), "edge seen from both ends is stored once")
}

func TestWriteFuncSources(t *testing.T) {
	t.Parallel()
	e := newTestExporter(t)
	ctx := context.Background()

	fs := codedb.NewFuncSourceDB()
	fs.Set("/p/a.c", map[string]string{"a": "void a(){}", "b": "void b(){}"})
	fs.Set("/p/c.c", map[string]string{"c": "void c(){}"})

	runID, err := e.WriteFuncSources(ctx, RunInfo{InputPath: "list.txt", OutputPath: "out.json"}, fs)
	require.NoError(t, err)

	code, ok, err := e.FunctionSource(ctx, runID, "/p/a.c", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "void b(){}", code)

	_, ok, err = e.FunctionSource(ctx, runID, "/p/a.c", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 3, countRows(t, e.db, "function_sources"))

	runs, err := e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunKindFunctions, runs[0].Kind)
	assert.Equal(t, 3, runs[0].Items)
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()
	e := newTestExporter(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		e.now = func() time.Time { return at }
		id, err := e.WriteIndex(ctx, RunInfo{InputPath: "log", OutputPath: "out"}, testIndex(t))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)

	deleted, err := e.PruneRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	runs, err = e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[2], runs[0].ID)

	assert.Equal(t, 3, countRows(t, e.db, "definitions"))
	assert.Equal(t, 1, countRows(t, e.db, "call_edges"))
}

func TestRuns_OrderedBySubsecondTime(t *testing.T) {
	t.Parallel()
	e := newTestExporter(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for _, offset := range []time.Duration{500 * time.Millisecond, 550 * time.Millisecond} {
		at := base.Add(offset)
		e.now = func() time.Time { return at }
		id, err := e.WriteIndex(ctx, RunInfo{InputPath: "log", OutputPath: "out"}, testIndex(t))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[1], runs[0].ID)
	assert.True(t, runs[0].CreatedAt.Equal(base.Add(550*time.Millisecond)))

	_, err = e.PruneRuns(ctx, 1)
	require.NoError(t, err)
	runs, err = e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[1], runs[0].ID)
}

func TestNewExporterWithDB_SharedConnection(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, CreateSchema(db))

	e := NewExporterWithDB(db)
	_, err = e.WriteIndex(context.Background(), RunInfo{}, codedb.NewDatabase())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	assert.NoError(t, db.Ping(), "shared connection must stay open")
	assert.Equal(t, 1, countRows(t, db, "index_runs"))
}
