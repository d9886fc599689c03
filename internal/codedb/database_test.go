package codedb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for codedb:
// - single definitions with code are stored, without code are dropped
// - list definitions replace the prior entry and keep only records with code, possibly none
// - files and def types named by a unit appear even when nothing in them has code
// - merging the same partial twice equals merging it once
// - call graph union is idempotent and order-insensitive in content
// - malformed definitions are skipped without losing the rest of the unit
// - function source files without functions are omitted
// - artifacts round-trip through JSON with the documented shape

func mergeSymbols(t *testing.T, db *Database, doc string) {
	t.Helper()
	_, err := db.MergeSymbols([]byte(doc))
	require.NoError(t, err)
}

func mergeCalls(t *testing.T, db *Database, doc string) {
	t.Helper()
	_, err := db.MergeCallGraph([]byte(doc))
	require.NoError(t, err)
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestMergeSymbols_SingleDefinitions(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{
		"a.c": {
			"function": {
				"main": {"code": "int main(){}", "line": 3},
				"proto": {"line": 9},
				"blank": {"code": ""},
				"nullcode": {"code": null}
			}
		}
	}`)

	files, symbols := db.Summary()
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, symbols)

	def, ok := db.Src.Lookup("a.c", "function", "main")
	require.True(t, ok)
	assert.Equal(t, KindSingle, def.Kind())
	assert.JSONEq(t, `{"code": "int main(){}", "line": 3}`, marshal(t, def))

	for _, name := range []string{"proto", "blank", "nullcode"} {
		_, ok := db.Src.Lookup("a.c", "function", name)
		assert.False(t, ok, name)
	}
}

func TestMergeSymbols_ListDefinitions(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.h": {"macro": {"MAX": {"code": "#define MAX 1"}}}}`)
	mergeSymbols(t, db, `{"a.h": {"macro": {"MAX": [
		{"code": "#define MAX(a,b) a"},
		{"line": 4},
		{"code": "#define MAX(a,b) b"}
	]}}}`)

	def, ok := db.Src.Lookup("a.h", "macro", "MAX")
	require.True(t, ok)
	assert.Equal(t, KindMultiple, def.Kind())
	require.Len(t, def.Records(), 2)
	assert.Equal(t, "#define MAX(a,b) a", def.Records()[0].Code())
	assert.Equal(t, "#define MAX(a,b) b", def.Records()[1].Code())
}

func TestMergeSymbols_ListWithoutCodeReplacesPrior(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.c": {"function": {"f": {"code": "int f(){}"}}}}`)
	mergeSymbols(t, db, `{"a.c": {"function": {"f": [{"name": "f"}, {"name": "f2"}]}}, "b.h": {"macro": {"M": {"name": "M"}}}}`)

	def, ok := db.Src.Lookup("a.c", "function", "f")
	require.True(t, ok)
	assert.Equal(t, KindMultiple, def.Kind())
	assert.Empty(t, def.Records())

	// Files and types named by a unit are kept even when nothing in them has code.
	assert.JSONEq(t, `{
		"src": {"a.c": {"function": {"f": []}}, "b.h": {"macro": {}}},
		"callgraph": {}
	}`, marshal(t, db))

	files, symbols := db.Summary()
	assert.Equal(t, 2, files)
	assert.Equal(t, 1, symbols)
}

func TestMergeSymbols_NonStringCode(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.c": {"var": {"n": {"code": 42}, "o": {"code": {"text": "x"}}, "e": {"code": ""}}}}`)

	for _, name := range []string{"n", "o"} {
		_, ok := db.Src.Lookup("a.c", "var", name)
		assert.True(t, ok, name)
	}
	_, ok := db.Src.Lookup("a.c", "var", "e")
	assert.False(t, ok)
}

func TestMergeSymbols_SingleReplacesList(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.c": {"function": {"f": [{"code": "v1"}, {"code": "v2"}]}}}`)
	mergeSymbols(t, db, `{"a.c": {"function": {"f": {"code": "v3"}}}}`)

	def, ok := db.Src.Lookup("a.c", "function", "f")
	require.True(t, ok)
	assert.Equal(t, KindSingle, def.Kind())
	assert.Equal(t, "v3", def.Records()[0].Code())
}

func TestMergeSymbols_Idempotent(t *testing.T) {
	t.Parallel()

	doc := `{
		"a.c": {"function": {"f": {"code": "void f(){}"}, "g": [{"code": "g1"}, {"code": "g2"}]}},
		"b.h": {"struct": {"S": {"code": "struct S{};"}}}
	}`

	once := NewDatabase()
	mergeSymbols(t, once, doc)

	twice := NewDatabase()
	mergeSymbols(t, twice, doc)
	mergeSymbols(t, twice, doc)

	assert.JSONEq(t, marshal(t, once), marshal(t, twice))
}

func TestMergeSymbols_MalformedEntriesSkipped(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.c": {"function": {"bad": "not a definition", "worse": 42, "good": {"code": "ok"}}}}`)

	_, symbols := db.Summary()
	assert.Equal(t, 1, symbols)
	_, ok := db.Src.Lookup("a.c", "function", "good")
	assert.True(t, ok)
}

func TestMergeSymbols_NullAndInvalidDocuments(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	n, err := db.MergeSymbols([]byte(`null`))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.MergeSymbols([]byte(`[1,2]`))
	assert.Error(t, err)

	files, symbols := db.Summary()
	assert.Zero(t, files)
	assert.Zero(t, symbols)
}

func TestMergeCallGraph_UnionIsIdempotentAndCommutative(t *testing.T) {
	t.Parallel()

	p1 := `{"A": {"callees": ["x"], "callers": []}}`
	p2 := `{"A": {"callees": ["x", "y"], "callers": ["main"]}, "x": {"callees": [], "callers": ["A"]}}`

	forward := NewDatabase()
	mergeCalls(t, forward, p1)
	mergeCalls(t, forward, p2)

	reverse := NewDatabase()
	mergeCalls(t, reverse, p2)
	mergeCalls(t, reverse, p1)
	mergeCalls(t, reverse, p2)

	for _, db := range []*Database{forward, reverse} {
		require.Contains(t, db.CallGraph, "A")
		assert.ElementsMatch(t, []string{"x", "y"}, db.CallGraph["A"].Callees)
		assert.ElementsMatch(t, []string{"main"}, db.CallGraph["A"].Callers)
		assert.ElementsMatch(t, []string{"A"}, db.CallGraph["x"].Callers)
		assert.Empty(t, db.CallGraph["x"].Callees)
	}
	assert.Equal(t, []string{"x", "y"}, forward.CallGraph["A"].Callees)
	assert.Equal(t, 2, forward.CallGraph.Edges())
}

func TestMergeCallGraph_DuplicatesWithinPartial(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	n, err := db.MergeCallGraph([]byte(`{"f": {"callees": ["g", "g", "h"], "callers": ["f", "f"]}}`))
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"g", "h"}, db.CallGraph["f"].Callees)
	assert.Equal(t, []string{"f"}, db.CallGraph["f"].Callers)
}

func TestMergeCallGraph_Null(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	_, err := db.MergeCallGraph([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, db.CallGraph)
}

func TestDatabase_ArtifactShape(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"main.c": {"function": {"main": {"code": "int main(){}"}}}}`)
	mergeCalls(t, db, `{}`)

	assert.JSONEq(t, `{"src": {"main.c": {"function": {"main": {"code": "int main(){}"}}}}, "callgraph": {}}`, marshal(t, db))
}

func TestDatabase_ConcurrentMerges(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = db.MergeSymbols([]byte(`{"a.c": {"function": {"f": {"code": "f"}}}}`))
			_, _ = db.MergeCallGraph([]byte(`{"f": {"callees": ["g"], "callers": []}}`))
		}()
	}
	wg.Wait()

	_, symbols := db.Summary()
	assert.Equal(t, 1, symbols)
	assert.Equal(t, []string{"g"}, db.CallGraph["f"].Callees)
}

func TestLoadDatabase_RoundTrip(t *testing.T) {
	t.Parallel()

	db := NewDatabase()
	mergeSymbols(t, db, `{"a.c": {"function": {"f": {"code": "f", "extra": {"k": [1]}}, "g": [{"code": "g"}]}}}`)
	mergeCalls(t, db, `{"f": {"callees": ["g"], "callers": []}}`)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(marshal(t, db)), 0644))

	loaded, err := LoadDatabase(path)
	require.NoError(t, err)
	assert.JSONEq(t, marshal(t, db), marshal(t, loaded))

	// Restored set indexes keep deduplicating.
	mergeCalls(t, loaded, `{"f": {"callees": ["g"], "callers": []}}`)
	assert.Equal(t, []string{"g"}, loaded.CallGraph["f"].Callees)
}

func TestFuncSourceDB_EmptySetRemovesEarlierFunctions(t *testing.T) {
	t.Parallel()

	db := NewFuncSourceDB()
	db.Set("/p/a.c", map[string]string{"main": "int main(){}"})
	db.Set("/p/a.c", map[string]string{})

	_, ok := db.Get("/p/a.c")
	assert.False(t, ok)
	assert.JSONEq(t, `{}`, marshal(t, db))
}

func TestFuncSourceDB(t *testing.T) {
	t.Parallel()

	db := NewFuncSourceDB()
	db.Set("/p/a.c", map[string]string{"main": "int main(){}", "f": "void f(){}"})
	db.Set("/p/empty.c", map[string]string{})
	db.Set("/p/nil.c", nil)

	files, funcs := db.Summary()
	assert.Equal(t, 1, files)
	assert.Equal(t, 2, funcs)

	_, ok := db.Get("/p/empty.c")
	assert.False(t, ok)

	assert.JSONEq(t, `{"/p/a.c": {"main": "int main(){}", "f": "void f(){}"}}`, marshal(t, db))
}

func TestDecodeFuncSources(t *testing.T) {
	t.Parallel()

	funcs, err := DecodeFuncSources([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, funcs)

	funcs, err = DecodeFuncSources([]byte(`{"f": "void f(){}"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f": "void f(){}"}, funcs)

	_, err = DecodeFuncSources([]byte(`{"f": 1}`))
	assert.Error(t, err)
}
