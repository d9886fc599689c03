package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvp-joe/ccindex/internal/codedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Searcher:
// - callers/callees at depth 1 and deeper, each function reported once at its shallowest depth
// - edges recorded on only one side of a pair are still traversed
// - recursion does not loop forever
// - nodes carry their defining files; unknown names are external
// - IncludeContext attaches definition code, preferring "function" definitions
// - MaxResults truncates and reports totals
// - path returns the shortest chain, empty when unreachable
// - unknown functions and operations are errors
// - Reload picks up a rewritten artifact

const testSymbols = `{
	"main.c": {"function": {"main": {"code": "int main(){ parse(); run(); }"}}},
	"parse.c": {
		"function": {"parse": {"code": "void parse(){ lex(); }"}},
		"macro": {"parse": {"code": "#define parse parse_impl"}}
	},
	"lex.c": {"function": {"lex": {"code": "void lex(){ printf(); }"}}},
	"run.c": {"function": {"run": {"code": "void run(){ run(); lex(); }"}}}
}`

const testCallGraph = `{
	"main": {"callees": ["parse", "run"], "callers": []},
	"parse": {"callees": ["lex"], "callers": ["main"]},
	"lex": {"callees": ["printf"], "callers": ["parse", "run"]},
	"run": {"callees": ["run"], "callers": ["main", "run"]}
}`

func testDatabase(t *testing.T) *codedb.Database {
	t.Helper()
	db := codedb.NewDatabase()
	_, err := db.MergeSymbols([]byte(testSymbols))
	require.NoError(t, err)
	_, err = db.MergeCallGraph([]byte(testCallGraph))
	require.NoError(t, err)
	return db
}

func newTestSearcher(t *testing.T) Searcher {
	t.Helper()
	s, err := NewSearcher(NewMemoryStorage(testDatabase(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ids(resp *QueryResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Node.ID
	}
	return out
}

func depths(resp *QueryResponse) map[string]int {
	out := make(map[string]int, len(resp.Results))
	for _, r := range resp.Results {
		out[r.Node.ID] = r.Depth
	}
	return out
}

func TestSearcher_Callees(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallees, Target: "main"})
	require.NoError(t, err)
	assert.Equal(t, []string{"parse", "run"}, ids(resp))
	assert.Equal(t, "callees", resp.Operation)
	assert.Equal(t, "callgraph", resp.Metadata.Source)

	resp, err = s.Query(context.Background(), &QueryRequest{Operation: OperationCallees, Target: "main", Depth: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"parse": 1, "run": 1, "lex": 2, "printf": 3}, depths(resp))
}

func TestSearcher_Callers(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallers, Target: "lex"})
	require.NoError(t, err)
	assert.Equal(t, []string{"parse", "run"}, ids(resp))

	resp, err = s.Query(context.Background(), &QueryRequest{Operation: OperationCallers, Target: "printf", Depth: MaxDepth + 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"lex": 1, "parse": 2, "run": 2, "main": 3}, depths(resp))
}

func TestSearcher_OneSidedEdges(t *testing.T) {
	t.Parallel()

	db := codedb.NewDatabase()
	// a lists b as a callee, but b never lists a as a caller.
	_, err := db.MergeCallGraph([]byte(`{"a": {"callees": ["b"], "callers": []}, "b": {"callees": [], "callers": []}}`))
	require.NoError(t, err)

	s, err := NewSearcher(NewMemoryStorage(db))
	require.NoError(t, err)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallers, Target: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(resp))
}

func TestSearcher_Recursion(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallees, Target: "run", Depth: MaxDepth})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"run": 1, "lex": 1, "printf": 2}, depths(resp))
}

func TestSearcher_NodesAndContext(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{
		Operation:      OperationCallees,
		Target:         "lex",
		IncludeContext: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, &Node{ID: "printf", Kind: NodeExternal}, resp.Results[0].Node)
	assert.Empty(t, resp.Results[0].Context)

	resp, err = s.Query(context.Background(), &QueryRequest{
		Operation:      OperationCallees,
		Target:         "main",
		IncludeContext: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	parse := resp.Results[0]
	assert.Equal(t, &Node{ID: "parse", Kind: NodeFunction, Files: []string{"parse.c"}}, parse.Node)
	assert.Equal(t, "void parse(){ lex(); }", parse.Context)
}

func TestSearcher_MaxResults(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallers, Target: "printf", Depth: 3, MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.TotalFound)
	assert.Equal(t, 2, resp.TotalReturned)
	assert.True(t, resp.Truncated)
}

func TestSearcher_Path(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationPath, Target: "main", To: "printf"})
	require.NoError(t, err)
	path := ids(resp)
	require.Len(t, path, 4)
	assert.Equal(t, "main", path[0])
	assert.Contains(t, []string{"parse", "run"}, path[1])
	assert.Equal(t, "lex", path[2])
	assert.Equal(t, "printf", path[3])
	assert.Equal(t, 3, resp.Results[3].Depth)

	resp, err = s.Query(context.Background(), &QueryRequest{Operation: OperationPath, Target: "printf", To: "main"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearcher_Errors(t *testing.T) {
	t.Parallel()
	s := newTestSearcher(t)

	_, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallers, Target: "missing"})
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = s.Query(context.Background(), &QueryRequest{Operation: OperationPath, Target: "main", To: "missing"})
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = s.Query(context.Background(), &QueryRequest{Operation: "impact", Target: "main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation")
}

func TestSearcher_ReloadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"src": {}, "callgraph": {"a": {"callees": ["b"], "callers": []}}}`), 0644))

	s, err := NewSearcher(NewFileStorage(path))
	require.NoError(t, err)

	resp, err := s.Query(context.Background(), &QueryRequest{Operation: OperationCallees, Target: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(resp))

	require.NoError(t, os.WriteFile(path, []byte(`{"src": {}, "callgraph": {"a": {"callees": ["c"], "callers": []}}}`), 0644))
	require.NoError(t, s.Reload(context.Background()))

	resp, err = s.Query(context.Background(), &QueryRequest{Operation: OperationCallees, Target: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(resp))
}

func TestNewSearcher_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewSearcher(NewFileStorage(filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load index")
}
