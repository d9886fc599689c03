// Package graph answers caller, callee and call path queries over the call
// graph of an index artifact.
package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/mvp-joe/ccindex/internal/codedb"
)

// ErrUnknownFunction indicates a query named a function absent from the call graph.
var ErrUnknownFunction = errors.New("function not in call graph")

// definition is one place a call graph name is defined.
type definition struct {
	file    string
	defType string
	def     codedb.Definition
}

// searcher implements Searcher with an in-memory graph and adjacency indexes.
type searcher struct {
	storage Storage
	mu      sync.RWMutex // Protects graph and indexes

	graph graph.Graph[string, string]

	// Adjacency indexes, neighbours sorted by name
	callers map[string][]string // function -> [callers]
	callees map[string][]string // function -> [callees]

	definitions map[string][]definition
}

// NewSearcher creates a call graph searcher and loads the index once.
func NewSearcher(storage Storage) (Searcher, error) {
	s := &searcher{storage: storage}

	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Reload reloads the index from storage and rebuilds the graph.
func (s *searcher) Reload(ctx context.Context) error {
	db, err := s.storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	if db == nil {
		db = codedb.NewDatabase()
	}

	g := graph.New(graph.StringHash, graph.Directed())

	for _, name := range vertexNames(db.CallGraph) {
		if err := g.AddVertex(name); err != nil {
			return fmt.Errorf("failed to add function %s: %w", name, err)
		}
	}

	// Either side of the pair may record an edge; the graph keeps the union.
	for name, node := range db.CallGraph {
		for _, callee := range node.Callees {
			if err := addEdge(g, name, callee); err != nil {
				return err
			}
		}
		for _, caller := range node.Callers {
			if err := addEdge(g, caller, name); err != nil {
				return err
			}
		}
	}

	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("failed to build callee index: %w", err)
	}
	predecessors, err := g.PredecessorMap()
	if err != nil {
		return fmt.Errorf("failed to build caller index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph = g
	s.callees = sortedNeighbours(adjacency)
	s.callers = sortedNeighbours(predecessors)
	s.definitions = indexDefinitions(db.Src)

	return nil
}

// Query executes a graph query.
func (s *searcher) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startTime := time.Now()

	if req.Depth <= 0 {
		req.Depth = DefaultDepth
	}
	if req.Depth > MaxDepth {
		req.Depth = MaxDepth
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}

	if _, err := s.graph.Vertex(req.Target); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, req.Target)
	}

	var found []resultWithDepth
	switch req.Operation {
	case OperationCallers:
		found = s.traverse(s.callers, req.Target, req.Depth)
	case OperationCallees:
		found = s.traverse(s.callees, req.Target, req.Depth)
	case OperationPath:
		var err error
		found, err = s.shortestPath(req.Target, req.To)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported operation: %s", req.Operation)
	}

	results := []QueryResult{}
	for _, rd := range found {
		if len(results) >= req.MaxResults {
			break
		}
		result := QueryResult{
			Node:  s.node(rd.id),
			Depth: rd.depth,
		}
		if req.IncludeContext {
			result.Context = s.code(rd.id)
		}
		results = append(results, result)
	}

	return &QueryResponse{
		Operation:     string(req.Operation),
		Target:        req.Target,
		Results:       results,
		TotalFound:    len(found),
		TotalReturned: len(results),
		Truncated:     len(results) < len(found),
		Metadata: ResponseMeta{
			TookMs: int(time.Since(startTime).Milliseconds()),
			Source: "callgraph",
		},
	}, nil
}

// Close releases resources.
func (s *searcher) Close() error {
	return nil
}

// resultWithDepth is an internal type for tracking depth in traversal.
type resultWithDepth struct {
	id    string
	depth int
}

// traverse walks index breadth first from target, reporting each function once
// at the shallowest depth it is reached. The target itself is only reported
// when it is reachable from itself through recursion.
func (s *searcher) traverse(index map[string][]string, target string, depth int) []resultWithDepth {
	results := []resultWithDepth{}
	visited := map[string]bool{}

	frontier := []string{target}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			for _, neighbour := range index[id] {
				if visited[neighbour] {
					continue
				}
				visited[neighbour] = true
				results = append(results, resultWithDepth{id: neighbour, depth: level})
				next = append(next, neighbour)
			}
		}
		frontier = next
	}

	return results
}

// shortestPath returns the call chain from one function to another, including both
// ends. An unreachable destination yields no results.
func (s *searcher) shortestPath(from, to string) ([]resultWithDepth, error) {
	if _, err := s.graph.Vertex(to); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, to)
	}

	path, err := graph.ShortestPath(s.graph, from, to)
	if errors.Is(err, graph.ErrTargetNotReachable) {
		return []resultWithDepth{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute call path: %w", err)
	}

	results := make([]resultWithDepth, len(path))
	for i, id := range path {
		results[i] = resultWithDepth{id: id, depth: i}
	}
	return results, nil
}

func (s *searcher) node(id string) *Node {
	n := &Node{ID: id, Kind: NodeExternal}

	for _, d := range s.definitions[id] {
		n.Kind = NodeFunction
		if !slices.Contains(n.Files, d.file) {
			n.Files = append(n.Files, d.file)
		}
	}
	slices.Sort(n.Files)

	return n
}

// code returns the first non-empty code of id's definitions, preferring
// definitions filed under "function".
func (s *searcher) code(id string) string {
	defs := s.definitions[id]
	for _, preferFunction := range []bool{true, false} {
		for _, d := range defs {
			if preferFunction != (d.defType == "function") {
				continue
			}
			for _, r := range d.def.Records() {
				if code := r.Code(); code != "" {
					return code
				}
			}
		}
	}
	return ""
}

func addEdge(g graph.Graph[string, string], from, to string) error {
	err := g.AddEdge(from, to)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return fmt.Errorf("failed to add call %s -> %s: %w", from, to, err)
	}
	return nil
}

// vertexNames collects every name the call graph mentions, in sorted order.
func vertexNames(cg codedb.CallGraph) []string {
	seen := make(map[string]bool, len(cg))
	for name, node := range cg {
		seen[name] = true
		for _, callee := range node.Callees {
			seen[callee] = true
		}
		for _, caller := range node.Callers {
			seen[caller] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sortedNeighbours(m map[string]map[string]graph.Edge[string]) map[string][]string {
	out := make(map[string][]string, len(m))
	for id, edges := range m {
		if len(edges) == 0 {
			continue
		}
		neighbours := make([]string, 0, len(edges))
		for neighbour := range edges {
			neighbours = append(neighbours, neighbour)
		}
		slices.Sort(neighbours)
		out[id] = neighbours
	}
	return out
}

func indexDefinitions(src codedb.SymbolDB) map[string][]definition {
	out := map[string][]definition{}
	for file, types := range src {
		for defType, defs := range types {
			for name, def := range defs {
				out[name] = append(out[name], definition{file: file, defType: defType, def: def})
			}
		}
	}
	for _, defs := range out {
		slices.SortFunc(defs, func(a, b definition) int {
			return cmp.Or(strings.Compare(a.file, b.file), strings.Compare(a.defType, b.defType))
		})
	}
	return out
}
