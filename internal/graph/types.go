package graph

import "context"

// NodeKind tells whether a call graph name has a definition in the index.
type NodeKind string

const (
	NodeFunction NodeKind = "function" // defined in at least one indexed file
	NodeExternal NodeKind = "external" // only referenced, e.g. libc
)

// Node is a function name from the call graph together with the files defining it.
type Node struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Files []string `json:"files,omitempty"`
}

// QueryOperation represents the type of graph query to perform.
type QueryOperation string

const (
	OperationCallers QueryOperation = "callers"
	OperationCallees QueryOperation = "callees"
	OperationPath    QueryOperation = "path"
)

// Query defaults and limits
const (
	DefaultDepth      = 1
	DefaultMaxResults = 100
	MaxDepth          = 10
)

// QueryRequest represents a graph query request.
type QueryRequest struct {
	Operation      QueryOperation // Type of query
	Target         string         // Function to start from
	To             string         // For path operation: destination function
	IncludeContext bool           // Attach the definition's code to each result
	Depth          int            // Traversal depth (default: 1, max: 10)
	MaxResults     int            // Maximum number of results (default: 100)
}

// QueryResponse represents the response to a graph query.
type QueryResponse struct {
	Operation     string        `json:"operation"`
	Target        string        `json:"target"`
	Results       []QueryResult `json:"results"`
	TotalFound    int           `json:"total_found"`
	TotalReturned int           `json:"total_returned"`
	Truncated     bool          `json:"truncated"`
	Metadata      ResponseMeta  `json:"metadata"`
}

// QueryResult represents a single result from a graph query.
type QueryResult struct {
	Node    *Node  `json:"node"`
	Context string `json:"context,omitempty"` // Definition code if IncludeContext=true
	Depth   int    `json:"depth,omitempty"`   // Depth in traversal; position for path queries
}

// ResponseMeta contains metadata about the query execution.
type ResponseMeta struct {
	TookMs int    `json:"took_ms"`
	Source string `json:"source"` // Always "callgraph"
}

// Searcher answers call graph queries over an index artifact.
type Searcher interface {
	// Query executes a graph query and returns results.
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)

	// Reload reloads the index from storage.
	Reload(ctx context.Context) error

	// Close releases resources.
	Close() error
}
