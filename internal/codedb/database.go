// Package codedb holds the project-wide symbol and call graph stores and the
// rules for folding per-unit extractor output into them.
package codedb

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Database is the combined symbol and call graph artifact. All folds are
// serialized, so extraction may run on several goroutines.
type Database struct {
	mu        sync.Mutex
	Src       SymbolDB  `json:"src"`
	CallGraph CallGraph `json:"callgraph"`
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{
		Src:       SymbolDB{},
		CallGraph: CallGraph{},
	}
}

// MergeSymbols decodes get_all_src output and folds it into Src.
func (db *Database) MergeSymbols(data []byte) (int, error) {
	partial, err := DecodeSymbolPartial(data)
	if err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.Src.Merge(partial), nil
}

// MergeCallGraph decodes get_callgraph output and unions it into CallGraph.
func (db *Database) MergeCallGraph(data []byte) (int, error) {
	partial, err := DecodeCallPartial(data)
	if err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.CallGraph.Merge(partial), nil
}

// Summary returns the number of source files and symbols stored.
func (db *Database) Summary() (files, symbols int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.Src.Count()
}

// MarshalJSON writes {"src": ..., "callgraph": ...}.
func (db *Database) MarshalJSON() ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	type artifact struct {
		Src       SymbolDB  `json:"src"`
		CallGraph CallGraph `json:"callgraph"`
	}
	return json.Marshal(artifact{Src: db.Src, CallGraph: db.CallGraph})
}

// UnmarshalJSON loads a persisted artifact.
func (db *Database) UnmarshalJSON(data []byte) error {
	var a struct {
		Src       SymbolDB  `json:"src"`
		CallGraph CallGraph `json:"callgraph"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.Src = a.Src
	if db.Src == nil {
		db.Src = SymbolDB{}
	}
	db.CallGraph = a.CallGraph
	if db.CallGraph == nil {
		db.CallGraph = CallGraph{}
	}
	return nil
}

// LoadDatabase reads a symbol+callgraph artifact from disk.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	db := NewDatabase()
	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}
	return db, nil
}
