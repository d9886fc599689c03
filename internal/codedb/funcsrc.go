package codedb

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FuncSourceDB maps source file -> function name -> function source text.
// Files without functions are never stored. Safe for concurrent use.
type FuncSourceDB struct {
	mu    sync.Mutex
	files map[string]map[string]string
}

// NewFuncSourceDB creates an empty store.
func NewFuncSourceDB() *FuncSourceDB {
	return &FuncSourceDB{files: make(map[string]map[string]string)}
}

// Set stores the functions extracted for file verbatim, replacing anything
// stored earlier for it. An empty mapping removes the file.
func (db *FuncSourceDB) Set(file string, funcs map[string]string) {
	if len(funcs) == 0 {
		db.mu.Lock()
		delete(db.files, file)
		db.mu.Unlock()
		return
	}

	copied := make(map[string]string, len(funcs))
	for name, src := range funcs {
		copied[name] = src
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.files[file] = copied
}

// Get returns the functions stored for file.
func (db *FuncSourceDB) Get(file string) (map[string]string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	funcs, ok := db.files[file]
	return funcs, ok
}

// Summary returns the number of files and functions stored.
func (db *FuncSourceDB) Summary() (files, functions int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, funcs := range db.files {
		functions += len(funcs)
	}
	return len(db.files), functions
}

// Each calls fn for every stored function.
func (db *FuncSourceDB) Each(fn func(file, name, src string) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for file, funcs := range db.files {
		for name, src := range funcs {
			if err := fn(file, name, src); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalJSON writes the flat {file: {func: source}} artifact.
func (db *FuncSourceDB) MarshalJSON() ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return json.Marshal(db.files)
}

// UnmarshalJSON loads a persisted artifact.
func (db *FuncSourceDB) UnmarshalJSON(data []byte) error {
	files := make(map[string]map[string]string)
	if err := json.Unmarshal(data, &files); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.files = make(map[string]map[string]string, len(files))
	for file, funcs := range files {
		if len(funcs) > 0 {
			db.files[file] = funcs
		}
	}
	return nil
}

// DecodeFuncSources parses get_all_func_src output. A JSON null yields an empty mapping.
func DecodeFuncSources(data []byte) (map[string]string, error) {
	var funcs map[string]string
	if err := json.Unmarshal(data, &funcs); err != nil {
		return nil, fmt.Errorf("failed to decode function sources: %w", err)
	}
	if funcs == nil {
		funcs = map[string]string{}
	}
	return funcs, nil
}
