package codedb

import (
	"encoding/json"
	"fmt"
	"log"
)

// SymbolPartial is one extractor's symbol output: file -> def_type -> name -> definition.
// Definitions stay raw so one malformed entry does not discard the whole unit.
type SymbolPartial map[string]map[string]map[string]json.RawMessage

// SymbolDB is the cumulative symbol store: file -> def_type -> name -> Definition.
// It is not safe for concurrent use; Database serializes access.
type SymbolDB map[string]map[string]map[string]Definition

// Merge folds a partial result into the store.
//
// Every file and def_type named by the partial gets an entry, even when none
// of its definitions survive. Only records with code are kept. A single
// definition with code replaces the prior entry for its name; a list replaces
// the prior entry as a whole and keeps only its records with code, so a list
// without code leaves an empty list. Returns the number of names written.
func (db SymbolDB) Merge(partial SymbolPartial) int {
	written := 0
	for file, byType := range partial {
		types, ok := db[file]
		if !ok {
			types = make(map[string]map[string]Definition)
			db[file] = types
		}
		for defType, byName := range byType {
			names, ok := types[defType]
			if !ok {
				names = make(map[string]Definition)
				types[defType] = names
			}
			for name, raw := range byName {
				var def Definition
				if err := json.Unmarshal(raw, &def); err != nil {
					log.Printf("Warning: %v for %s in %s of type %s", err, name, file, defType)
					continue
				}

				kept, ok := def.withCode()
				if !ok {
					continue
				}
				names[name] = kept
				written++
			}
		}
	}
	return written
}

// Lookup returns the definition stored for a name.
func (db SymbolDB) Lookup(file, defType, name string) (Definition, bool) {
	def, ok := db[file][defType][name]
	return def, ok
}

// Count returns the number of distinct files and stored names.
func (db SymbolDB) Count() (files, symbols int) {
	for _, byType := range db {
		for _, byName := range byType {
			symbols += len(byName)
		}
	}
	return len(db), symbols
}

// DecodeSymbolPartial parses an extractor document. A JSON null yields an empty partial.
func DecodeSymbolPartial(data []byte) (SymbolPartial, error) {
	var partial SymbolPartial
	if err := json.Unmarshal(data, &partial); err != nil {
		return nil, fmt.Errorf("failed to decode symbol output: %w", err)
	}
	if partial == nil {
		partial = SymbolPartial{}
	}
	return partial, nil
}
