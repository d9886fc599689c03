package codedb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownDefinition indicates a definition that is neither an object nor an array.
var ErrUnknownDefinition = errors.New("unknown definition type")

// Record is one extracted definition. Fields are kept as raw JSON so that
// extractor metadata survives a merge unchanged.
type Record map[string]json.RawMessage

// Code returns the definition's source text, or "" when absent or not a string.
func (r Record) Code() string {
	raw, ok := r["code"]
	if !ok {
		return ""
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return ""
	}
	return code
}

// HasCode reports whether the record carries a code value that is neither
// null nor an empty string.
func (r Record) HasCode() bool {
	raw := bytes.TrimSpace(r["code"])
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte(`""`))
}

// DefinitionKind tags the shape of a Definition.
type DefinitionKind int

const (
	// KindSingle is one record for a name.
	KindSingle DefinitionKind = iota
	// KindMultiple is an ordered list of records for a name (overloads, redefinitions).
	KindMultiple
)

// Definition is either a single record or an ordered list of records.
type Definition struct {
	kind    DefinitionKind
	records []Record
}

// Single wraps one record.
func Single(r Record) Definition {
	return Definition{kind: KindSingle, records: []Record{r}}
}

// Multiple wraps an ordered list of records.
func Multiple(rs ...Record) Definition {
	return Definition{kind: KindMultiple, records: append([]Record{}, rs...)}
}

// Kind returns the variant tag.
func (d Definition) Kind() DefinitionKind {
	return d.kind
}

// Records returns the records held by the definition.
func (d Definition) Records() []Record {
	return d.records
}

// withCode returns the definition restricted to records carrying code. A single
// record without code reports false; a list always survives, possibly empty.
func (d Definition) withCode() (Definition, bool) {
	switch d.kind {
	case KindSingle:
		if len(d.records) == 1 && d.records[0].HasCode() {
			return d, true
		}
		return Definition{}, false
	default:
		kept := make([]Record, 0, len(d.records))
		for _, r := range d.records {
			if r.HasCode() {
				kept = append(kept, r)
			}
		}
		return Definition{kind: KindMultiple, records: kept}, true
	}
}

// MarshalJSON writes a single definition as an object and multiple as an array.
func (d Definition) MarshalJSON() ([]byte, error) {
	if d.kind == KindSingle {
		if len(d.records) == 0 {
			return []byte("null"), nil
		}
		return json.Marshal(d.records[0])
	}
	if len(d.records) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(d.records)
}

// UnmarshalJSON decodes an object into Single and an array into Multiple.
func (d *Definition) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrUnknownDefinition
	}

	switch trimmed[0] {
	case '{':
		var r Record
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return err
		}
		*d = Single(r)
		return nil
	case '[':
		var rs []Record
		if err := json.Unmarshal(trimmed, &rs); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownDefinition, err)
		}
		*d = Multiple(rs...)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDefinition, truncate(string(trimmed), 40))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
