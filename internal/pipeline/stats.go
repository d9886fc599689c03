package pipeline

import (
	"fmt"
	"time"
)

// Stats summarizes one pipeline run.
type Stats struct {
	Invocations int           `json:"invocations"`
	Extractions int           `json:"extractions"` // extractor calls that produced usable output
	Skipped     int           `json:"skipped"`     // calls with empty or unparsable output
	Failed      int           `json:"failed"`      // calls with no output, timeouts
	Files       int           `json:"files"`
	Items       int           `json:"items"`
	ItemKind    string        `json:"item_kind"` // "symbols" or "functions"
	Functions   int           `json:"callgraph_functions,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Summary is the final count line printed before the artifact is written.
func (s *Stats) Summary() string {
	return fmt.Sprintf("Found %d source files with %d %s.", s.Files, s.Items, s.ItemKind)
}
