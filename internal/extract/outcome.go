package extract

import (
	"encoding/json"
	"fmt"
)

// Status classifies the result of one extractor call.
type Status int

const (
	// StatusOK means the extractor produced usable output.
	StatusOK Status = iota
	// StatusSkipped means output existed but was empty or unparsable.
	StatusSkipped
	// StatusFailed means the extractor produced no output at all (crash, timeout, missing file).
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of running one extractor against one compilation unit.
// Data holds the JSON document for file-output tools and Text the trimmed
// stdout for capture tools.
type Outcome struct {
	Tool   string
	Source string
	Status Status
	Reason string
	Data   json.RawMessage
	Text   string
}

// OK reports whether the outcome carries a usable result.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

func (o Outcome) String() string {
	if o.Status == StatusOK {
		return fmt.Sprintf("%s %s: ok", o.Tool, o.Source)
	}
	return fmt.Sprintf("%s %s: %s (%s)", o.Tool, o.Source, o.Status, o.Reason)
}

func ok(tool, source string, data json.RawMessage) Outcome {
	return Outcome{Tool: tool, Source: source, Status: StatusOK, Data: data}
}

func skipped(tool, source, format string, args ...any) Outcome {
	return Outcome{Tool: tool, Source: source, Status: StatusSkipped, Reason: fmt.Sprintf(format, args...)}
}

func failed(tool, source, format string, args ...any) Outcome {
	return Outcome{Tool: tool, Source: source, Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}
