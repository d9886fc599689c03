package compilecmd

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSourceExtensions are the translation unit suffixes recognized in a compile command.
var DefaultSourceExtensions = []string{".c", ".cpp", ".cc"}

var (
	// ErrEmptyLine indicates a blank log line.
	ErrEmptyLine = errors.New("empty line")

	// ErrNoCompileFlag indicates a command without -c (link steps, preprocessor runs).
	ErrNoCompileFlag = errors.New("no -c flag")

	// ErrNoSourceFile indicates a compile command with no recognizable source argument.
	ErrNoSourceFile = errors.New("source file not found in command")

	// ErrBuildProbe indicates a configure or CMake try-compile probe.
	ErrBuildProbe = errors.New("build system probe")

	// ErrExcluded indicates a source matched a user exclude pattern.
	ErrExcluded = errors.New("excluded by pattern")
)

// Invocation is one compilation unit replayed against an extractor.
type Invocation struct {
	WorkingDir string   `json:"working_dir"`
	SourceFile string   `json:"source_file"` // always absolute
	Args       []string `json:"args"`        // compiler arguments without the source token
}

// ArgString joins the arguments with single spaces, the form they appear in the log.
func (inv *Invocation) ArgString() string {
	return strings.Join(inv.Args, " ")
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("Invocation(%s, %s, %s)", inv.WorkingDir, inv.ArgString(), inv.SourceFile)
}

// Skip records a log line that did not produce an invocation.
type Skip struct {
	Line int
	Text string
	Err  error
}

// Noisy reports whether the skip is worth surfacing to the user.
// Missing -c and build probes are routine in any real build log.
func (s Skip) Noisy() bool {
	return errors.Is(s.Err, ErrNoSourceFile)
}
