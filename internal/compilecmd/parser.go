// Package compilecmd turns compiler wrapper logs into compilation units.
//
// A log line has the form "<working_dir> <arg0> <arg1> ... <argN>". Tokens are
// separated by single spaces and there is no quoting or escaping, so arguments
// that contain spaces cannot be represented. Arguments are handed to the
// extractor exactly as split here.
package compilecmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

const maxLineSize = 4 * 1024 * 1024

// probeMarkers identify sources generated by autoconf and CMake while probing the toolchain.
var probeMarkers = []string{"conftest", "CMakeC"}

const tryCompileMarker = "TryCompile"

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Parser converts log lines into invocations.
type Parser struct {
	extensions []string
	excludes   []compiledPattern
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithExtensions overrides the recognized source extensions.
func WithExtensions(exts []string) ParserOption {
	return func(p *Parser) {
		if len(exts) > 0 {
			p.extensions = slices.Clone(exts)
		}
	}
}

// NewParser creates a parser. Exclude patterns are globs matched against the
// absolute source path, e.g. "**/third_party/**".
func NewParser(excludePatterns []string, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		extensions: slices.Clone(DefaultSourceExtensions),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, pattern := range excludePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		p.excludes = append(p.excludes, compiledPattern{pattern: pattern, glob: g})
	}

	return p, nil
}

// ParseLine parses a single log line. A nil invocation is always paired with an
// error wrapping one of the Err* sentinels.
func (p *Parser) ParseLine(line string) (*Invocation, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyLine
	}

	tokens := strings.Split(line, " ")
	workingDir := tokens[0]
	command := tokens[1:]

	if !slices.Contains(command, "-c") {
		return nil, ErrNoCompileFlag
	}

	srcIdx := slices.IndexFunc(command, p.isSource)
	if srcIdx == -1 {
		return nil, ErrNoSourceFile
	}
	srcFile := command[srcIdx]

	for _, marker := range probeMarkers {
		if strings.Contains(srcFile, marker) {
			return nil, fmt.Errorf("%w: %s", ErrBuildProbe, srcFile)
		}
	}
	if strings.Contains(workingDir, tryCompileMarker) {
		return nil, fmt.Errorf("%w: %s", ErrBuildProbe, workingDir)
	}

	args := make([]string, 0, len(command)-1)
	for i, arg := range command {
		// Doubled spaces produce empty tokens; they never reach the extractor.
		if i == srcIdx || arg == "" {
			continue
		}
		args = append(args, arg)
	}

	if !filepath.IsAbs(srcFile) {
		srcFile = filepath.Join(workingDir, srcFile)
	}

	if p.excluded(srcFile) {
		return nil, fmt.Errorf("%w: %s", ErrExcluded, srcFile)
	}

	return &Invocation{
		WorkingDir: workingDir,
		SourceFile: srcFile,
		Args:       args,
	}, nil
}

// ParseLog parses every line of r. Lines that do not yield an invocation are
// returned as skips; only read errors are fatal.
func (p *Parser) ParseLog(r io.Reader) ([]*Invocation, []Skip, error) {
	var invocations []*Invocation
	var skips []Skip

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		inv, err := p.ParseLine(text)
		if err != nil {
			skips = append(skips, Skip{Line: lineNo, Text: text, Err: err})
			continue
		}
		invocations = append(invocations, inv)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read compile commands: %w", err)
	}

	return invocations, skips, nil
}

// ReadLog opens and parses a compile command log.
func (p *Parser) ReadLog(path string) ([]*Invocation, []Skip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open compile commands: %w", err)
	}
	defer f.Close()

	return p.ParseLog(f)
}

func (p *Parser) isSource(arg string) bool {
	for _, ext := range p.extensions {
		if strings.HasSuffix(arg, ext) {
			return true
		}
	}
	return false
}

func (p *Parser) excluded(srcFile string) bool {
	path := filepath.ToSlash(srcFile)
	for _, cp := range p.excludes {
		if cp.glob.Match(path) {
			return true
		}
	}
	return false
}
