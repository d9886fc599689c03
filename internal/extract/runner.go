// Package extract runs external extractor binaries against single compilation
// units and classifies what they produced.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mvp-joe/ccindex/internal/compilecmd"
)

const (
	// DefaultTimeout bounds a single extractor process.
	DefaultTimeout = 5 * time.Minute

	// maxStderrTail is how much extractor stderr is kept for failure reasons.
	maxStderrTail = 512
)

// Runner executes extractors. It owns a private scratch directory for scoped
// output files; call Close to remove it.
type Runner struct {
	tools      *ToolSet
	timeout    time.Duration
	showOutput bool
	scratchDir string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeout bounds each extractor call. Zero disables the bound.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithOutput forwards extractor stdout/stderr to the terminal.
func WithOutput(show bool) RunnerOption {
	return func(r *Runner) {
		r.showOutput = show
	}
}

// NewRunner creates a runner using tools.
func NewRunner(tools *ToolSet, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		tools:   tools,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	dir, err := os.MkdirTemp("", "ccindex-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	r.scratchDir = dir

	return r, nil
}

// Close removes the scratch directory.
func (r *Runner) Close() error {
	if r.scratchDir == "" {
		return nil
	}
	return os.RemoveAll(r.scratchDir)
}

// Extract runs `tool <source> <output> [-- <args>]` from the invocation's
// working directory and decodes the JSON document the tool wrote.
//
// A JSON null is normalized to an empty object. An error is only returned when
// the tool itself is unknown; every per-unit problem is reported in the Outcome.
func (r *Runner) Extract(ctx context.Context, tool string, inv *compilecmd.Invocation) (Outcome, error) {
	binary, err := r.tools.Path(tool)
	if err != nil {
		return Outcome{}, err
	}

	outputPath := r.scopedOutputPath(tool)
	defer r.removeScoped(outputPath)

	argv := []string{inv.SourceFile, outputPath}
	if len(inv.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, inv.Args...)
	}

	_, stderr, runErr := r.run(ctx, binary, inv.WorkingDir, argv)

	if errors.Is(runErr, context.DeadlineExceeded) {
		return failed(tool, inv.SourceFile, "timed out after %s", r.timeout), nil
	}
	if errors.Is(runErr, context.Canceled) {
		return failed(tool, inv.SourceFile, "cancelled"), nil
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			reason := "output file not found"
			if runErr != nil {
				reason = fmt.Sprintf("%s: %v%s", reason, runErr, stderrSuffix(stderr))
			}
			return failed(tool, inv.SourceFile, "%s", reason), nil
		}
		return failed(tool, inv.SourceFile, "failed to read output: %v", err), nil
	}

	return decodeJSON(tool, inv.SourceFile, content), nil
}

// Capture runs `tool <args...>` in dir and returns its trimmed stdout.
// Output that is not valid UTF-8 is skipped.
func (r *Runner) Capture(ctx context.Context, tool, source, dir string, args ...string) (Outcome, error) {
	binary, err := r.tools.Path(tool)
	if err != nil {
		return Outcome{}, err
	}

	stdout, stderr, runErr := r.run(ctx, binary, dir, args)

	if errors.Is(runErr, context.DeadlineExceeded) {
		return failed(tool, source, "timed out after %s", r.timeout), nil
	}
	if errors.Is(runErr, context.Canceled) {
		return failed(tool, source, "cancelled"), nil
	}
	// A non-zero exit still yields usable stdout; anything else means the process never ran.
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return failed(tool, source, "%v%s", runErr, stderrSuffix(stderr)), nil
	}

	if !utf8.Valid(stdout) {
		return skipped(tool, source, "output is not valid UTF-8"), nil
	}

	out := ok(tool, source, nil)
	out.Text = strings.TrimSpace(string(stdout))
	return out, nil
}

// run executes binary with a bounded context. Context errors are returned in
// preference to the process error so callers can tell timeouts apart.
func (r *Runner) run(ctx context.Context, binary, dir string, argv []string) ([]byte, []byte, error) {
	execCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, binary, argv...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.showOutput {
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	}

	err := cmd.Run()
	if ctxErr := execCtx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), ctxErr
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func (r *Runner) scopedOutputPath(tool string) string {
	return filepath.Join(r.scratchDir, fmt.Sprintf("%s-%s.json", tool, uuid.NewString()))
}

func (r *Runner) removeScoped(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to remove %s: %v", path, err)
	}
}

func decodeJSON(tool, source string, content []byte) Outcome {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return skipped(tool, source, "empty output")
	}
	if !json.Valid(trimmed) {
		return skipped(tool, source, "invalid JSON output")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	return ok(tool, source, json.RawMessage(trimmed))
}

func stderrSuffix(stderr []byte) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return ""
	}
	if len(msg) > maxStderrTail {
		msg = "..." + msg[len(msg)-maxStderrTail:]
	}
	return ": " + msg
}
