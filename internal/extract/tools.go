package extract

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Extractor binary names.
const (
	ToolAllSrc     = "get_all_src"
	ToolCallGraph  = "get_callgraph"
	ToolFuncList   = "get_func_list"
	ToolFuncSrc    = "get_func_src"
	ToolAllFuncSrc = "get_all_func_src"
)

// ErrToolNotFound indicates an extractor binary could not be resolved.
var ErrToolNotFound = errors.New("extractor not found")

// ToolSet maps extractor names to executable paths. It is resolved once per run
// and is read-only afterwards.
type ToolSet struct {
	paths map[string]string
}

// NewToolSet builds a ToolSet from explicit paths. Used by tests and callers
// that already know where binaries live.
func NewToolSet(paths map[string]string) *ToolSet {
	ts := &ToolSet{paths: make(map[string]string, len(paths))}
	for name, path := range paths {
		ts.paths[name] = path
	}
	return ts
}

// ResolveTools looks up each named tool, first in dir (when non-empty) and then
// on PATH.
func ResolveTools(dir string, names ...string) (*ToolSet, error) {
	ts := &ToolSet{paths: make(map[string]string, len(names))}

	var missing []string
	for _, name := range names {
		path, err := lookupTool(dir, name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		ts.paths[name] = path
	}

	if len(missing) > 0 {
		where := "PATH"
		if dir != "" {
			where = dir + " or PATH"
		}
		return nil, fmt.Errorf("%w: %v (searched %s)", ErrToolNotFound, missing, where)
	}

	return ts, nil
}

// Path returns the resolved executable for name.
func (ts *ToolSet) Path(name string) (string, error) {
	path, ok := ts.paths[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// DefaultToolDir returns the build directory that sits next to the directory
// holding the running executable (<prefix>/bin/ccindex -> <prefix>/build), or
// "" when it does not exist.
func DefaultToolDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	dir := filepath.Join(filepath.Dir(filepath.Dir(exe)), "build")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

func lookupTool(dir, name string) (string, error) {
	if dir != "" {
		candidate := filepath.Join(dir, name)
		if runtime.GOOS == "windows" {
			candidate += ".exe"
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}
