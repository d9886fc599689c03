package compilecmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ReadSourceList reads a newline-delimited list of source files for projects
// without a build log. Blank lines and lines starting with '#' are ignored.
// Every file shares the same compiler arguments and is compiled from workingDir.
func ReadSourceList(path, workingDir string, args []string) ([]*Invocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source list: %w", err)
	}
	defer f.Close()

	var invocations []*Invocation
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		src := line
		if !filepath.IsAbs(src) {
			src = filepath.Join(workingDir, src)
		}

		invocations = append(invocations, &Invocation{
			WorkingDir: workingDir,
			SourceFile: src,
			Args:       slices.Clone(args),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source list: %w", err)
	}

	return invocations, nil
}
