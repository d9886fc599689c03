package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidTimeout indicates a non-positive extractor timeout
	ErrInvalidTimeout = errors.New("invalid extract timeout")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid extract workers")

	// ErrEmptyExtensions indicates no source extensions are configured
	ErrEmptyExtensions = errors.New("empty source extensions")

	// ErrInvalidExtension indicates a malformed source extension
	ErrInvalidExtension = errors.New("invalid source extension")

	// ErrInvalidExclude indicates an exclude pattern that does not compile
	ErrInvalidExclude = errors.New("invalid exclude pattern")

	// ErrInvalidIndent indicates a negative output indent
	ErrInvalidIndent = errors.New("invalid output indent")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateExtract(&cfg.Extract); err != nil {
		errs = append(errs, err)
	}

	if err := validateFilter(&cfg.Filter); err != nil {
		errs = append(errs, err)
	}

	if cfg.Output.Indent < 0 {
		errs = append(errs, fmt.Errorf("%w: indent cannot be negative, got %d", ErrInvalidIndent, cfg.Output.Indent))
	}

	return joinErrors(errs)
}

func validateExtract(cfg *ExtractConfig) error {
	var errs []error

	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidTimeout, cfg.Timeout))
	}

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	return joinErrors(errs)
}

func validateFilter(cfg *FilterConfig) error {
	var errs []error

	if len(cfg.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one extension required", ErrEmptyExtensions))
	}

	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 || strings.ContainsAny(ext, "/ ") {
			errs = append(errs, fmt.Errorf("%w: %q must look like \".c\"", ErrInvalidExtension, ext))
		}
	}

	for _, pattern := range cfg.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidExclude, pattern, err))
		}
	}

	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear formatting.
// Every input stays reachable through errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	verbs := make([]string, len(errs))
	args := make([]any, len(errs))
	for i, err := range errs {
		verbs[i] = "%w"
		args[i] = err
	}

	return fmt.Errorf("validation failed:\n  - "+strings.Join(verbs, "\n  - "), args...)
}
