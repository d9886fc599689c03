package config

import (
	"slices"
	"time"

	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/pipeline"
)

// Config represents the complete ccindex configuration.
// It can be loaded from .ccindex/config.yml with environment variable overrides.
type Config struct {
	Tools   ToolsConfig   `yaml:"tools" mapstructure:"tools"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
}

// ToolsConfig locates the extractor binaries.
type ToolsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"` // empty means <executable dir>/../build, then PATH
}

// ExtractConfig controls how extractors are run.
type ExtractConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`         // per extractor call
	Workers    int           `yaml:"workers" mapstructure:"workers"`         // concurrent compilation units
	ShowOutput bool          `yaml:"show_output" mapstructure:"show_output"` // forward extractor stderr
}

// FilterConfig selects which compile commands are indexed.
type FilterConfig struct {
	Extensions []string `yaml:"extensions" mapstructure:"extensions"` // e.g., [".c", ".cpp", ".cc"]
	Exclude    []string `yaml:"exclude" mapstructure:"exclude"`       // glob patterns matched against absolute source paths
}

// OutputConfig controls artifact formatting.
type OutputConfig struct {
	Indent int `yaml:"indent" mapstructure:"indent"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			Dir: "",
		},
		Extract: ExtractConfig{
			Timeout:    5 * time.Minute,
			Workers:    1,
			ShowOutput: false,
		},
		Filter: FilterConfig{
			Extensions: slices.Clone(compilecmd.DefaultSourceExtensions),
			Exclude:    []string{},
		},
		Output: OutputConfig{
			Indent: pipeline.DefaultIndent,
		},
	}
}
