package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// LoaderOption configures a loader.
type LoaderOption func(*loader)

// WithConfigFile reads the given file instead of searching .ccindex/.
// A missing explicit file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) {
		l.configFile = path
	}
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string, opts ...LoaderOption) Loader {
	l := &loader{
		rootDir: rootDir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CCINDEX_*)
// 2. Config file (.ccindex/config.yml or .ccindex/config.yaml, or --config)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, ".ccindex"))
	}

	// CCINDEX_EXTRACT_TIMEOUT -> extract.timeout
	v.SetEnvPrefix("CCINDEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("tools.dir")
	v.BindEnv("extract.timeout")
	v.BindEnv("extract.workers")
	v.BindEnv("extract.show_output")
	v.BindEnv("filter.extensions")
	v.BindEnv("filter.exclude")
	v.BindEnv("output.indent")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Only a missing searched-for file is acceptable.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || l.configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Tools.Dir != "" && !filepath.IsAbs(cfg.Tools.Dir) {
		cfg.Tools.Dir = filepath.Join(l.rootDir, cfg.Tools.Dir)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("tools.dir", defaults.Tools.Dir)

	v.SetDefault("extract.timeout", defaults.Extract.Timeout)
	v.SetDefault("extract.workers", defaults.Extract.Workers)
	v.SetDefault("extract.show_output", defaults.Extract.ShowOutput)

	v.SetDefault("filter.extensions", defaults.Filter.Extensions)
	v.SetDefault("filter.exclude", defaults.Filter.Exclude)

	v.SetDefault("output.indent", defaults.Output.Indent)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string, opts ...LoaderOption) (*Config, error) {
	return NewLoader(rootDir, opts...).Load()
}
