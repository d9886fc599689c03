package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/config"
	"github.com/mvp-joe/ccindex/internal/extract"
	"github.com/mvp-joe/ccindex/internal/pipeline"
	"github.com/spf13/cobra"
)

// loadConfig loads configuration for the current directory, honouring --config.
func loadConfig() (*config.Config, string, error) {
	rootDir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get working directory: %w", err)
	}

	var opts []config.LoaderOption
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}

	cfg, err := config.LoadConfigFromDir(rootDir, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose && cfgFile != "" {
		log.Printf("Using config file: %s", cfgFile)
	}
	return cfg, rootDir, nil
}

// signalContext derives a context that is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context, errOut io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(errOut, "\nInterrupted! Cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// requireFile returns an error when path is not an existing regular file.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory, not a file: %s", path)
	}
	return nil
}

// newRunner resolves the named extractors and creates a runner for them.
func newRunner(cfg *config.Config, tools ...string) (*extract.Runner, error) {
	dir := cfg.Tools.Dir
	if dir == "" {
		dir = extract.DefaultToolDir()
	}

	toolSet, err := extract.ResolveTools(dir, tools...)
	if err != nil {
		return nil, err
	}

	return extract.NewRunner(toolSet,
		extract.WithTimeout(cfg.Extract.Timeout),
		extract.WithOutput(cfg.Extract.ShowOutput),
	)
}

// newPipeline creates a pipeline with a CLI progress bar.
func newPipeline(cmd *cobra.Command, cfg *config.Config, runner pipeline.Extractor, description string) *pipeline.Pipeline {
	progress := NewCLIProgressReporter(cmd.ErrOrStderr(), description, quiet, verbose)
	return pipeline.New(runner,
		pipeline.WithWorkers(cfg.Extract.Workers),
		pipeline.WithProgress(progress),
	)
}

// parseBuildLog reads a build log with the configured filters. Lines that look
// like a compile command without a source file are reported; other skipped
// lines only with --verbose.
func parseBuildLog(cfg *config.Config, path string) ([]*compilecmd.Invocation, error) {
	parser, err := compilecmd.NewParser(cfg.Filter.Exclude, compilecmd.WithExtensions(cfg.Filter.Extensions))
	if err != nil {
		return nil, err
	}

	invs, skips, err := parser.ReadLog(path)
	if err != nil {
		return nil, err
	}

	for _, skip := range skips {
		if quiet {
			break
		}
		if skip.Noisy() {
			log.Printf("Warning: line %d: %v: %s", skip.Line, skip.Err, skip.Text)
		} else if verbose && !errors.Is(skip.Err, compilecmd.ErrEmptyLine) {
			log.Printf("Skipping line %d: %v", skip.Line, skip.Err)
		}
	}

	if verbose {
		log.Printf("Found %s compile commands in %s (%s lines skipped)",
			formatNumber(len(invs)), path, formatNumber(len(skips)))
	}
	return invs, nil
}

// writeArtifact prints the summary line, writes v to path and confirms the write.
func writeArtifact(out io.Writer, cfg *config.Config, stats *pipeline.Stats, path string, v any) error {
	fmt.Fprintln(out, stats.Summary())

	if err := pipeline.WriteJSON(path, v, cfg.Output.Indent); err != nil {
		return err
	}

	fmt.Fprintf(out, "Output written to %s\n", path)
	return nil
}

// splitDashArgs separates positional arguments from compile arguments given after "--".
func splitDashArgs(cmd *cobra.Command, args []string) (positional, compileArgs []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

// positionalRange validates the number of arguments before "--".
func positionalRange(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		positional, _ := splitDashArgs(cmd, args)
		if n := len(positional); n < min || n > max {
			return fmt.Errorf("accepts between %d and %d arg(s) before --, received %d", min, max, n)
		}
		return nil
	}
}
