package cli

import (
	"fmt"

	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/extract"
	"github.com/mvp-joe/ccindex/internal/pipeline"
	"github.com/mvp-joe/ccindex/internal/storage"
	"github.com/spf13/cobra"
)

var (
	funcSrcSQLite   string
	funcSrcKeepRuns int
)

// funcSrcCmd represents the func-src command
var funcSrcCmd = &cobra.Command{
	Use:   "func-src <compile_commands.txt> <out.json>",
	Short: "Extract the source of every function in a build",
	Long: `func-src runs get_all_func_src for every compile command in the build log
and writes {source_file: {function_name: source_text}} as JSON. Files in
which no function was found are left out.

Examples:
  ccindex func-src compile_commands.txt functions.json
  ccindex func-src compile_commands.txt functions.json --sqlite functions.db
`,
	Args: cobra.ExactArgs(2),
	RunE: runFuncSrc,
}

// funcSrcFilesCmd represents the func-src-files command
var funcSrcFilesCmd = &cobra.Command{
	Use:   "func-src-files <src_list> [out.json] [-- <compile args>]",
	Short: "Extract function sources for a list of files",
	Long: `func-src-files runs get_all_func_src for every file named in a source list
(one path per line, blank lines and # comments ignored). Relative paths are
resolved against the current directory, and the extractor runs there.
Arguments after -- are passed to every extractor call.

The output defaults to out.json.

Examples:
  ccindex func-src-files sources.txt
  ccindex func-src-files sources.txt functions.json -- -I include -DNDEBUG
`,
	Args: positionalRange(1, 2),
	RunE: runFuncSrcFiles,
}

// funcListCmd represents the func-list command
var funcListCmd = &cobra.Command{
	Use:   "func-list <src_list> [out.json] [-- <compile args>]",
	Short: "Extract function sources one function at a time",
	Long: `func-list asks get_func_list for the functions of every file in a source
list, then extracts each one with get_func_src. Use it when an extractor
cannot produce a whole file at once. Functions that come back empty, and
output that is not valid UTF-8, are skipped.

The output defaults to out.json.

Examples:
  ccindex func-list sources.txt
  ccindex func-list sources.txt functions.json -- -std=c11
`,
	Args: positionalRange(1, 2),
	RunE: runFuncList,
}

func init() {
	rootCmd.AddCommand(funcSrcCmd)
	rootCmd.AddCommand(funcSrcFilesCmd)
	rootCmd.AddCommand(funcListCmd)
	funcSrcCmd.Flags().StringVar(&funcSrcSQLite, "sqlite", "", "Also export the function sources to this SQLite database")
	funcSrcCmd.Flags().IntVar(&funcSrcKeepRuns, "keep-runs", 0, "With --sqlite, keep only this many newest runs (0 keeps all)")
}

func runFuncSrc(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), cmd.ErrOrStderr())
	defer cancel()

	cfg, rootDir, err := loadConfig()
	if err != nil {
		return err
	}

	logPath := pipeline.ResolveOutputPath(rootDir, args[0])
	outPath := pipeline.ResolveOutputPath(rootDir, args[1])
	if err := requireFile(logPath); err != nil {
		return err
	}
	var dbPath string
	if funcSrcSQLite != "" {
		dbPath = pipeline.ResolveOutputPath(rootDir, funcSrcSQLite)
	}

	invs, err := parseBuildLog(cfg, logPath)
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg, extract.ToolAllFuncSrc)
	if err != nil {
		return err
	}
	defer runner.Close()

	fs, stats, err := newPipeline(cmd, cfg, runner, "Extracting functions").FuncSources(ctx, invs)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction cancelled")
		}
		return err
	}

	out := cmd.OutOrStdout()
	if err := writeArtifact(out, cfg, stats, outPath, fs); err != nil {
		return err
	}
	return exportRun(ctx, out, dbPath, funcSrcKeepRuns, func(e *storage.Exporter) (string, error) {
		return e.WriteFuncSources(ctx, storage.RunInfo{InputPath: logPath, OutputPath: outPath}, fs)
	})
}

func runFuncSrcFiles(cmd *cobra.Command, args []string) error {
	return runSourceList(cmd, args, extract.ToolAllFuncSrc)
}

func runFuncList(cmd *cobra.Command, args []string) error {
	return runSourceList(cmd, args, extract.ToolFuncList, extract.ToolFuncSrc)
}

// runSourceList drives the source-list commands. With get_all_func_src each file is
// extracted whole; otherwise functions are listed and extracted one by one.
func runSourceList(cmd *cobra.Command, args []string, tools ...string) error {
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), cmd.ErrOrStderr())
	defer cancel()

	cfg, rootDir, err := loadConfig()
	if err != nil {
		return err
	}

	positional, compileArgs := splitDashArgs(cmd, args)
	listPath := pipeline.ResolveOutputPath(rootDir, positional[0])
	outPath := pipeline.ResolveOutputPath(rootDir, "out.json")
	if len(positional) > 1 {
		outPath = pipeline.ResolveOutputPath(rootDir, positional[1])
	}
	if err := requireFile(listPath); err != nil {
		return err
	}

	invs, err := compilecmd.ReadSourceList(listPath, rootDir, compileArgs)
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg, tools...)
	if err != nil {
		return err
	}
	defer runner.Close()

	p := newPipeline(cmd, cfg, runner, "Extracting functions")
	extractAll := p.FuncSourcesByName
	if tools[0] == extract.ToolAllFuncSrc {
		extractAll = p.FuncSources
	}

	fs, stats, err := extractAll(ctx, invs)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction cancelled")
		}
		return err
	}

	return writeArtifact(cmd.OutOrStdout(), cfg, stats, outPath, fs)
}
