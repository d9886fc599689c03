package cli

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mvp-joe/ccindex/internal/config"
	"github.com/mvp-joe/ccindex/internal/extract"
	"github.com/mvp-joe/ccindex/internal/pipeline"
	"github.com/mvp-joe/ccindex/internal/storage"
	"github.com/mvp-joe/ccindex/internal/watcher"
	"github.com/spf13/cobra"
)

var (
	buildLogSQLite   string
	buildLogWatch    bool
	buildLogKeepRuns int
)

// buildLogCmd represents the build-log command
var buildLogCmd = &cobra.Command{
	Use:   "build-log <compile_commands.txt> <out.json>",
	Short: "Build a symbol database and call graph from a build log",
	Long: `build-log runs get_all_src and get_callgraph for every compile command in
the build log and writes the merged result as JSON:

  {"src": {file: {def_type: {name: definition}}},
   "callgraph": {function: {"callees": [...], "callers": [...]}}}

Definitions without code are dropped. A compile command whose extractor
fails is reported and skipped; it never fails the run.

Examples:
  # Index a project
  ccindex build-log compile_commands.txt index.json

  # Also export to SQLite
  ccindex build-log compile_commands.txt index.json --sqlite index.db

  # Rebuild the index every time the build log changes
  ccindex build-log build.log index.json --watch
`,
	Args: cobra.ExactArgs(2),
	RunE: runBuildLog,
}

func init() {
	rootCmd.AddCommand(buildLogCmd)
	buildLogCmd.Flags().StringVar(&buildLogSQLite, "sqlite", "", "Also export the index to this SQLite database")
	buildLogCmd.Flags().BoolVarP(&buildLogWatch, "watch", "w", false, "Rebuild the index whenever the build log changes")
	buildLogCmd.Flags().IntVar(&buildLogKeepRuns, "keep-runs", 0, "With --sqlite, keep only this many newest runs (0 keeps all)")
}

func runBuildLog(cmd *cobra.Command, args []string) error {
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
	if buildLogSQLite != "" {
		dbPath = pipeline.ResolveOutputPath(rootDir, buildLogSQLite)
	}

	runner, err := newRunner(cfg, extract.ToolAllSrc, extract.ToolCallGraph)
	if err != nil {
		return err
	}
	defer runner.Close()

	p := newPipeline(cmd, cfg, runner, "Indexing compile commands")
	out := cmd.OutOrStdout()

	index := func() error {
		return buildIndex(ctx, out, cfg, p, logPath, outPath, dbPath)
	}

	if err := index(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return err
	}

	if !buildLogWatch {
		return nil
	}
	return watchBuildLog(ctx, logPath, index)
}

// buildIndex runs one full pass over the build log and writes the artifacts.
// dbPath is empty when no SQLite export was requested.
func buildIndex(ctx context.Context, out io.Writer, cfg *config.Config, p *pipeline.Pipeline, logPath, outPath, dbPath string) error {
	invs, err := parseBuildLog(cfg, logPath)
	if err != nil {
		return err
	}

	db, stats, err := p.BuildIndex(ctx, invs)
	if err != nil {
		return err
	}

	if err := writeArtifact(out, cfg, stats, outPath, db); err != nil {
		return err
	}

	return exportRun(ctx, out, dbPath, buildLogKeepRuns, func(e *storage.Exporter) (string, error) {
		return e.WriteIndex(ctx, storage.RunInfo{InputPath: logPath, OutputPath: outPath}, db)
	})
}

// exportRun opens the SQLite database at dbPath and records one run with write,
// then keeps only the newest keep runs when keep is positive. It does nothing
// when dbPath is empty.
func exportRun(ctx context.Context, out io.Writer, dbPath string, keep int, write func(*storage.Exporter) (string, error)) error {
	if dbPath == "" {
		return nil
	}

	exporter, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer exporter.Close()

	runID, err := write(exporter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported run %s to %s\n", runID, dbPath)

	if keep > 0 {
		pruned, err := exporter.PruneRuns(ctx, keep)
		if err != nil {
			return err
		}
		if verbose && pruned > 0 {
			log.Printf("Pruned %d old runs from %s", pruned, dbPath)
		}
	}
	return nil
}

// watchBuildLog reruns index whenever the build log changes, until ctx is cancelled.
// A failing rerun is logged and watching continues.
func watchBuildLog(ctx context.Context, logPath string, index func() error) error {
	w, err := watcher.NewFileWatcher([]string{logPath})
	if err != nil {
		return fmt.Errorf("failed to watch build log: %w", err)
	}
	defer w.Stop()

	changed := make(chan struct{}, 1)
	err = w.Start(ctx, func(files []string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if !quiet {
		log.Printf("Watching %s for changes (Ctrl+C to stop)", logPath)
	}

	for {
		select {
		case <-ctx.Done():
			if !quiet {
				log.Println("Watch mode stopped")
			}
			return nil
		case <-changed:
			w.Pause()
			if err := index(); err != nil && ctx.Err() == nil {
				log.Printf("Warning: reindex failed: %v", err)
			}
			w.Resume()
		}
	}
}
