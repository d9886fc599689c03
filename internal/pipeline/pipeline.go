// Package pipeline drives extractors over every compilation unit of a build
// and folds their partial results into one project-wide artifact.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mvp-joe/ccindex/internal/codedb"
	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/extract"
	"golang.org/x/sync/errgroup"
)

// Extractor runs external tools against compilation units.
// *extract.Runner is the production implementation.
type Extractor interface {
	Extract(ctx context.Context, tool string, inv *compilecmd.Invocation) (extract.Outcome, error)
	Capture(ctx context.Context, tool, source, dir string, args ...string) (extract.Outcome, error)
}

// Pipeline folds extractor output for a list of invocations.
type Pipeline struct {
	extractor Extractor
	workers   int
	progress  ProgressReporter

	mu    sync.Mutex // serializes progress callbacks and stats
	stats Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many invocations are extracted concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithProgress configures progress reporting.
func WithProgress(progress ProgressReporter) Option {
	return func(p *Pipeline) {
		if progress != nil {
			p.progress = progress
		}
	}
}

// New creates a pipeline. It runs invocations one at a time unless WithWorkers says otherwise.
func New(extractor Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		workers:   1,
		progress:  &NoOpProgressReporter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildIndex runs get_all_src and get_callgraph for every invocation and returns
// the merged symbol and call graph database. A unit whose symbol extraction
// fails contributes nothing.
func (p *Pipeline) BuildIndex(ctx context.Context, invs []*compilecmd.Invocation) (*codedb.Database, *Stats, error) {
	db := codedb.NewDatabase()

	err := p.run(ctx, invs, func(ctx context.Context, inv *compilecmd.Invocation) error {
		out, err := p.extractor.Extract(ctx, extract.ToolAllSrc, inv)
		if err != nil {
			return err
		}
		if !p.accept(out, func(data []byte) error {
			_, err := db.MergeSymbols(data)
			return err
		}) {
			return nil
		}

		out, err = p.extractor.Extract(ctx, extract.ToolCallGraph, inv)
		if err != nil {
			return err
		}
		p.accept(out, func(data []byte) error {
			_, err := db.MergeCallGraph(data)
			return err
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	stats := p.finish("symbols", db.Summary)
	stats.Functions = len(db.CallGraph)
	p.progress.OnComplete(stats)
	return db, stats, nil
}

// FuncSources runs get_all_func_src for every invocation and stores each
// file's functions keyed by the invocation's source path.
func (p *Pipeline) FuncSources(ctx context.Context, invs []*compilecmd.Invocation) (*codedb.FuncSourceDB, *Stats, error) {
	db := codedb.NewFuncSourceDB()

	err := p.run(ctx, invs, func(ctx context.Context, inv *compilecmd.Invocation) error {
		out, err := p.extractor.Extract(ctx, extract.ToolAllFuncSrc, inv)
		if err != nil {
			return err
		}
		p.accept(out, func(data []byte) error {
			funcs, err := codedb.DecodeFuncSources(data)
			if err != nil {
				return err
			}
			db.Set(inv.SourceFile, funcs)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	stats := p.finish("functions", db.Summary)
	p.progress.OnComplete(stats)
	return db, stats, nil
}

// FuncSourcesByName lists functions with get_func_list and extracts each one
// separately with get_func_src. Functions whose source comes back empty are dropped.
func (p *Pipeline) FuncSourcesByName(ctx context.Context, invs []*compilecmd.Invocation) (*codedb.FuncSourceDB, *Stats, error) {
	db := codedb.NewFuncSourceDB()

	err := p.run(ctx, invs, func(ctx context.Context, inv *compilecmd.Invocation) error {
		listArgs := append([]string{inv.SourceFile, "--"}, inv.Args...)
		out, err := p.extractor.Capture(ctx, extract.ToolFuncList, inv.SourceFile, inv.WorkingDir, listArgs...)
		if err != nil {
			return err
		}
		if !p.accept(out, nil) {
			return nil
		}

		var names []string
		for _, line := range strings.Split(out.Text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				names = append(names, line)
			}
		}

		funcs := make(map[string]string, len(names))
		for _, name := range names {
			srcArgs := append([]string{inv.SourceFile, name, "--"}, inv.Args...)
			out, err := p.extractor.Capture(ctx, extract.ToolFuncSrc, inv.SourceFile, inv.WorkingDir, srcArgs...)
			if err != nil {
				return err
			}
			if p.accept(out, nil) && out.Text != "" {
				funcs[name] = out.Text
			}
		}
		db.Set(inv.SourceFile, funcs)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	stats := p.finish("functions", db.Summary)
	p.progress.OnComplete(stats)
	return db, stats, nil
}

// run calls fn for each invocation on up to p.workers goroutines. fn returns an
// error only for problems that invalidate the whole run; per-unit failures are
// recorded through accept.
func (p *Pipeline) run(ctx context.Context, invs []*compilecmd.Invocation, fn func(context.Context, *compilecmd.Invocation) error) error {
	p.mu.Lock()
	p.stats = Stats{Invocations: len(invs)}
	p.progress.OnExtractionStart(len(invs))
	p.mu.Unlock()

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, inv := range invs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(gctx, inv); err != nil {
				return err
			}
			p.mu.Lock()
			p.progress.OnInvocationProcessed(inv)
			p.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.stats.Duration = time.Since(start)
	p.mu.Unlock()
	return nil
}

// accept records an outcome and, when it is usable, hands its data to fold.
// A fold error downgrades the outcome to skipped. Reports whether the unit's
// output was used.
func (p *Pipeline) accept(out extract.Outcome, fold func([]byte) error) bool {
	if out.OK() && fold != nil {
		if err := fold(out.Data); err != nil {
			out.Status = extract.StatusSkipped
			out.Reason = err.Error()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch out.Status {
	case extract.StatusOK:
		p.stats.Extractions++
		return true
	case extract.StatusSkipped:
		p.stats.Skipped++
	default:
		p.stats.Failed++
	}
	p.progress.OnOutcome(out)
	return false
}

func (p *Pipeline) finish(kind string, summary func() (int, int)) *Stats {
	files, items := summary()

	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.Files = files
	stats.Items = items
	stats.ItemKind = kind
	return &stats
}
