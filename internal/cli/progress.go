package cli

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/extract"
	"github.com/mvp-joe/ccindex/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// CLIProgressReporter implements pipeline.ProgressReporter with a progress bar.
// Failed extractor calls are logged as warnings; skipped ones only when verbose.
type CLIProgressReporter struct {
	quiet       bool
	verbose     bool
	description string
	writer      io.Writer
	bar         *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a new CLI progress reporter writing its bar to w.
func NewCLIProgressReporter(w io.Writer, description string, quiet, verbose bool) *CLIProgressReporter {
	return &CLIProgressReporter{
		quiet:       quiet,
		verbose:     verbose,
		description: description,
		writer:      w,
	}
}

func (c *CLIProgressReporter) OnExtractionStart(total int) {
	if c.quiet {
		return
	}
	if c.verbose {
		log.Printf("Processing %s compile commands\n", formatNumber(total))
	}

	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.writer),
		progressbar.OptionSetDescription(c.description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.writer)
		}),
	)
}

func (c *CLIProgressReporter) OnInvocationProcessed(inv *compilecmd.Invocation) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnOutcome(outcome extract.Outcome) {
	if c.quiet {
		return
	}
	switch outcome.Status {
	case extract.StatusFailed:
		c.clear()
		log.Printf("Warning: %s", outcome)
	case extract.StatusSkipped:
		if c.verbose {
			c.clear()
			log.Printf("Skipped: %s", outcome)
		}
	}
}

func (c *CLIProgressReporter) OnComplete(stats *pipeline.Stats) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
	if c.verbose {
		log.Printf("Extraction complete: %s ok, %s skipped, %s failed (took %.1fs)\n",
			formatNumber(stats.Extractions),
			formatNumber(stats.Skipped),
			formatNumber(stats.Failed),
			stats.Duration.Seconds())
	}
}

// clear erases the bar line so a log line does not interleave with it.
func (c *CLIProgressReporter) clear() {
	if c.bar != nil {
		c.bar.Clear()
	}
}

// formatNumber formats an integer with thousands separators.
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
