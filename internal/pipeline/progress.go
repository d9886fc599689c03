package pipeline

import (
	"github.com/mvp-joe/ccindex/internal/compilecmd"
	"github.com/mvp-joe/ccindex/internal/extract"
)

// ProgressReporter provides callbacks for reporting pipeline progress.
// Calls are serialized by the pipeline, so implementations need no locking.
type ProgressReporter interface {
	// OnExtractionStart is called once before the first invocation runs.
	OnExtractionStart(total int)

	// OnInvocationProcessed is called after every invocation, successful or not.
	OnInvocationProcessed(inv *compilecmd.Invocation)

	// OnOutcome is called for every extractor call that did not succeed.
	OnOutcome(outcome extract.Outcome)

	// OnComplete is called when all invocations have been processed.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnExtractionStart(total int)                      {}
func (n *NoOpProgressReporter) OnInvocationProcessed(inv *compilecmd.Invocation) {}
func (n *NoOpProgressReporter) OnOutcome(outcome extract.Outcome)                {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)                          {}
