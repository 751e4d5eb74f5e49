package orchestrator

import (
	"fmt"
	"iter"
	"sync/atomic"
)

// ProgressReporter carries the stage events of one build through a buffered
// channel. The buffer holds one event per stage, so Emit never blocks and
// never drops events for a well-formed build.
type ProgressReporter struct {
	ch      chan StageEvent
	claimed atomic.Bool
	closed  atomic.Bool
}

// NewProgressReporter creates a ProgressReporter sized for len(Stages).
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan StageEvent, len(Stages)),
	}
}

// Emit sends a stage event in a non-blocking fashion.
// If the channel is full, the event is dropped.
func (pr *ProgressReporter) Emit(event StageEvent) {
	if pr.closed.Load() {
		return
	}
	select {
	case pr.ch <- event:
	default:
	}
}

// Events returns the event stream as a lazy, finite, one-shot sequence. Only
// the first call yields events; the sequence ends when Close is called.
func (pr *ProgressReporter) Events() iter.Seq[StageEvent] {
	return func(yield func(StageEvent) bool) {
		if !pr.claimed.CompareAndSwap(false, true) {
			return
		}
		for ev := range pr.ch {
			if !yield(ev) {
				return
			}
		}
	}
}

// Close ends the event stream. It must be called by the emitting goroutine.
func (pr *ProgressReporter) Close() {
	if pr.closed.CompareAndSwap(false, true) {
		close(pr.ch)
	}
}

// FormatEvent formats a StageEvent as a status line.
func FormatEvent(ev StageEvent) string {
	if ev.Message != "" {
		return fmt.Sprintf("  ● [%d/%d] %s: %s", int(ev.Stage)+1, len(Stages), ev.Stage.Label(), ev.Message)
	}
	return fmt.Sprintf("  ● [%d/%d] %s...", int(ev.Stage)+1, len(Stages), ev.Stage.Label())
}

// FormatResult formats a Result as a closing status line.
func FormatResult(r Result) string {
	if r.Succeeded() {
		return fmt.Sprintf("  ✓ build succeeded in %s", r.Duration.Round(1e6))
	}
	return fmt.Sprintf("  ✗ build failed: %s", firstLine(r.Diagnostic))
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
