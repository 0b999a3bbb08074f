// Package reporter renders a transfer's progress feed for people (CLI) and
// for programs (JSON lines).
package reporter

import (
	"fmt"

	"github.com/teranos/qxfer/transfer"
)

// Reporter consumes a transfer's progress events and reports its outcome.
//
// Implementations include:
// - CLIReporter: pterm output for terminals
// - JSONReporter: one JSON object per line for scripts
type Reporter interface {
	// Event handles one progress event
	Event(ev transfer.ProgressEvent)

	// Complete reports a successful transfer
	Complete(results *transfer.Results, snapshot transfer.Snapshot)

	// Error reports a failed transfer
	Error(err error)
}

// Consume feeds events to r until the channel is closed. The returned
// channel is closed once every event has been handled.
func Consume(r Reporter, events <-chan transfer.ProgressEvent) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			r.Event(ev)
		}
	}()
	return done
}

// formatBytes renders n with a binary unit
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
