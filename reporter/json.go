package reporter

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/transfer"
)

// Line is one JSON object written by JSONReporter
type Line struct {
	Type      string                  `json:"type"` // start, progress, complete, result, error
	Timestamp time.Time               `json:"timestamp"`
	Stage     transfer.Stage          `json:"stage,omitempty"`
	Progress  *transfer.StageProgress `json:"progress,omitempty"`
	Results   *transfer.Results       `json:"results,omitempty"`
	Totals    *transfer.Snapshot      `json:"totals,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Hints     []string                `json:"hints,omitempty"`
}

// JSONReporter writes newline-delimited JSON for scripts
type JSONReporter struct {
	mu      sync.Mutex
	encoder *json.Encoder

	// Progress includes per-record events; boundaries only when false
	Progress bool
}

// NewJSONReporter writes to stdout when w is nil
func NewJSONReporter(w io.Writer) *JSONReporter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONReporter{encoder: json.NewEncoder(w)}
}

func (r *JSONReporter) Event(ev transfer.ProgressEvent) {
	if ev.Type == transfer.EventProgress && !r.Progress {
		return
	}
	p := ev.Data[ev.Stage]
	r.write(Line{Type: string(ev.Type), Timestamp: ev.Timestamp, Stage: ev.Stage, Progress: &p})
}

func (r *JSONReporter) Complete(results *transfer.Results, snapshot transfer.Snapshot) {
	r.write(Line{Type: "result", Timestamp: time.Now(), Results: results, Totals: &snapshot})
}

func (r *JSONReporter) Error(err error) {
	r.write(Line{Type: "error", Timestamp: time.Now(), Error: err.Error(), Hints: errors.GetAllHints(err)})
}

func (r *JSONReporter) write(line Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoder.Encode(line)
}
