package reporter

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/teranos/qxfer/logger"
	"github.com/teranos/qxfer/transfer"
)

// ProgressEvery is how many records pass between progress lines at debug verbosity
const ProgressEvery = 1000

// CLIReporter prints stage boundaries and a summary table to a terminal
type CLIReporter struct {
	w         io.Writer
	verbosity int
}

// NewCLIReporter writes to stdout when w is nil
func NewCLIReporter(w io.Writer, verbosity int) *CLIReporter {
	if w == nil {
		w = os.Stdout
	}
	return &CLIReporter{w: w, verbosity: verbosity}
}

func (r *CLIReporter) Event(ev transfer.ProgressEvent) {
	p := ev.Data[ev.Stage]
	switch ev.Type {
	case transfer.EventStart:
		pterm.Fprintln(r.w, fmt.Sprintf("🔄 %s: started", pterm.LightCyan(string(ev.Stage))))
	case transfer.EventProgress:
		if r.verbosity >= logger.VerbosityDebug && p.Count%ProgressEvery == 0 {
			pterm.Fprintln(r.w, fmt.Sprintf("   %s: %s records", ev.Stage, pterm.Gray(fmt.Sprintf("%d", p.Count))))
		}
	case transfer.EventComplete:
		pterm.Fprintln(r.w, fmt.Sprintf("✅ %s: %s records (%s)",
			pterm.LightCyan(string(ev.Stage)), pterm.Green(fmt.Sprintf("%d", p.Count)), formatBytes(p.Bytes)))
		if r.verbosity >= logger.VerbosityInfo {
			for _, key := range sortedKeys(p.Aggregates) {
				agg := p.Aggregates[key]
				pterm.Fprintln(r.w, fmt.Sprintf("   %s: %d (%s)", key, agg.Count, formatBytes(agg.Bytes)))
			}
		}
	}
}

func (r *CLIReporter) Complete(results *transfer.Results, snapshot transfer.Snapshot) {
	data := pterm.TableData{{"Stage", "Records", "Size"}}
	for _, stage := range transfer.Stages {
		p, ok := snapshot[stage]
		if !ok {
			continue
		}
		data = append(data, []string{string(stage), fmt.Sprintf("%d", p.Count), formatBytes(p.Bytes)})
	}
	total := snapshot.Total()
	data = append(data, []string{"total", fmt.Sprintf("%d", total.Count), formatBytes(total.Bytes)})

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err == nil {
		pterm.Fprintln(r.w, table)
	}
	pterm.Fprintln(r.w, pterm.Success.Sprintf("Transfer %s complete", results.TransferID))
}

func (r *CLIReporter) Error(err error) {
	pterm.Fprintln(r.w, pterm.Error.Sprintf("Transfer failed: %v", err))
}

func sortedKeys(m map[string]transfer.Counter) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
