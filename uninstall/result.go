package uninstall

import (
	"fmt"
	"strings"
	"time"

	"pruneware/inventory"
)

// Result is the outcome of one uninstall. It is built once by the executor
// and never modified.
type Result struct {
	Entry          inventory.SoftwareEntry `json:"entry"`
	Success        bool                    `json:"success"`
	ExitCode       int                     `json:"exit_code"`
	Error          string                  `json:"error,omitempty"`
	Stdout         string                  `json:"stdout,omitempty"`
	Stderr         string                  `json:"stderr,omitempty"`
	Method         Method                  `json:"method"`
	Command        string                  `json:"command,omitempty"`
	Duration       time.Duration           `json:"duration"`
	CompletedAt    time.Time               `json:"completed_at"`
	RebootRequired bool                    `json:"reboot_required,omitempty"`
	Cancelled      bool                    `json:"cancelled,omitempty"`
	TimedOut       bool                    `json:"timed_out,omitempty"`
	DryRun         bool                    `json:"dry_run,omitempty"`
}

func (r Result) Status() string {
	switch {
	case r.Success && r.DryRun:
		return "PLANNED"
	case r.Success:
		return "OK"
	case r.Cancelled:
		return "CANCELLED"
	case r.TimedOut:
		return "TIMEOUT"
	}
	return "FAILED"
}

// BatchResult collects the results of one batch in execution order. Counts
// are derived from Results.
type BatchResult struct {
	Results   []Result      `json:"results"`
	Cancelled bool          `json:"cancelled"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (b BatchResult) Total() int { return len(b.Results) }

func (b BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() int { return b.Total() - b.Succeeded() }

func (b BatchResult) RebootRequired() bool {
	for _, r := range b.Results {
		if r.RebootRequired {
			return true
		}
	}
	return false
}

const summaryBanner = "========================================"

// Summary renders the batch as a multi-line log: banner, totals, one status
// line per item and an error line under each failed item.
func (b BatchResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(summaryBanner + "\n")
	sb.WriteString("Uninstall Summary\n")
	sb.WriteString(summaryBanner + "\n")
	fmt.Fprintf(&sb, "Started:   %s\n", b.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Duration:  %s\n", b.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Total:     %d\n", b.Total())
	fmt.Fprintf(&sb, "Succeeded: %d\n", b.Succeeded())
	fmt.Fprintf(&sb, "Failed:    %d\n", b.Failed())
	if b.Cancelled {
		sb.WriteString("Batch was cancelled before all items ran.\n")
	}
	if b.RebootRequired() {
		sb.WriteString("A reboot is required to complete removal.\n")
	}
	sb.WriteString(summaryBanner + "\n")
	for _, r := range b.Results {
		fmt.Fprintf(&sb, "[%s] %s (%s, exit %d, %s)\n",
			r.Status(), r.Entry.DisplayName(), r.Method, r.ExitCode, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(&sb, "    Error: %s\n", r.Error)
		}
	}
	return sb.String()
}
