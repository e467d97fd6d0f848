package uninstall

import (
	"context"
	"time"

	"pruneware/inventory"
	"pruneware/logger"

	"golang.org/x/time/rate"
)

// Progress receives per-item notifications from a running batch.
type Progress interface {
	Start(total int)
	Item(index int, entry inventory.SoftwareEntry)
	Done(result Result)
	Finish()
}

type noopProgress struct{}

func (noopProgress) Start(int)                         {}
func (noopProgress) Item(int, inventory.SoftwareEntry) {}
func (noopProgress) Done(Result)                       {}
func (noopProgress) Finish()                           {}

type OrchestratorOptions struct {
	// Interval is the minimum spacing between uninstall starts. Zero runs
	// items back to back.
	Interval time.Duration
	Progress Progress
	// OnResult is called after every finished item, in order.
	OnResult func(Result)
}

// Orchestrator runs uninstalls one at a time in the given order. Items are
// never run concurrently: installers contend for the Windows Installer
// mutex and the per-item progress would be meaningless.
type Orchestrator struct {
	uninstaller Uninstaller
	limiter     *rate.Limiter
	progress    Progress
	onResult    func(Result)
}

func NewOrchestrator(u Uninstaller, opts OrchestratorOptions) *Orchestrator {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}
	progress := opts.Progress
	if progress == nil {
		progress = noopProgress{}
	}
	return &Orchestrator{uninstaller: u, limiter: limiter, progress: progress, onResult: opts.OnResult}
}

// Run processes entries in order. Cancellation is checked before each item;
// items not started are absent from the result. Per-item failures are
// recorded in the result and never stop the batch.
func (o *Orchestrator) Run(ctx context.Context, entries []inventory.SoftwareEntry) BatchResult {
	batch := BatchResult{StartedAt: time.Now(), Results: make([]Result, 0, len(entries))}
	o.progress.Start(len(entries))
	defer o.progress.Finish()

	for i, entry := range entries {
		if ctx.Err() != nil {
			batch.Cancelled = true
			break
		}
		if err := o.limiter.Wait(ctx); err != nil {
			batch.Cancelled = true
			break
		}
		if ctx.Err() != nil {
			batch.Cancelled = true
			break
		}

		o.progress.Item(i, entry)
		method := SelectMethod(entry)
		logger.Infof("Uninstalling %s (%d/%d) via %s", entry.DisplayName(), i+1, len(entries), method)
		var res Result
		if method == MethodNone {
			res = Result{Entry: entry, Method: method, ExitCode: -1, Error: msgNoMethod, CompletedAt: time.Now()}
		} else {
			res = o.uninstaller.Execute(ctx, entry, method)
		}
		batch.Results = append(batch.Results, res)
		o.progress.Done(res)
		if o.onResult != nil {
			o.onResult(res)
		}
		// a cancelled item ends the batch even if ctx is still live
		if res.Cancelled {
			batch.Cancelled = true
			break
		}
	}
	batch.Duration = time.Since(batch.StartedAt)
	logger.Infof("Batch finished: %d succeeded, %d failed, cancelled=%v", batch.Succeeded(), batch.Failed(), batch.Cancelled)
	return batch
}

// RunSelected runs the working set's selection and then removes every entry
// that was uninstalled. Failed entries stay selected for a retry. The
// working set must not be mutated by anyone else while this runs.
func (o *Orchestrator) RunSelected(ctx context.Context, ws *WorkingSet) BatchResult {
	batch := o.Run(ctx, ws.Selected())
	var done []string
	for _, r := range batch.Results {
		if r.Success && !r.DryRun {
			done = append(done, r.Entry.ID)
		}
	}
	ws.Remove(done...)
	return batch
}
