package uninstall

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"pruneware/inventory"
)

type scriptedUninstaller struct {
	fail     map[string]bool
	calls    []string
	afterRun func(n int)
}

func (s *scriptedUninstaller) Execute(ctx context.Context, e inventory.SoftwareEntry, m Method) Result {
	s.calls = append(s.calls, e.ID)
	res := Result{Entry: e, Method: m, Success: !s.fail[e.ID], CompletedAt: time.Now()}
	if !res.Success {
		res.ExitCode = 1603
		res.Error = "Fatal error during installation (exit code 1603)"
	}
	if s.afterRun != nil {
		s.afterRun(len(s.calls))
	}
	return res
}

// cancellingUninstaller reports item cancelAt as cancelled, optionally
// cancelling the batch context first as a signal handler would.
type cancellingUninstaller struct {
	cancelAt int
	cancel   context.CancelFunc
	calls    []string
}

func (c *cancellingUninstaller) Execute(ctx context.Context, e inventory.SoftwareEntry, m Method) Result {
	c.calls = append(c.calls, e.ID)
	if len(c.calls) == c.cancelAt {
		if c.cancel != nil {
			c.cancel()
		}
		return Result{Entry: e, Method: m, ExitCode: -1, Cancelled: true, Error: msgCancelled, CompletedAt: time.Now()}
	}
	return Result{Entry: e, Method: m, Success: true, CompletedAt: time.Now()}
}

func makeEntries(n int) []inventory.SoftwareEntry {
	entries := make([]inventory.SoftwareEntry, n)
	for i := range entries {
		entries[i] = inventory.SoftwareEntry{
			ID:              fmt.Sprintf("item-%d", i+1),
			Name:            fmt.Sprintf("App %d", i+1),
			UninstallString: fmt.Sprintf(`C:\App%d\uninst.exe`, i+1),
			Uninstallable:   true,
		}
	}
	return entries
}

func selectAll(ws *WorkingSet) {
	for _, e := range ws.Entries() {
		ws.Select(e.ID)
	}
}

func TestBatchPartialFailure(t *testing.T) {
	ws := NewWorkingSet(makeEntries(3))
	selectAll(ws)
	u := &scriptedUninstaller{fail: map[string]bool{"item-2": true}}
	var seen []string
	o := NewOrchestrator(u, OrchestratorOptions{OnResult: func(r Result) { seen = append(seen, r.Entry.ID) }})

	batch := o.RunSelected(context.Background(), ws)
	if batch.Total() != 3 || batch.Succeeded() != 2 || batch.Failed() != 1 {
		t.Fatalf("unexpected counts total=%d ok=%d failed=%d", batch.Total(), batch.Succeeded(), batch.Failed())
	}
	if batch.Cancelled {
		t.Fatal("batch should not be cancelled")
	}
	if strings.Join(u.calls, ",") != "item-1,item-2,item-3" || strings.Join(seen, ",") != "item-1,item-2,item-3" {
		t.Fatalf("items must run in order, got %v / %v", u.calls, seen)
	}
	if ws.Len() != 1 {
		t.Fatalf("expected only the failed entry to remain, got %d", ws.Len())
	}
	if _, ok := ws.Get("item-2"); !ok || !ws.IsSelected("item-2") {
		t.Fatal("failed entry must remain present and selected")
	}
	for _, id := range []string{"item-1", "item-3"} {
		if _, ok := ws.Get(id); ok {
			t.Fatalf("expected %s to be removed", id)
		}
	}
}

func TestBatchCancellationMidway(t *testing.T) {
	entries := makeEntries(5)
	ws := NewWorkingSet(entries)
	selectAll(ws)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u := &scriptedUninstaller{afterRun: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	batch := NewOrchestrator(u, OrchestratorOptions{}).RunSelected(ctx, ws)
	if batch.Total() != 2 || !batch.Cancelled {
		t.Fatalf("expected 2 results and cancelled flag, got %d cancelled=%v", batch.Total(), batch.Cancelled)
	}
	for _, r := range batch.Results {
		if r.Entry.ID == "item-3" || r.Entry.ID == "item-4" || r.Entry.ID == "item-5" {
			t.Fatalf("unstarted item %s must be absent", r.Entry.ID)
		}
	}
	if ws.Len() != 3 || len(ws.Selected()) != 3 {
		t.Fatalf("unstarted items must remain selected, got len=%d selected=%d", ws.Len(), len(ws.Selected()))
	}
}

func TestBatchCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := &scriptedUninstaller{}
	batch := NewOrchestrator(u, OrchestratorOptions{}).Run(ctx, makeEntries(2))
	if batch.Total() != 0 || !batch.Cancelled || len(u.calls) != 0 {
		t.Fatalf("expected nothing to run, got %+v", batch)
	}
}

func TestBatchNoMethodIsFailure(t *testing.T) {
	entries := makeEntries(2)
	entries[0].Uninstallable = false
	u := &scriptedUninstaller{}
	batch := NewOrchestrator(u, OrchestratorOptions{}).Run(context.Background(), entries)
	if batch.Total() != 2 || batch.Failed() != 1 {
		t.Fatalf("unexpected counts %d/%d", batch.Total(), batch.Failed())
	}
	if batch.Results[0].Method != MethodNone || batch.Results[0].Error != msgNoMethod {
		t.Fatalf("unexpected first result %+v", batch.Results[0])
	}
	if len(u.calls) != 1 {
		t.Fatalf("entries without a method must not reach the executor, got %v", u.calls)
	}
}

func TestBatchIntervalSpacing(t *testing.T) {
	u := &scriptedUninstaller{}
	o := NewOrchestrator(u, OrchestratorOptions{Interval: 30 * time.Millisecond})
	start := time.Now()
	batch := o.Run(context.Background(), makeEntries(3))
	if batch.Total() != 3 {
		t.Fatalf("expected 3 results, got %d", batch.Total())
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected starts to be spaced, batch took %s", elapsed)
	}
}

type recordingProgress struct {
	events []string
}

func (p *recordingProgress) Start(total int) { p.events = append(p.events, fmt.Sprintf("start:%d", total)) }
func (p *recordingProgress) Item(i int, e inventory.SoftwareEntry) {
	p.events = append(p.events, fmt.Sprintf("item:%d", i))
}
func (p *recordingProgress) Done(r Result) { p.events = append(p.events, "done:"+r.Entry.ID) }
func (p *recordingProgress) Finish()       { p.events = append(p.events, "finish") }

func TestBatchProgress(t *testing.T) {
	p := &recordingProgress{}
	NewOrchestrator(&scriptedUninstaller{}, OrchestratorOptions{Progress: p}).Run(context.Background(), makeEntries(2))
	want := "start:2,item:0,done:item-1,item:1,done:item-2,finish"
	if got := strings.Join(p.events, ","); got != want {
		t.Fatalf("progress events %s, want %s", got, want)
	}
}

func TestBatchSummary(t *testing.T) {
	entries := makeEntries(2)
	entries[0].Version = "1.2"
	batch := BatchResult{
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local),
		Duration:  1500 * time.Millisecond,
		Cancelled: true,
		Results: []Result{
			{Entry: entries[0], Success: true, Method: MethodQuietUninstallString, ExitCode: 3010, RebootRequired: true},
			{Entry: entries[1], Method: MethodMsiProductCode, ExitCode: 1603, Error: "Fatal error during installation (exit code 1603)"},
		},
	}
	summary := batch.Summary()
	for _, want := range []string{
		"Uninstall Summary",
		"Total:     2",
		"Succeeded: 1",
		"Failed:    1",
		"cancelled",
		"reboot is required",
		"[OK] App 1 1.2 (QuietUninstallString, exit 3010",
		"[FAILED] App 2 (MsiProductCode, exit 1603",
		"    Error: Fatal error during installation (exit code 1603)",
	} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestBatchCancelledItemStopsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws := NewWorkingSet(makeEntries(3))
	selectAll(ws)
	u := &cancellingUninstaller{cancelAt: 2, cancel: cancel}

	batch := NewOrchestrator(u, OrchestratorOptions{}).RunSelected(ctx, ws)
	if batch.Total() != 2 {
		t.Fatalf("expected 2 results, got %d", batch.Total())
	}
	if !batch.Cancelled {
		t.Fatal("expected batch to be cancelled")
	}
	if !batch.Results[1].Cancelled || batch.Results[1].Status() != "CANCELLED" {
		t.Fatalf("expected item 2 to be cancelled, got %+v", batch.Results[1])
	}
	for _, r := range batch.Results {
		if r.Entry.ID == "item-3" {
			t.Fatal("item 3 must not appear in the results")
		}
	}
	if strings.Join(u.calls, ",") != "item-1,item-2" {
		t.Fatalf("item 3 must not start, got calls %v", u.calls)
	}
	if _, ok := ws.Get("item-1"); ok {
		t.Fatal("succeeded item 1 should be removed")
	}
	if !ws.IsSelected("item-2") || !ws.IsSelected("item-3") {
		t.Fatal("cancelled and unstarted items stay selected")
	}
}

func TestBatchCancelledResultWithLiveContext(t *testing.T) {
	u := &cancellingUninstaller{cancelAt: 2}
	batch := NewOrchestrator(u, OrchestratorOptions{}).Run(context.Background(), makeEntries(3))
	if batch.Total() != 2 || !batch.Cancelled {
		t.Fatalf("expected 2 results and a cancelled batch, got total=%d cancelled=%v", batch.Total(), batch.Cancelled)
	}
}
