package uninstall

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pruneware/inventory"
	"pruneware/logger"
)

func init() {
	logger.Init("error")
}

type fakeRunner struct {
	mu      sync.Mutex
	specs   []ProcessSpec
	outcome ProcessOutcome
	err     error
	// block waits for ctx instead of returning immediately
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ProcessOutcome{ExitCode: -1}, ctx.Err()
	}
	return f.outcome, f.err
}

func quietEntry() inventory.SoftwareEntry {
	return inventory.SoftwareEntry{
		ID:                   "e1",
		Name:                 "Contoso App",
		QuietUninstallString: `"C:\Program Files\Contoso\uninst.exe" /S`,
		InstallerType:        inventory.InstallerNSIS,
		Uninstallable:        true,
	}
}

func msiEntry() inventory.SoftwareEntry {
	return inventory.SoftwareEntry{
		ID:            "e2",
		Name:          "Contoso MSI",
		ProductCode:   "{11111111-2222-3333-4444-555555555555}",
		InstallerType: inventory.InstallerMSI,
		Uninstallable: true,
	}
}

func TestExecutorSuccessCodes(t *testing.T) {
	cases := []struct {
		method Method
		entry  inventory.SoftwareEntry
		code   int
		ok     bool
	}{
		{MethodQuietUninstallString, quietEntry(), 0, true},
		{MethodQuietUninstallString, quietEntry(), 3010, true},
		{MethodQuietUninstallString, quietEntry(), 1605, false},
		{MethodQuietUninstallString, quietEntry(), 1, false},
		{MethodMsiProductCode, msiEntry(), 0, true},
		{MethodMsiProductCode, msiEntry(), 3010, true},
		{MethodMsiProductCode, msiEntry(), 1605, true},
		{MethodMsiProductCode, msiEntry(), 1603, false},
	}
	for _, tc := range cases {
		runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: tc.code}}
		res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), tc.entry, tc.method)
		if res.Success != tc.ok || res.ExitCode != tc.code {
			t.Fatalf("%s exit %d: success=%v code=%d, want success=%v", tc.method, tc.code, res.Success, res.ExitCode, tc.ok)
		}
		if res.RebootRequired != (tc.code == 3010) {
			t.Fatalf("%s exit %d: unexpected reboot flag", tc.method, tc.code)
		}
		if !res.Success && res.Error == "" {
			t.Fatal("failed result must carry a message")
		}
		if res.CompletedAt.IsZero() {
			t.Fatal("expected completion timestamp")
		}
	}
}

func TestExecutorMsiMessages(t *testing.T) {
	runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: 1618}}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), msiEntry(), MethodMsiProductCode)
	if !strings.Contains(res.Error, "Another installation is already in progress") {
		t.Fatalf("unexpected message %q", res.Error)
	}
	runner.outcome = ProcessOutcome{ExitCode: 4242}
	res = NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), msiEntry(), MethodMsiProductCode)
	if !strings.Contains(res.Error, "4242") {
		t.Fatalf("expected raw code in message, got %q", res.Error)
	}
	spec := runner.specs[0]
	if spec.Path != "msiexec.exe" || spec.Args != "/x {11111111-2222-3333-4444-555555555555} /qn /norestart" || spec.Elevated {
		t.Fatalf("unexpected msi spec %+v", spec)
	}
}

func TestExecutorUninstallStringElevates(t *testing.T) {
	runner := &fakeRunner{}
	entry := inventory.SoftwareEntry{Name: "Inno App", UninstallString: `C:\App\unins000.exe`, InstallerType: inventory.InstallerInnoSetup, Uninstallable: true}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), entry, MethodUninstallString)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	spec := runner.specs[0]
	if !spec.Elevated || spec.Args != "/VERYSILENT /SUPPRESSMSGBOXES /NORESTART" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestExecutorElevationDeclined(t *testing.T) {
	runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: 1223}, err: ErrElevationDeclined}
	entry := inventory.SoftwareEntry{Name: "App", UninstallString: `C:\App\uninst.exe`, Uninstallable: true}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), entry, MethodUninstallString)
	if res.Success || res.Error != msgElevationDeclined {
		t.Fatalf("expected elevation declined failure, got %+v", res)
	}
}

func TestExecutorLaunchFailure(t *testing.T) {
	runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: -1}, err: errors.New("file not found")}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), quietEntry(), MethodQuietUninstallString)
	if res.Success || !strings.Contains(res.Error, "file not found") {
		t.Fatalf("expected launch failure, got %+v", res)
	}
}

func TestExecutorNoMethod(t *testing.T) {
	runner := &fakeRunner{}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), quietEntry(), MethodNone)
	if res.Success || res.Error != msgNoMethod || len(runner.specs) != 0 {
		t.Fatalf("expected no-method failure without a process, got %+v", res)
	}
	entry := inventory.SoftwareEntry{Name: "MSI without code", WindowsInstaller: true, Uninstallable: true}
	res = NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), entry, MethodMsiProductCode)
	if res.Success || res.Error != msgMissingProductCode {
		t.Fatalf("expected missing product code failure, got %+v", res)
	}
}

func TestExecutorTimeout(t *testing.T) {
	runner := &fakeRunner{block: true}
	res := NewExecutor(runner, ExecutorOptions{Timeout: 20 * time.Millisecond}).Execute(context.Background(), quietEntry(), MethodQuietUninstallString)
	if res.Success || !res.TimedOut || res.Cancelled {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("unexpected timeout message %q", res.Error)
	}
}

func TestExecutorCancellation(t *testing.T) {
	runner := &fakeRunner{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := NewExecutor(runner, ExecutorOptions{Timeout: time.Minute}).Execute(ctx, quietEntry(), MethodQuietUninstallString)
	if res.Success || !res.Cancelled || res.TimedOut || res.Error != msgCancelled {
		t.Fatalf("expected cancellation, got %+v", res)
	}

	res = NewExecutor(runner, ExecutorOptions{}).Execute(ctx, quietEntry(), MethodQuietUninstallString)
	if !res.Cancelled || len(runner.specs) != 1 {
		t.Fatalf("cancelled context must not start a process, got %+v", res)
	}
}

func TestExecutorDryRun(t *testing.T) {
	runner := &fakeRunner{}
	res := NewExecutor(runner, ExecutorOptions{DryRun: true}).Execute(context.Background(), msiEntry(), MethodMsiProductCode)
	if !res.Success || !res.DryRun || len(runner.specs) != 0 {
		t.Fatalf("dry run must not spawn processes, got %+v", res)
	}
	if res.Stdout != "msiexec.exe /x {11111111-2222-3333-4444-555555555555} /qn /norestart" {
		t.Fatalf("unexpected planned command %q", res.Stdout)
	}
}

func TestExecutorCapturesOutput(t *testing.T) {
	runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: 2, Stdout: "removing\n", Stderr: "access denied\nmore", Captured: true}}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), quietEntry(), MethodQuietUninstallString)
	if res.Stdout != "removing" || res.Stderr != "access denied\nmore" {
		t.Fatalf("unexpected output %q / %q", res.Stdout, res.Stderr)
	}
	if !strings.HasSuffix(res.Error, ": access denied") {
		t.Fatalf("expected first stderr line in error, got %q", res.Error)
	}
}

func TestExecutorUnconfirmedLaunch(t *testing.T) {
	runner := &fakeRunner{outcome: ProcessOutcome{ExitCode: -1}, err: ErrNotConfirmed}
	entry := inventory.SoftwareEntry{Name: "App", UninstallString: `C:\App\uninst.exe`, Uninstallable: true}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(context.Background(), entry, MethodUninstallString)
	if res.Success || res.ExitCode != -1 || res.Error != msgNotConfirmed {
		t.Fatalf("expected unconfirmed launch to fail, got %+v", res)
	}
}

// exitOnCancelRunner cancels the caller's context and then reports a clean
// exit, as an uninstaller finishing just as the user hits Ctrl+C would.
type exitOnCancelRunner struct {
	cancel context.CancelFunc
	code   int
}

func (r *exitOnCancelRunner) Run(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error) {
	r.cancel()
	return ProcessOutcome{ExitCode: r.code}, nil
}

func TestExecutorExitBeatsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &exitOnCancelRunner{cancel: cancel, code: 0}
	res := NewExecutor(runner, ExecutorOptions{}).Execute(ctx, quietEntry(), MethodQuietUninstallString)
	if !res.Success || res.Cancelled || res.ExitCode != 0 {
		t.Fatalf("expected finished uninstall to count as success, got %+v", res)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	runner = &exitOnCancelRunner{cancel: cancel, code: 1603}
	res = NewExecutor(runner, ExecutorOptions{}).Execute(ctx, msiEntry(), MethodMsiProductCode)
	if res.Success || res.Cancelled || res.ExitCode != 1603 {
		t.Fatalf("expected exit code to decide the result, got %+v", res)
	}
}
