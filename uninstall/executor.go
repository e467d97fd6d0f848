package uninstall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pruneware/inventory"
	"pruneware/logger"

	"github.com/pkg/errors"
)

const DefaultTimeout = 5 * time.Minute

const (
	msgNoMethod           = "No uninstall method available"
	msgCancelled          = "Uninstall cancelled by user"
	msgElevationDeclined  = "Administrator privileges were declined"
	msgMissingProductCode = "No MSI product code or uninstall string available"
	msgNotConfirmed       = "Uninstaller started but its completion could not be confirmed"
)

// Uninstaller removes one entry with a given method. Implementations must
// report every failure through the Result.
type Uninstaller interface {
	Execute(ctx context.Context, entry inventory.SoftwareEntry, method Method) Result
}

type ExecutorOptions struct {
	Timeout time.Duration
	// DryRun builds and logs commands without starting them.
	DryRun bool
}

type Executor struct {
	runner  Runner
	timeout time.Duration
	dryRun  bool
}

func NewExecutor(runner Runner, opts ExecutorOptions) *Executor {
	if runner == nil {
		runner = NewExecRunner()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{runner: runner, timeout: timeout, dryRun: opts.DryRun}
}

// Plan builds the process request for an entry and method.
func Plan(entry inventory.SoftwareEntry, method Method) (ProcessSpec, error) {
	var cmd Command
	switch method {
	case MethodQuietUninstallString:
		cmd = silentCommand(entry.QuietUninstallString, entry.InstallerType)
	case MethodUninstallString:
		cmd = silentCommand(entry.UninstallString, entry.InstallerType)
	case MethodMsiProductCode:
		switch {
		case entry.ProductCode != "":
			cmd = msiUninstallCommand(entry.ProductCode)
		case entry.UninstallString != "":
			cmd = silentCommand(entry.UninstallString, inventory.InstallerMSI)
		default:
			return ProcessSpec{}, errors.New(msgMissingProductCode)
		}
	case MethodAppxPackage:
		cmd = appxRemoveCommand(entry.PackageFullName)
	case MethodWindowsCapability:
		cmd = capabilityRemoveCommand(entry.PackageFullName)
	default:
		return ProcessSpec{}, errors.New(msgNoMethod)
	}
	return ProcessSpec{Path: cmd.Path, Args: cmd.Args, Elevated: method.Elevated()}, nil
}

// Execute always returns a Result; it never panics past this boundary.
func (x *Executor) Execute(ctx context.Context, entry inventory.SoftwareEntry, method Method) (res Result) {
	start := time.Now()
	res = Result{Entry: entry, Method: method, ExitCode: -1}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.ExitCode = -1
			res.Error = fmt.Sprintf("internal error: %v", p)
		}
		res.Duration = time.Since(start)
		res.CompletedAt = time.Now()
		x.log(res)
	}()

	spec, err := Plan(entry, method)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Command = spec.CommandLine()

	if x.dryRun {
		res.DryRun = true
		res.Success = true
		res.ExitCode = 0
		res.Stdout = res.Command
		return res
	}
	if ctx.Err() != nil {
		res.Cancelled = true
		res.Error = msgCancelled
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	logger.Debugf("Running %s for %s: %s", method, entry.DisplayName(), res.Command)
	out, err := x.runner.Run(runCtx, spec)
	res.Stdout = strings.TrimSpace(out.Stdout)
	res.Stderr = strings.TrimSpace(out.Stderr)

	// a process that exited on its own is judged by its exit code even if
	// ctx ended in the meantime
	if err != nil {
		switch {
		case ctx.Err() != nil:
			res.Cancelled = true
			res.Error = msgCancelled
		case runCtx.Err() == context.DeadlineExceeded:
			res.TimedOut = true
			res.Error = fmt.Sprintf("Uninstall timed out after %s", x.timeout)
		case errors.Is(err, ErrElevationDeclined):
			res.ExitCode = out.ExitCode
			res.Error = msgElevationDeclined
		case errors.Is(err, ErrNotConfirmed):
			res.Error = msgNotConfirmed
		default:
			res.Error = err.Error()
		}
		return res
	}

	res.ExitCode = out.ExitCode
	if IsSuccessExitCode(method, out.ExitCode) {
		res.Success = true
		res.RebootRequired = RebootRequired(out.ExitCode)
		return res
	}
	res.Error = ExitCodeMessage(method, out.ExitCode)
	if res.Stderr != "" {
		res.Error += ": " + firstLine(res.Stderr)
	}
	return res
}

func (x *Executor) log(res Result) {
	entry := logger.WithFields(map[string]interface{}{
		"name":      res.Entry.DisplayName(),
		"method":    res.Method,
		"exit_code": res.ExitCode,
		"duration":  res.Duration.Round(time.Millisecond).String(),
	})
	if res.Success {
		entry.Info("Uninstall succeeded")
		return
	}
	entry.Warnf("Uninstall failed: %s", res.Error)
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
