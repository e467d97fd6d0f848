//go:build windows
// +build windows

package uninstall

import (
	"context"
	"os/exec"
	"syscall"
	"time"
	"unsafe"

	"pruneware/logger"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const elevatedPollInterval = 200 * time.Millisecond

func newCommand(spec ProcessSpec) *exec.Cmd {
	cmd := exec.Command(spec.Path)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
		CmdLine:    spec.CommandLine(),
	}
	return cmd
}

func needsElevation() bool {
	return !windows.GetCurrentProcessToken().IsElevated()
}

// runElevated starts the process with the "runas" verb. The shell gives us a
// process handle but no pipes, so output is never captured on this path.
func runElevated(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error) {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return ProcessOutcome{ExitCode: -1}, err
	}
	file, err := windows.UTF16PtrFromString(spec.Path)
	if err != nil {
		return ProcessOutcome{ExitCode: -1}, errors.Wrap(err, "encode path")
	}
	var params *uint16
	if spec.Args != "" {
		if params, err = windows.UTF16PtrFromString(spec.Args); err != nil {
			return ProcessOutcome{ExitCode: -1}, errors.Wrap(err, "encode arguments")
		}
	}

	info := &windows.SHELLEXECUTEINFO{
		Mask:       windows.SEE_MASK_NOCLOSEPROCESS | windows.SEE_MASK_FLAG_NO_UI,
		Verb:       verb,
		File:       file,
		Parameters: params,
		Show:       windows.SW_HIDE,
	}
	info.Size = uint32(unsafe.Sizeof(*info))
	if err := windows.ShellExecuteEx(info); err != nil {
		if errors.Is(err, windows.ERROR_CANCELLED) {
			return ProcessOutcome{ExitCode: int(windows.ERROR_CANCELLED)}, ErrElevationDeclined
		}
		return ProcessOutcome{ExitCode: -1}, errors.Wrapf(err, "start elevated %s", spec.Path)
	}
	if info.Process == 0 {
		// the shell handed the request to an existing process
		return ProcessOutcome{ExitCode: -1}, ErrNotConfirmed
	}
	h := info.Process
	defer windows.CloseHandle(h)

	for {
		event, err := windows.WaitForSingleObject(h, uint32(elevatedPollInterval/time.Millisecond))
		if err != nil {
			return ProcessOutcome{ExitCode: -1}, errors.Wrap(err, "wait for elevated process")
		}
		if event == windows.WAIT_OBJECT_0 {
			break
		}
		if ctx.Err() != nil {
			terminateElevated(h)
			return ProcessOutcome{ExitCode: -1}, ctx.Err()
		}
	}

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return ProcessOutcome{ExitCode: -1}, errors.Wrap(err, "read exit code")
	}
	return ProcessOutcome{ExitCode: int(int32(code))}, nil
}

func terminateElevated(h windows.Handle) {
	pid, err := windows.GetProcessId(h)
	if err == nil {
		if err := killProcessTree(int32(pid)); err == nil {
			return
		}
	}
	if err := windows.TerminateProcess(h, 1); err != nil {
		logger.Warnf("Failed to terminate elevated process: %v", err)
	}
}
