package uninstall

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"pruneware/logger"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrElevationDeclined is returned when the user dismisses the UAC prompt.
var ErrElevationDeclined = errors.New("elevation declined by user")

// ErrNotConfirmed is returned when a process was started but no handle came
// back to wait on, so its exit code is unknown.
var ErrNotConfirmed = errors.New("uninstaller started but completion could not be confirmed")

// ProcessSpec is one process start request. Args is passed through as the
// raw Windows argument string.
type ProcessSpec struct {
	Path     string
	Args     string
	Elevated bool
}

func (s ProcessSpec) CommandLine() string {
	return Command{Path: s.Path, Args: s.Args}.String()
}

// ProcessOutcome carries the exit code of a finished process. Output is only
// captured when the process ran in our own token; elevated launches through
// the shell report the exit code alone.
type ProcessOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Captured bool
}

// Runner starts a process and waits for it. When ctx ends first the process
// tree is killed and ctx.Err() is returned.
type Runner interface {
	Run(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error)
}

const pipeWaitDelay = 5 * time.Second

// ExecRunner runs processes with os/exec, or through ShellExecuteEx when an
// elevated spec is run from an unelevated token on Windows.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner { return &ExecRunner{} }

func (r *ExecRunner) Run(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error) {
	if spec.Elevated && needsElevation() {
		return runElevated(ctx, spec)
	}

	cmd := newCommand(spec)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay
	if err := cmd.Start(); err != nil {
		return ProcessOutcome{ExitCode: -1}, errors.Wrapf(err, "start %s", spec.Path)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		out := ProcessOutcome{Stdout: stdout.String(), Stderr: stderr.String(), Captured: true}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				out.ExitCode = exitErr.ExitCode()
				return out, nil
			}
			out.ExitCode = -1
			return out, errors.Wrapf(err, "wait %s", spec.Path)
		}
		return out, nil
	case <-ctx.Done():
		if err := killProcessTree(int32(cmd.Process.Pid)); err != nil {
			logger.Warnf("Failed to kill process tree of %s (pid %d): %v", spec.Path, cmd.Process.Pid, err)
		}
		<-done
		return ProcessOutcome{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String(), Captured: true}, ctx.Err()
	}
}

// killProcessTree snapshots the descendants of pid and kills the root first
// so it cannot spawn replacements, then the rest.
func killProcessTree(pid int32) error {
	root, err := process.NewProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "find process %d", pid)
	}
	tree := []*process.Process{root}
	for i := 0; i < len(tree); i++ {
		children, err := tree[i].Children()
		if err != nil {
			continue
		}
		tree = append(tree, children...)
	}
	var firstErr error
	for _, p := range tree {
		if err := p.Kill(); err != nil && firstErr == nil && p.Pid == pid {
			firstErr = errors.Wrapf(err, "kill process %d", p.Pid)
		}
	}
	return firstErr
}
