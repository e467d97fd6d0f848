//go:build !windows
// +build !windows

package uninstall

import (
	"context"
	"os/exec"
	"strings"
)

// Outside Windows there is no raw command line; arguments are split on
// whitespace. Only used for development and tests.
func newCommand(spec ProcessSpec) *exec.Cmd {
	return exec.Command(spec.Path, strings.Fields(spec.Args)...)
}

func needsElevation() bool { return false }

func runElevated(ctx context.Context, spec ProcessSpec) (ProcessOutcome, error) {
	return (&ExecRunner{}).Run(ctx, ProcessSpec{Path: spec.Path, Args: spec.Args})
}
