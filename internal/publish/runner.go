package publish

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Output is what a finished process produced.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a command to completion.
// A non-zero exit is reported in Output.ExitCode, not as an error; the error
// is reserved for processes that could not run at all or were killed.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args []string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // cargo binary comes from config
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, nil
	}
	if err != nil {
		out.ExitCode = -1
	}
	return out, err
}
