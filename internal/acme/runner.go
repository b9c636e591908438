package acme

import (
	"context"
	"errors"
	"os/exec"
)

// execRunner runs commands through os/exec.
type execRunner struct{}

// NewExecRunner creates the production CommandRunner.
func NewExecRunner() CommandRunner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()

	if err == nil {
		return output, 0, nil
	}

	// A non-zero exit still carries output worth classifying; only report
	// an error for failures to run the binary at all or a killed process.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return output, exitErr.ExitCode(), nil
	}

	return output, -1, err
}
