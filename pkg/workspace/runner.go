package workspace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandError reports a verification step that exited non-zero, timed out,
// or failed to start, carrying the captured output for diagnostics.
type CommandError struct {
	Step     string
	Command  string
	Output   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("workspace: %s step timed out: %s", e.Step, e.Command)
	}
	return fmt.Sprintf("workspace: %s step failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// RunStep executes one named verification command inside dir with a hard
// wall-clock timeout, after which the process is killed. An empty command
// is a no-op so optional steps can be left unconfigured.
func RunStep(ctx context.Context, dir, step, command string, timeout time.Duration) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	parts := strings.Fields(command)

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, parts[0], parts[1:]...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{
			Step:     step,
			Command:  command,
			Output:   string(output),
			TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
	}
	return nil
}
