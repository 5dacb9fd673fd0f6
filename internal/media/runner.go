package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external tool and returns its stdout. Implementations
// must capture stderr and surface it through the returned error, since both
// ffmpeg and ffprobe report their diagnostics there.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError carries the stderr text of a tool that exited non-zero.
type ExitError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, msg)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type commandRunner struct{}

// NewCommandRunner returns a Runner backed by os/exec.
func NewCommandRunner() Runner {
	return commandRunner{}
}

func (commandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ExitError{Tool: name, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}
