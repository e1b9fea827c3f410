package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const stderrTailRunes = 300

// CmdRunner runs an external command and returns its stdout.
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is a non-zero exit, carrying the head of stderr.
type CommandError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited %d", e.Name, e.ExitCode)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Name, e.ExitCode, e.Stderr)
}

// ExecRunner implements CmdRunner with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a CmdRunner backed by real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args. A non-zero exit is reported as *CommandError.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &CommandError{
			Name:     name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   TruncateRunes(strings.TrimSpace(stderr.String()), stderrTailRunes, "..."),
		}
	}
	return nil, fmt.Errorf("%s: %w", name, err)
}
