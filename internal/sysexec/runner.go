// Package sysexec runs external system tools with per-invocation
// timeouts and optional privilege elevation through a broker.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/open-imaging/mediaprep/internal/log"
)

// Cmd describes a single external tool invocation.
type Cmd struct {
	// Name is the tool binary
	Name string
	// Args are the tool arguments
	Args []string
	// Stdin is fed to the tool's standard input when non-empty
	Stdin string
	// Timeout bounds the whole invocation; zero means no timeout
	Timeout time.Duration
	// Elevate wraps the invocation with the broker when the process is
	// not already privileged
	Elevate bool
}

// Result carries the captured streams and exit status of an invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ErrorOutput returns the captured error stream, falling back to stdout.
func (r Result) ErrorOutput() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes external commands. It is an interface so tests can
// substitute a fake without touching real devices.
type Runner interface {
	Run(c Cmd) (Result, error)
}

// ExecRunner is the os/exec backed Runner used in production.
type ExecRunner struct {
	elevator *Elevator
}

// NewExecRunner creates an ExecRunner using the given elevator.
func NewExecRunner(elevator *Elevator) *ExecRunner {
	return &ExecRunner{elevator: elevator}
}

// Run executes the command, blocking until it finishes or times out.
func (r *ExecRunner) Run(c Cmd) (Result, error) {
	name, args := c.Name, c.Args
	elevated := false
	if c.Elevate {
		name, args, elevated = r.elevator.Wrap(c.Name, c.Args)
	}

	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	log.Debug("running command", "argv", append([]string{name}, args...), "elevated", elevated)

	cmd := exec.CommandContext(ctx, name, args...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%s timed out after %s: %w", c.Name, c.Timeout, context.DeadlineExceeded)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if elevated && res.ExitCode == BrokerAuthExitCode {
			return res, fmt.Errorf("%s: %w", c.Name, ErrAuthCancelled)
		}
		return res, &ToolError{Tool: c.Name, ExitCode: res.ExitCode, Output: res.ErrorOutput()}
	}

	return res, &StartError{Tool: name, Err: err}
}
