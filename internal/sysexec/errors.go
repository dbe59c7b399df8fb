package sysexec

import (
	"errors"
	"fmt"
)

// BrokerAuthExitCode is the exit code reserved by the elevation broker for
// a cancelled or failed authentication. It must not be conflated with a
// generic tool failure.
const BrokerAuthExitCode = 126

// ErrAuthCancelled is returned when a broker-wrapped invocation exits with
// BrokerAuthExitCode, meaning the user dismissed or failed the
// authentication prompt.
var ErrAuthCancelled = errors.New("authentication cancelled or failed")

// ToolError is returned when an external tool ran but exited non-zero.
// Output carries the captured error stream, falling back to stdout when
// the tool wrote its diagnostics there.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, e.Output)
}

// StartError is returned when the tool process could not be launched at
// all (binary missing, broker unreachable). It is distinct from a tool
// that ran and failed.
type StartError struct {
	Tool string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Tool, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
