package rc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCompilerUnavailable is returned when the compiler cannot be started:
// no path configured, binary missing, or permission denied.
var ErrCompilerUnavailable = errors.New("resource compiler unavailable")

// ErrCompilerExecutionFailed is returned when a started compiler exits
// non-zero, is killed, or runs past its timeout.
var ErrCompilerExecutionFailed = errors.New("resource compiler execution failed")

// InvocationError describes one failed compiler invocation.
type InvocationError struct {
	Kind       error // ErrCompilerUnavailable or ErrCompilerExecutionFailed
	Executable string
	Args       []string
	ExitCode   int
	Output     string // tail of combined stdout/stderr
	Err        error
}

// Error formats invocation failures for logs.
func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Executable != "" {
		fmt.Fprintf(&b, " (cmd=%s", e.Executable)
		if errors.Is(e.Kind, ErrCompilerExecutionFailed) {
			fmt.Fprintf(&b, " exit=%d", e.ExitCode)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the category sentinel and the OS cause to errors.Is / errors.As.
func (e *InvocationError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
