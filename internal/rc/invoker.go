// Package rc launches the external resource compiler.
package rc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/cryexport/internal/logger"
	"github.com/Faultbox/cryexport/pkg/encoding"
)

// outputTailSize bounds how much compiler output a handle keeps.
const outputTailSize = 16 << 10

// pipeGrace is how long Wait keeps draining output after the compiler has
// exited or been killed. Children that inherited the output pipe do not
// hold Wait past it.
const pipeGrace = 2 * time.Second

// Process is one launched compiler invocation.
type Process interface {
	// Wait blocks until the process exits. Only the first call waits;
	// later calls return the same result.
	Wait() error
	Pid() int
}

// Invoker starts compiler processes without waiting for them.
type Invoker interface {
	Invoke(ctx context.Context, executable string, target Target, flags []string) (Process, error)
}

// BuildArgs returns the compiler argument list: flags first, targets last.
func BuildArgs(target Target, flags []string) []string {
	args := make([]string, 0, len(flags)+target.Len())
	args = append(args, flags...)
	return append(args, target.paths...)
}

// ExecInvoker starts the compiler with os/exec.
type ExecInvoker struct {
	// Timeout bounds each invocation; zero waits forever.
	Timeout time.Duration

	// Codec decodes compiler output written in a legacy code page.
	Codec encoding.Codec

	log *zap.Logger
}

// NewExecInvoker creates an invoker with the given per-invocation timeout.
func NewExecInvoker(timeout time.Duration, log *zap.Logger) *ExecInvoker {
	return &ExecInvoker{Timeout: timeout, log: logger.OrNop(log)}
}

// Invoke starts executable with flags followed by the target paths.
// A process that cannot be started yields ErrCompilerUnavailable.
func (i *ExecInvoker) Invoke(ctx context.Context, executable string, target Target, flags []string) (Process, error) {
	args := BuildArgs(target, flags)
	if target.Len() == 0 {
		return nil, fmt.Errorf("rc: invocation of %s has no target files", executable)
	}
	if strings.TrimSpace(executable) == "" {
		return nil, &InvocationError{
			Kind:     ErrCompilerUnavailable,
			Args:     args,
			ExitCode: -1,
			Err:      errors.New("compiler path is not configured"),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &InvocationError{
			Kind:       ErrCompilerExecutionFailed,
			Executable: executable,
			Args:       args,
			ExitCode:   -1,
			Err:        err,
		}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if i.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, i.Timeout)
	}

	out := &tailBuffer{max: outputTailSize}
	cmd := exec.CommandContext(runCtx, executable, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = pipeGrace

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &InvocationError{
			Kind:       ErrCompilerUnavailable,
			Executable: executable,
			Args:       args,
			ExitCode:   -1,
			Err:        err,
		}
	}

	i.log.Debug("compiler started",
		zap.String("cmd", executable),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &ProcessHandle{
		cmd:    cmd,
		ctx:    runCtx,
		cancel: cancel,
		out:    out,
		codec:  i.Codec,
		args:   args,
	}, nil
}

// ProcessHandle owns one started compiler process until it is waited on.
type ProcessHandle struct {
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
	out    *tailBuffer
	codec  encoding.Codec
	args   []string

	once sync.Once
	err  error
}

// Pid returns the OS process id.
func (p *ProcessHandle) Pid() int {
	return p.cmd.Process.Pid
}

// Wait waits for the process exactly once and maps failures to
// ErrCompilerExecutionFailed.
func (p *ProcessHandle) Wait() error {
	p.once.Do(func() {
		defer p.cancel()

		err := p.cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			// Clean exit; only a leftover child kept the output pipe open.
			err = nil
		}
		if err == nil {
			return
		}

		ie := &InvocationError{
			Kind:       ErrCompilerExecutionFailed,
			Executable: p.cmd.Path,
			Args:       p.args,
			ExitCode:   -1,
			Output:     p.Output(),
			Err:        err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ie.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			ie.Err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		p.err = ie
	})
	return p.err
}

// Output returns the tail of the combined stdout and stderr.
func (p *ProcessHandle) Output() string {
	return p.codec.DecodeIfNeeded(p.out.Bytes())
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Run invokes the compiler and waits for it to exit.
func Run(ctx context.Context, inv Invoker, executable string, target Target, flags []string) error {
	proc, err := inv.Invoke(ctx, executable, target, flags)
	if err != nil {
		return err
	}
	return proc.Wait()
}
