// Package rctest provides a recording rc.Invoker for tests.
package rctest

import (
	"context"
	"sync"

	"github.com/Faultbox/cryexport/internal/rc"
)

// Call is one recorded invocation.
type Call struct {
	Executable string
	Flags      []string
	Targets    []string
}

// Args returns the argument list the real invoker would pass.
func (c Call) Args() []string {
	return rc.BuildArgs(rc.Sequence(c.Targets...), c.Flags)
}

// Recorder records invocations instead of starting processes.
type Recorder struct {
	// Start decides whether a call starts; a non-nil error is returned from Invoke.
	Start func(c Call) error
	// Exit runs when the process is waited on and returns its result.
	Exit func(c Call) error

	mu        sync.Mutex
	calls     []Call
	active    int
	maxActive int
	waits     int
}

// Invoke records the call and returns a fake process.
func (r *Recorder) Invoke(ctx context.Context, executable string, target rc.Target, flags []string) (rc.Process, error) {
	c := Call{
		Executable: executable,
		Flags:      append([]string(nil), flags...),
		Targets:    target.Paths(),
	}

	if r.Start != nil {
		if err := r.Start(c); err != nil {
			r.mu.Lock()
			r.calls = append(r.calls, c)
			r.mu.Unlock()
			return nil, err
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	pid := len(r.calls)
	r.mu.Unlock()

	return &process{rec: r, call: c, pid: pid}, nil
}

// Calls returns a copy of the recorded calls in invocation order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// MaxActive returns the largest number of started but not yet waited processes.
func (r *Recorder) MaxActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

// Waits returns how many processes were waited on.
func (r *Recorder) Waits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waits
}

type process struct {
	rec  *Recorder
	call Call
	pid  int

	once sync.Once
	err  error
}

func (p *process) Pid() int { return p.pid }

func (p *process) Wait() error {
	p.once.Do(func() {
		if p.rec.Exit != nil {
			p.err = p.rec.Exit(p.call)
		}
		p.rec.mu.Lock()
		p.rec.active--
		p.rec.waits++
		p.rec.mu.Unlock()
	})
	return p.err
}

// Failed returns an execution failure for call c with the given exit code.
func Failed(c Call, code int) error {
	return &rc.InvocationError{
		Kind:       rc.ErrCompilerExecutionFailed,
		Executable: c.Executable,
		Args:       c.Args(),
		ExitCode:   code,
	}
}

// Unavailable returns a start failure for call c.
func Unavailable(c Call) error {
	return &rc.InvocationError{
		Kind:       rc.ErrCompilerUnavailable,
		Executable: c.Executable,
		Args:       c.Args(),
		ExitCode:   -1,
	}
}
