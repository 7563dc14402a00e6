// Package dispatch starts texture and scene conversions as background tasks
// so the export flow never blocks on the compiler.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/logger"
	"github.com/Faultbox/cryexport/internal/rc"
	"github.com/Faultbox/cryexport/internal/scene"
	"github.com/Faultbox/cryexport/internal/texture"
	"github.com/Faultbox/cryexport/internal/workspace"
	"github.com/Faultbox/cryexport/pkg/encoding"
)

// Kind identifies a conversion.
type Kind string

const (
	KindTexture Kind = "texture"
	KindScene   Kind = "scene"
)

// Outcome is what a finished task reports to the observer. Exactly one of
// Texture and Scene is set unless the task panicked.
type Outcome struct {
	Kind    Kind
	Texture *texture.Report
	Scene   *scene.Report
	Panic   any
}

// Observer is called once per finished task, from the task's goroutine.
type Observer func(Outcome)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInvoker replaces the process-spawning compiler invoker.
func WithInvoker(inv rc.Invoker) Option {
	return func(d *Dispatcher) { d.invoker = inv }
}

// WithObserver registers a completion callback.
func WithObserver(obs Observer) Option {
	return func(d *Dispatcher) { d.observer = obs }
}

// WithLocks shares a path lock registry between dispatchers.
func WithLocks(locks *workspace.Locks) Option {
	return func(d *Dispatcher) { d.locks = locks }
}

// Dispatcher launches conversions. Each task works on its own copy of the
// settings snapshot it was dispatched with.
type Dispatcher struct {
	cfg      config.Conversion
	log      *zap.Logger
	invoker  rc.Invoker
	observer Observer
	locks    *workspace.Locks

	tasks sync.WaitGroup

	// detached counts scene converters that may still own background
	// recompile processes.
	detached sync.WaitGroup
}

// New creates a dispatcher for the given settings.
func New(cfg config.Conversion, log *zap.Logger, opts ...Option) *Dispatcher {
	log = logger.OrNop(log)
	d := &Dispatcher{
		cfg:   cfg.Clone(),
		log:   log,
		locks: workspace.NewLocks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.invoker == nil {
		inv := rc.NewExecInvoker(d.cfg.Timeout, log.Named("rc"))
		codec, err := encoding.Lookup(d.cfg.OutputEncoding)
		if err != nil {
			log.Warn("compiler output will not be decoded", zap.Error(err))
		}
		inv.Codec = codec
		d.invoker = inv
	}
	return d
}

// Task is a running conversion. Callers may ignore it.
type Task struct {
	kind Kind
	done chan struct{}
}

// Kind returns the conversion kind.
func (t *Task) Kind() Kind { return t.kind }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task has finished.
func (t *Task) Wait() { <-t.done }

// DispatchTexture starts a texture conversion. It returns nil and starts
// nothing when texture conversion is disabled.
func (d *Dispatcher) DispatchTexture(ctx context.Context, images []texture.Image) *Task {
	if !d.cfg.Options.DoTextures {
		d.log.Debug("texture conversion disabled, not dispatching", zap.Int("images", len(images)))
		return nil
	}

	cfg := d.cfg.Clone()
	images = append([]texture.Image(nil), images...)
	conv := texture.NewConverter(cfg, d.invoker, d.locks, d.log.Named("texture"))

	return d.start(KindTexture, func() Outcome {
		report := conv.Convert(ctx, images)
		return Outcome{Kind: KindTexture, Texture: &report}
	})
}

// DispatchScene starts a scene conversion.
func (d *Dispatcher) DispatchScene(ctx context.Context, doc scene.Document) *Task {
	cfg := d.cfg.Clone()
	conv := scene.NewConverter(cfg, d.invoker, d.locks, d.log.Named("scene"))

	return d.start(KindScene, func() Outcome {
		defer d.reapDetached(conv)

		report := conv.Convert(ctx, doc)
		return Outcome{Kind: KindScene, Scene: &report}
	})
}

// reapDetached hands conv's background recompiles to the dispatcher. The
// converter is dropped once they have exited. It runs before the task is
// marked done so WaitDetached cannot miss it.
func (d *Dispatcher) reapDetached(conv *scene.Converter) {
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()
		conv.WaitDetached()
	}()
}

func (d *Dispatcher) start(kind Kind, run func() Outcome) *Task {
	t := &Task{kind: kind, done: make(chan struct{})}
	d.tasks.Add(1)

	go func() {
		defer d.tasks.Done()
		defer close(t.done)

		outcome := d.protect(kind, run)
		if d.observer != nil {
			d.observer(outcome)
		}
	}()

	d.log.Debug("conversion dispatched", zap.String("kind", string(kind)))
	return t
}

// protect runs a task and turns a panic into a logged outcome.
func (d *Dispatcher) protect(kind Kind, run func() Outcome) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("conversion task panicked",
				zap.String("kind", string(kind)),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = Outcome{Kind: kind, Panic: r}
		}
	}()
	return run()
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() {
	d.tasks.Wait()
}

// WaitDetached blocks until background recompile processes left running by
// finished scene tasks have exited.
func (d *Dispatcher) WaitDetached() {
	d.tasks.Wait()
	d.detached.Wait()
}
