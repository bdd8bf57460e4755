// Package controller owns the currently running animation and switches
// between lighting modes.
//
// At most one animation runs at any time. Switching cancels the running
// animation and waits for it, including any goroutines it spawned, before
// the next one starts, so two animations never write to the LEDs at once.
package controller

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"libdb.so/barbatos/internal/animation"
	"libdb.so/barbatos/internal/clock"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/metrics"
	"libdb.so/barbatos/internal/thruster"
)

var (
	// ErrFaulted is returned by Switch after an animation failed to write to
	// the sink. The process must be restarted.
	ErrFaulted = errors.New("controller faulted")
	// ErrClosed is returned by Switch after Run has returned.
	ErrClosed = errors.New("controller closed")
)

// Options configures a Controller.
type Options struct {
	Sink   led.Sink
	Logger *slog.Logger
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Rand defaults to a randomly seeded source.
	Rand *rand.Rand
	// ColorDuration defaults to thruster.DefaultColorDuration.
	ColorDuration time.Duration
}

// Controller runs one animation at a time.
type Controller struct {
	env    animation.Env
	logger *slog.Logger

	// switching admits one switch at a time.
	switching *semaphore.Weighted
	faults    chan error

	mu     sync.Mutex
	mode   animation.Mode
	active *handle
	fault  error
	closed bool
}

// handle is the running animation.
type handle struct {
	mode    animation.Mode
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.ColorDuration == 0 {
		opts.ColorDuration = thruster.DefaultColorDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		env: animation.Env{
			Sink:   opts.Sink,
			Clock:  opts.Clock,
			Rand:   opts.Rand,
			Logger: opts.Logger,
			State:  animation.NewState(opts.ColorDuration, opts.Clock.Now()),
		},
		logger:    opts.Logger,
		switching: semaphore.NewWeighted(1),
		faults:    make(chan error, 1),
	}
}

// Run boots into startup mode and blocks until ctx is canceled or an
// animation fails. When boot startup finishes on its own, the thruster keeps
// rotating palettes until a mode is chosen. Before returning, Run stops the
// running animation and waits for it.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.switching.Acquire(ctx, 1); err != nil {
		return err
	}
	// A mode may have been switched to before Run was called.
	c.stop()
	c.start(animation.Startup, c.bootRoutine)
	c.switching.Release(1)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-c.faults:
	}

	c.shutdown()
	return err
}

func (c *Controller) shutdown() {
	// Wait out any switch in flight.
	c.switching.Acquire(context.Background(), 1)
	defer c.switching.Release(1)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.logger.Debug("controller stopped")
}

// Switch cancels the running animation, waits for it to stop and starts the
// animation for mode. Concurrent calls are serialized; ctx only bounds the
// wait for a turn.
func (c *Controller) Switch(ctx context.Context, mode animation.Mode) error {
	routine := routineFor(mode)
	if routine == nil {
		return errors.Wrapf(animation.ErrUnknownMode, "%s", mode)
	}

	if err := c.switching.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "failed waiting for previous switch")
	}
	defer c.switching.Release(1)

	c.mu.Lock()
	fault, closed := c.fault, c.closed
	c.mu.Unlock()

	switch {
	case fault != nil:
		return errors.Wrapf(ErrFaulted, "%v", fault)
	case closed:
		return ErrClosed
	}

	start := time.Now()
	c.stop()
	c.start(mode, routine)
	metrics.RecordSwitch(mode.String(), time.Since(start).Seconds())

	c.logger.Info(
		"switched mode",
		"mode", mode,
		"took", time.Since(start))

	return nil
}

// routineFor maps a mode onto its animation.
func routineFor(mode animation.Mode) animation.Routine {
	switch mode {
	case animation.Startup:
		return animation.RunStartup
	case animation.Static:
		return animation.RunStatic
	case animation.Breathe:
		return animation.RunBreathe
	case animation.Flicker:
		return animation.RunFlicker
	default:
		return nil
	}
}

// bootRoutine is startup followed by the standing thruster driver. Any
// explicit Switch cancels both.
func (c *Controller) bootRoutine(ctx context.Context, env *animation.Env) error {
	if err := animation.RunStartup(ctx, env); err != nil {
		return err
	}
	c.logger.Debug("startup finished, handing thruster to the ambient driver")
	return animation.RunAmbient(ctx, env)
}

// stop cancels the active animation and blocks until it has returned. The
// caller must hold the switching semaphore.
func (c *Controller) stop() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()

	if h == nil {
		return
	}

	h.cancel()
	<-h.done

	c.logger.Debug(
		"animation stopped",
		"mode", h.mode,
		"ran_for", time.Since(h.started))
}

// start launches routine as the active animation. The caller must hold the
// switching semaphore and must have stopped the previous animation.
func (c *Controller) start(mode animation.Mode, routine animation.Routine) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		mode:    mode,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.mode = mode
	c.active = h
	c.mu.Unlock()

	metrics.SetActiveMode(modeNames(), mode.String())
	go c.run(ctx, h, routine)
}

func (c *Controller) run(ctx context.Context, h *handle, routine animation.Routine) {
	defer close(h.done)
	defer h.cancel()

	err := routine(ctx, &c.env)

	switch {
	case err == nil:
		c.logger.Info("animation finished", "mode", h.mode)
		c.release(h)

	case errors.Is(err, context.Canceled):
		// Switched away or shutting down.

	default:
		c.logger.Error(
			"animation aborted",
			"mode", h.mode,
			"error", err)

		if led.IsTransportError(err) {
			metrics.RecordTransportError()
		}

		c.mu.Lock()
		c.fault = err
		c.mu.Unlock()
		c.release(h)

		select {
		case c.faults <- err:
		default:
		}
	}
}

// release drops h as the active animation if it still is, leaving the
// controller idle.
func (c *Controller) release(h *handle) {
	c.mu.Lock()
	idle := c.active == h
	if idle {
		c.active = nil
	}
	c.mu.Unlock()

	if idle {
		metrics.SetActiveMode(modeNames(), "")
	}
}

func modeNames() []string {
	names := make([]string, len(animation.Modes))
	for i, m := range animation.Modes {
		names[i] = m.String()
	}
	return names
}

// Status is a snapshot of the controller.
type Status struct {
	// Mode is the most recently started mode.
	Mode animation.Mode
	// Running is false once the animation finished or faulted.
	Running bool
	Palette thruster.Palette
	// Fault is the error that stopped the controller, if any.
	Fault error
}

// Status returns the current state.
func (c *Controller) Status() Status {
	_, palette := c.env.State.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Mode:    c.mode,
		Running: c.active != nil,
		Palette: palette,
		Fault:   c.fault,
	}
}
