// Package animation implements the lighting modes. Every routine writes frames
// to a sink until it finishes or its context is canceled; cancellation is
// observed at the sleeps between frames, so a routine never stops halfway
// through a write. A canceled routine leaves the LEDs at their last level.
package animation

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"libdb.so/barbatos/internal/clock"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/thruster"
)

const (
	// StartupStagger delays each channel's fade by its index times this.
	StartupStagger = 15 * time.Millisecond
	// StartupStep is the brightness increment of a startup fade.
	StartupStep = 5
	// StartupStepDelay is the delay between startup fade steps.
	StartupStepDelay = 10 * time.Millisecond

	// StaticBrightness is the body brightness in static mode.
	StaticBrightness led.Brightness = 200
	// StaticIdle is how long static mode sleeps between cancellation checks.
	StaticIdle = time.Second

	// BreatheStep is the phase advance per breathing tick, in degrees.
	BreatheStep = 3
	// BreatheDelay is the delay after each breathing tick.
	BreatheDelay = 20 * time.Millisecond

	// FlickerMin and FlickerMax bound the random flicker brightness.
	FlickerMin = 50
	FlickerMax = 200
	// FlickerDelay is the delay after each flicker tick.
	FlickerDelay = 50 * time.Millisecond
)

// Env is everything a routine needs to run.
type Env struct {
	Sink   led.Sink
	Clock  clock.Clock
	Rand   *rand.Rand
	Logger *slog.Logger
	State  *State
}

// Routine is a running animation. It returns nil only if the animation ran to
// completion, ctx.Err() if it was canceled, and the sink error otherwise.
type Routine func(ctx context.Context, env *Env) error

// RunStartup fades every channel up and back down, each channel starting
// StartupStagger after the previous one. It returns once all fades have
// stopped.
func RunStartup(ctx context.Context, env *Env) error {
	env.State.begin(Startup, env.Clock.Now())

	g, ctx := errgroup.WithContext(ctx)
	for i, ch := range led.Channels {
		delay := time.Duration(i) * StartupStagger
		g.Go(func() error {
			return fade(ctx, env, ch, delay)
		})
	}

	return g.Wait()
}

func fade(ctx context.Context, env *Env, ch led.Channel, delay time.Duration) error {
	if err := env.Clock.Sleep(ctx, delay); err != nil {
		return err
	}

	for b := 0; b <= int(led.MaxBrightness); b += StartupStep {
		if err := step(ctx, env, ch, led.Brightness(b)); err != nil {
			return err
		}
	}
	for b := int(led.MaxBrightness); b >= 0; b -= StartupStep {
		if err := step(ctx, env, ch, led.Brightness(b)); err != nil {
			return err
		}
	}

	return nil
}

func step(ctx context.Context, env *Env, ch led.Channel, b led.Brightness) error {
	if err := env.Sink.Write(ch, b); err != nil {
		return err
	}
	return env.Clock.Sleep(ctx, StartupStepDelay)
}

// RunStatic lights the body at a fixed brightness and the thruster blue once,
// then idles without writing until canceled.
func RunStatic(ctx context.Context, env *Env) error {
	env.State.begin(Static, env.Clock.Now())

	for _, ch := range led.Body {
		if err := env.Sink.Write(ch, StaticBrightness); err != nil {
			return err
		}
	}
	if err := led.WriteRGB(env.Sink, thruster.Blue); err != nil {
		return err
	}

	for {
		if err := env.Clock.Sleep(ctx, StaticIdle); err != nil {
			return err
		}
	}
}

// breatheLevel maps a phase angle in degrees onto [0, 255].
func breatheLevel(angle int) led.Brightness {
	rad := float64(angle) * math.Pi / 180
	return led.Clamp(int((math.Sin(rad) + 1) * 127.5))
}

// RunBreathe fades each body LED along a sine wave from its own random phase.
// Every tick also plays one thruster pulse.
func RunBreathe(ctx context.Context, env *Env) error {
	env.State.begin(Breathe, env.Clock.Now())

	angles := make([]int, len(led.Body))
	for i := range angles {
		angles[i] = env.Rand.IntN(360)
	}

	for {
		for i, ch := range led.Body {
			if err := env.Sink.Write(ch, breatheLevel(angles[i])); err != nil {
				return err
			}
			angles[i] = (angles[i] + BreatheStep) % 360
		}

		if err := playThruster(ctx, env); err != nil {
			return err
		}
		if err := env.Clock.Sleep(ctx, BreatheDelay); err != nil {
			return err
		}
	}
}

// RunFlicker sets every body LED to a random brightness each tick, then plays
// one thruster pulse.
func RunFlicker(ctx context.Context, env *Env) error {
	env.State.begin(Flicker, env.Clock.Now())

	for {
		for _, ch := range led.Body {
			b := led.Brightness(FlickerMin + env.Rand.IntN(FlickerMax-FlickerMin+1))
			if err := env.Sink.Write(ch, b); err != nil {
				return err
			}
		}

		if err := env.Clock.Sleep(ctx, FlickerDelay); err != nil {
			return err
		}
		if err := playThruster(ctx, env); err != nil {
			return err
		}
	}
}

// RunAmbient only drives the thruster, rotating palettes. It is the standing
// driver that runs after boot until a mode is chosen.
func RunAmbient(ctx context.Context, env *Env) error {
	for {
		if err := playThruster(ctx, env); err != nil {
			return err
		}
	}
}

func playThruster(ctx context.Context, env *Env) error {
	p := env.State.palette(env.Clock.Now())
	return thruster.Play(ctx, env.Sink, env.Clock, p.Sequence(env.Rand))
}
