// Package thruster computes the colour sequences played on the RGB thruster
// LED.
package thruster

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"time"

	"libdb.so/barbatos/internal/clock"
	"libdb.so/barbatos/internal/led"
)

// DefaultColorDuration is how long a palette is kept before rotating.
const DefaultColorDuration = 5 * time.Second

const (
	// PulseDelay is the delay between frames of a colour pulse.
	PulseDelay = 1500 * time.Microsecond
	// FlameDelay is the delay between frames of a flame pulse.
	FlameDelay = 2 * time.Millisecond
)

var (
	Blue = led.RGB{R: 0, G: 0, B: 255}
	Red  = led.RGB{R: 255, G: 0, B: 0}
)

// Palette is a recurring thruster colour behaviour.
type Palette uint8

const (
	PaletteBlue Palette = iota
	PaletteRed
	PaletteFlame
	numPalettes
)

// String returns the palette name.
func (p Palette) String() string {
	switch p {
	case PaletteBlue:
		return "blue"
	case PaletteRed:
		return "red"
	case PaletteFlame:
		return "flame"
	default:
		return fmt.Sprintf("Palette(%d)", p)
	}
}

// Next returns the palette after p: blue, red, flame, then blue again.
func (p Palette) Next() Palette {
	return (p + 1) % numPalettes
}

// Sequence returns one pulse of the palette.
func (p Palette) Sequence(rng *rand.Rand) iter.Seq[Frame] {
	switch p {
	case PaletteRed:
		return Pulse(Red)
	case PaletteFlame:
		return PulseFlame(rng)
	default:
		return Pulse(Blue)
	}
}

// Rotation tracks the active palette and when it last changed.
type Rotation struct {
	Palette    Palette
	LastChange time.Time
	Duration   time.Duration
}

// Tick advances the palette by one step if more than Duration has elapsed
// since the last change. It reports whether the palette changed.
func (r *Rotation) Tick(now time.Time) bool {
	if now.Sub(r.LastChange) <= r.Duration {
		return false
	}
	r.Palette = r.Palette.Next()
	r.LastChange = now
	return true
}

// Frame is one thruster colour held for Delay.
type Frame struct {
	Color led.RGB
	Delay time.Duration
}

// ramp yields the brightness scale of each frame: up from 0 in steps of 10,
// then down from 255 to just above 100 in steps of 10. It never returns to
// zero so consecutive pulses throb rather than blink.
func ramp(yield func(float64) bool) {
	for i := 0; i <= 255; i += 10 {
		if !yield(float64(i) / 255) {
			return
		}
	}
	for i := 255; i > 100; i -= 10 {
		if !yield(float64(i) / 255) {
			return
		}
	}
}

// Pulse returns the frames of a pulse of colour c.
func Pulse(c led.RGB) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for scale := range ramp {
			if !yield(Frame{Color: c.Scale(scale), Delay: PulseDelay}) {
				return
			}
		}
	}
}

// PulseFlame returns the frames of a flickering flame pulse. Red is fixed,
// green and blue are redrawn from rng every frame.
func PulseFlame(rng *rand.Rand) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for scale := range ramp {
			c := led.RGB{
				R: 255,
				G: led.Brightness(100 + rng.IntN(81)),
				B: led.Brightness(rng.IntN(51)),
			}
			if !yield(Frame{Color: c.Scale(scale), Delay: FlameDelay}) {
				return
			}
		}
	}
}

// Play writes every frame of seq to the thruster channels. Cancellation is
// observed between frames, never in the middle of one.
func Play(ctx context.Context, sink led.Sink, clk clock.Clock, seq iter.Seq[Frame]) error {
	for f := range seq {
		if err := led.WriteRGB(sink, f.Color); err != nil {
			return err
		}
		if err := clk.Sleep(ctx, f.Delay); err != nil {
			return err
		}
	}
	return nil
}
