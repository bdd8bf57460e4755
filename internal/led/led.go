// Package led describes the LED channels of the model kit and the sink
// interface that PWM drivers implement.
package led

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Channel is a named LED position. Its value is the position in Channels and
// doubles as the default physical output index.
type Channel uint8

const (
	Head Channel = iota
	Chest
	ShoulderL
	ShoulderR
	KneeL
	KneeR
	ThrusterR
	ThrusterG
	ThrusterB
	numChannels
)

// NumChannels is the number of logical channels.
const NumChannels = int(numChannels)

// Channels lists every channel in the fixed order used for writes and for
// staggering the startup fades.
var Channels = [NumChannels]Channel{
	Head, Chest, ShoulderL, ShoulderR, KneeL, KneeR,
	ThrusterR, ThrusterG, ThrusterB,
}

// Body lists the six body LEDs.
var Body = []Channel{Head, Chest, ShoulderL, ShoulderR, KneeL, KneeR}

// Thruster lists the red, green and blue thruster channels.
var Thruster = [3]Channel{ThrusterR, ThrusterG, ThrusterB}

var channelNames = [NumChannels]string{
	"head", "chest", "shoulderL", "shoulderR", "kneeL", "kneeR",
	"thrusterR", "thrusterG", "thrusterB",
}

// String returns the channel name.
func (c Channel) String() string {
	if int(c) < NumChannels {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", c)
}

// ParseChannel returns the channel with the given name.
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Brightness is an 8-bit LED brightness. Values outside [0, 255] are clamped
// by sinks before conversion.
type Brightness int

// MaxBrightness is the brightest value.
const MaxBrightness Brightness = 255

// Clamp clamps v into [0, 255].
func Clamp(v int) Brightness {
	switch {
	case v < 0:
		return 0
	case v > int(MaxBrightness):
		return MaxBrightness
	default:
		return Brightness(v)
	}
}

// Duty converts a brightness into a duty cycle in [0, maxDuty]. The mapping is
// inverted for common-anode wiring: brightness 0 is the maximum duty.
func Duty(b Brightness, maxDuty uint32) uint32 {
	b = Clamp(int(b))
	return uint32(MaxBrightness-b) * maxDuty / uint32(MaxBrightness)
}

// RGB is a thruster colour.
type RGB struct {
	R, G, B Brightness
}

// Scale scales each component by s and rounds to the nearest integer.
func (c RGB) Scale(s float64) RGB {
	return RGB{
		R: Brightness(math.Round(float64(c.R) * s)),
		G: Brightness(math.Round(float64(c.G) * s)),
		B: Brightness(math.Round(float64(c.B) * s)),
	}
}

// Sink is a PWM output that accepts per-channel brightness writes.
// Implementations clamp the brightness and wrap transport failures in a
// *TransportError.
type Sink interface {
	Write(ch Channel, b Brightness) error
}

// WriteRGB writes c to the thruster channels in red, green, blue order. It
// stops at the first error.
func WriteRGB(sink Sink, c RGB) error {
	vals := [3]Brightness{c.R, c.G, c.B}
	for i, ch := range Thruster {
		if err := sink.Write(ch, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// TransportError is returned by sinks when the underlying bus fails. It is not
// retried.
type TransportError struct {
	Channel Channel
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on channel %s: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError returns true if err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
