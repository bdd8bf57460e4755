package led

import (
	"log/slog"
	"sync"
)

// Levels is the brightness of every channel, indexed by Channel.
type Levels [NumChannels]Brightness

// Body returns the body LED levels in Body order.
func (l Levels) Body() []Brightness {
	body := make([]Brightness, len(Body))
	for i, ch := range Body {
		body[i] = l[ch]
	}
	return body
}

// Thruster returns the thruster colour.
func (l Levels) Thruster() RGB {
	return RGB{R: l[ThrusterR], G: l[ThrusterG], B: l[ThrusterB]}
}

// Shadow is a Sink that forwards writes to another sink and remembers the last
// brightness successfully written to each channel.
type Shadow struct {
	sink   Sink
	mu     sync.Mutex
	levels Levels
}

var _ Sink = (*Shadow)(nil)

// NewShadow wraps sink.
func NewShadow(sink Sink) *Shadow {
	return &Shadow{sink: sink}
}

// Write implements Sink.
func (s *Shadow) Write(ch Channel, b Brightness) error {
	b = Clamp(int(b))
	if err := s.sink.Write(ch, b); err != nil {
		return err
	}

	s.mu.Lock()
	s.levels[ch] = b
	s.mu.Unlock()
	return nil
}

// Levels returns a snapshot of the last written levels.
func (s *Shadow) Levels() Levels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

// Noop is a Sink for hosts without PWM hardware. It only logs.
type Noop struct {
	Logger *slog.Logger
}

var _ Sink = Noop{}

// Write implements Sink.
func (n Noop) Write(ch Channel, b Brightness) error {
	if n.Logger != nil {
		n.Logger.Debug("pwm write (no-op)", "channel", ch, "brightness", Clamp(int(b)))
	}
	return nil
}
