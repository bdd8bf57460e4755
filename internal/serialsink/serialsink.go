// Package serialsink implements an led.Sink that forwards duty writes to the
// PWM bridge firmware over a serial port using the ledserial protocol.
package serialsink

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/ledserial"
)

// MaxOutputs is the number of PWM outputs the bridge firmware exposes, pads
// D0 through D10 of the XIAO RP2040.
const MaxOutputs = 11

// AckTimeout bounds how long a write waits for the bridge to respond.
const AckTimeout = 500 * time.Millisecond

// Sink is a serial-attached PWM bridge.
type Sink struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	closer  io.Closer
	mapping led.Mapping
	logger  *slog.Logger
}

var _ led.Sink = (*Sink)(nil)

// Open opens the serial device and initializes the bridge.
func Open(device string, baud, frequency int, mapping led.Mapping, logger *slog.Logger) (*Sink, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(AckTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	s, err := New(timeoutReader{port}, frequency, mapping, logger)
	if err != nil {
		port.Close()
		return nil, err
	}

	s.closer = port
	return s, nil
}

// New initializes the bridge on an already opened stream.
func New(rw io.ReadWriter, frequency int, mapping led.Mapping, logger *slog.Logger) (*Sink, error) {
	if err := mapping.Validate(MaxOutputs); err != nil {
		return nil, errors.Wrap(err, "invalid channel mapping")
	}

	s := &Sink{
		rw:      rw,
		mapping: mapping,
		logger:  logger,
	}

	logger.Debug("sending initialize packet", "frequency", frequency, "outputs", mapping.Outputs())
	if err := s.roundTrip(ledserial.InitializePacket{
		NumChannels: uint8(mapping.Outputs()),
		Frequency:   uint16(frequency),
	}); err != nil {
		return nil, errors.Wrap(err, "failed to initialize bridge")
	}

	return s, nil
}

// Write implements led.Sink.
func (s *Sink) Write(ch led.Channel, b led.Brightness) error {
	p := ledserial.SetDutyPacket{
		Channel: uint8(s.mapping.Output(ch)),
		Duty:    uint16(led.Duty(b, ledserial.MaxDuty)),
	}

	if err := s.roundTrip(p); err != nil {
		return &led.TransportError{Channel: ch, Err: err}
	}
	return nil
}

// roundTrip writes p and waits for its acknowledgement. Log packets received
// in between are forwarded to the logger.
func (s *Sink) roundTrip(p ledserial.IncomingPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ledserial.WriteIncomingPacket(s.rw, p); err != nil {
		return errors.Wrap(err, "failed to write packet")
	}

	for {
		reply, err := ledserial.ReadOutgoingPacket(s.rw)
		if err != nil {
			return errors.Wrap(err, "failed to read reply")
		}

		switch reply := reply.(type) {
		case ledserial.AckPacket:
			if reply.IncomingPacketType != p.Type() {
				return errors.Errorf("bridge acked %s, want %s", reply.IncomingPacketType, p.Type())
			}
			return nil

		case ledserial.LogPacket:
			s.logger.Debug(
				"received log packet from bridge",
				"message", reply.Message)

		case ledserial.ErrorPacket:
			return errors.Errorf("bridge reported error: %s", reply.Message)

		case ledserial.PanicPacket:
			return errors.New("bridge panicked")

		default:
			return errors.Errorf("received unknown packet from bridge: %s", reply.Type())
		}
	}
}

// ErrTimeout is returned when the bridge does not reply within AckTimeout.
var ErrTimeout = errors.New("timed out waiting for bridge")

// timeoutReader turns the empty read the serial port returns on a read
// timeout into ErrTimeout.
type timeoutReader struct {
	io.ReadWriter
}

func (r timeoutReader) Read(b []byte) (int, error) {
	n, err := r.ReadWriter.Read(b)
	if n == 0 && err == nil && len(b) > 0 {
		return 0, ErrTimeout
	}
	return n, err
}

// Close closes the serial port, if this sink opened it.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
