// Package pca9685 drives the NXP PCA9685 16-channel PWM controller over I2C.
package pca9685

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
	"libdb.so/barbatos/internal/led"
)

// DefaultAddress is the factory I2C address of the PCA9685.
const DefaultAddress = 0x40

// NumOutputs is the number of PWM outputs on the chip.
const NumOutputs = 16

// MaxDuty is the 12-bit full-scale duty value.
const MaxDuty = 4095

const oscillatorHz = 25_000_000

const (
	regMode1    = 0x00
	regMode2    = 0x01
	regLED0OnL  = 0x06
	regPrescale = 0xFE

	mode1Restart = 0x80
	mode1AI      = 0x20
	mode1Sleep   = 0x10
	mode1AllCall = 0x01
	mode2OutDrv  = 0x04

	fullBit = 0x10 // bit 4 of LEDn_ON_H and LEDn_OFF_H
)

// Conn is the register interface of an I2C device. *i2c.Device implements it.
type Conn interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

var _ Conn = (*i2c.Device)(nil)

// Device is a PCA9685 exposed as an led.Sink.
type Device struct {
	mu      sync.Mutex
	conn    Conn
	mapping led.Mapping
}

var _ led.Sink = (*Device)(nil)

// Open opens the I2C bus device file (e.g. /dev/i2c-1) and initializes the
// controller at addr with the given PWM frequency.
func Open(dev string, addr int, frequency int, mapping led.Mapping) (*Device, error) {
	conn, err := i2c.Open(&i2c.Devfs{Dev: dev}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open i2c device %s", dev)
	}

	d, err := New(conn, frequency, mapping)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return d, nil
}

// New initializes the controller behind conn.
func New(conn Conn, frequency int, mapping led.Mapping) (*Device, error) {
	if err := mapping.Validate(NumOutputs); err != nil {
		return nil, errors.Wrap(err, "invalid channel mapping")
	}

	d := &Device{conn: conn, mapping: mapping}
	if err := d.reset(); err != nil {
		return nil, errors.Wrap(err, "failed to reset pca9685")
	}
	if err := d.setFrequency(frequency); err != nil {
		return nil, errors.Wrap(err, "failed to set pwm frequency")
	}

	return d, nil
}

// Prescale returns the prescaler value for the given frequency in Hz.
func Prescale(frequency int) byte {
	prescale := math.Round(oscillatorHz/(4096*float64(frequency))) - 1
	switch {
	case prescale < 3:
		prescale = 3
	case prescale > 255:
		prescale = 255
	}
	return byte(prescale)
}

func (d *Device) reset() error {
	if err := d.conn.WriteReg(regMode1, []byte{mode1AllCall}); err != nil {
		return err
	}
	return d.conn.WriteReg(regMode2, []byte{mode2OutDrv})
}

func (d *Device) setFrequency(frequency int) error {
	if frequency <= 0 {
		return errors.New("frequency must be positive")
	}

	var mode [1]byte
	if err := d.conn.ReadReg(regMode1, mode[:]); err != nil {
		return err
	}
	old := mode[0] &^ mode1Restart

	// The prescaler can only be written while the oscillator sleeps.
	if err := d.conn.WriteReg(regMode1, []byte{old | mode1Sleep}); err != nil {
		return err
	}
	if err := d.conn.WriteReg(regPrescale, []byte{Prescale(frequency)}); err != nil {
		return err
	}
	if err := d.conn.WriteReg(regMode1, []byte{old}); err != nil {
		return err
	}

	time.Sleep(5 * time.Millisecond)

	return d.conn.WriteReg(regMode1, []byte{old | mode1Restart | mode1AI})
}

// Write implements led.Sink.
func (d *Device) Write(ch led.Channel, b led.Brightness) error {
	regs := dutyRegisters(led.Duty(b, MaxDuty))
	reg := byte(regLED0OnL + 4*d.mapping.Output(ch))

	d.mu.Lock()
	err := d.conn.WriteReg(reg, regs[:])
	d.mu.Unlock()

	if err != nil {
		return &led.TransportError{Channel: ch, Err: err}
	}
	return nil
}

// dutyRegisters returns LEDn_ON_L, LEDn_ON_H, LEDn_OFF_L and LEDn_OFF_H for a
// 12-bit duty. The extremes use the full-on and full-off bits.
func dutyRegisters(duty uint32) [4]byte {
	switch {
	case duty >= MaxDuty:
		return [4]byte{0, fullBit, 0, 0}
	case duty == 0:
		return [4]byte{0, 0, 0, fullBit}
	default:
		return [4]byte{0, 0, byte(duty), byte(duty >> 8)}
	}
}

// Close closes the bus. The outputs keep their last duty.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}
