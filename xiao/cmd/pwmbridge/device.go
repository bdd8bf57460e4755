package main

import (
	"fmt"
	"machine"

	"libdb.so/barbatos/ledserial"
)

// Device stores the current state of the device.
type Device struct {
	serial SerialReadWriter

	// channels holds the slice channel of each configured output. It is
	// empty until the bridge is initialized.
	channels []uint8
}

// NewDevice creates a new device.
func NewDevice(serial machine.Serialer) *Device {
	return &Device{
		serial: WrapSerial(serial),
	}
}

// Run runs the device loop forever.
func (d *Device) Run() {
	defer func() {
		if v := recover(); v != nil {
			d.sendPacket(ledserial.PanicPacket{})
			turnOnMainLED(255, 0, 0)
			select {}
		}
	}()

	for {
		p, err := d.readPacket()
		if err != nil {
			d.logError(err)
			continue
		}

		if err := d.handlePacket(p); err != nil {
			d.logError(err)
		}
	}
}

func (d *Device) log(msg string) {
	d.sendPacket(ledserial.LogPacket{Message: msg})
}

func (d *Device) logError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

func (d *Device) sendPacket(p ledserial.OutgoingPacket) {
	ledserial.WriteOutgoingPacket(d.serial, p)
}

func (d *Device) readPacket() (ledserial.IncomingPacket, error) {
	turnOnMainLED(0, 0, 32)
	p, err := ledserial.ReadIncomingPacket(d.serial)
	turnOffMainLED()
	return p, err
}

func (d *Device) handlePacket(p ledserial.IncomingPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if err := d.initialize(int(p.NumChannels), int(p.Frequency)); err != nil {
			return err
		}
		d.log(fmt.Sprintf("initialized %d outputs at %d Hz", p.NumChannels, p.Frequency))

	case ledserial.ClearPacket:
		d.clear()

	case ledserial.SetDutyPacket:
		if int(p.Channel) >= len(d.channels) {
			return fmt.Errorf("output %d not initialized", p.Channel)
		}
		o := outputs[p.Channel]
		o.pwm.Set(d.channels[p.Channel], scaleDuty(p.Duty, o.pwm.Top()))

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	d.sendPacket(ledserial.AckPacket{
		IncomingPacketType: p.Type(),
	})
	return nil
}

func (d *Device) initialize(n, frequency int) error {
	if n < 1 || n > len(outputs) {
		return fmt.Errorf("invalid number of outputs: %d", n)
	}
	if frequency < 1 {
		return fmt.Errorf("invalid frequency: %d", frequency)
	}

	config := machine.PWMConfig{Period: uint64(1e9 / frequency)}

	channels := make([]uint8, n)
	for i, o := range outputs[:n] {
		if err := o.pwm.Configure(config); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		ch, err := o.pwm.Channel(o.pin)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		channels[i] = ch
	}

	d.channels = channels
	d.clear()
	return nil
}

// clear drives every output to full duty, which turns common-anode LEDs off.
func (d *Device) clear() {
	for i, ch := range d.channels {
		o := outputs[i]
		o.pwm.Set(ch, o.pwm.Top())
	}
}

// scaleDuty rescales a protocol duty onto the slice's counter range.
func scaleDuty(duty uint16, top uint32) uint32 {
	return uint32(uint64(duty) * uint64(top) / ledserial.MaxDuty)
}
