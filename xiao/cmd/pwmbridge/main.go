// Command pwmbridge is the firmware for a Seeed XIAO RP2040 that drives the
// model's LEDs from its own PWM outputs. The daemon talks to it over USB
// serial using package ledserial.
package main

import "machine"

func main() {
	d := NewDevice(machine.Serial)
	d.Run()
}
