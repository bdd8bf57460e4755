package main

import "machine"

// PWM is a PWM slice on the RP2040.
type PWM interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// output is one PWM output pin exposed by the bridge.
type output struct {
	pin machine.Pin
	pwm PWM
}

// outputs lists the XIAO pads in output index order. Pads sharing a slice
// share its frequency.
var outputs = []output{
	{machine.D0, machine.PWM5},
	{machine.D1, machine.PWM5},
	{machine.D2, machine.PWM6},
	{machine.D3, machine.PWM6},
	{machine.D4, machine.PWM3},
	{machine.D5, machine.PWM3},
	{machine.D6, machine.PWM0},
	{machine.D7, machine.PWM0},
	{machine.D8, machine.PWM1},
	{machine.D9, machine.PWM2},
	{machine.D10, machine.PWM1},
}
