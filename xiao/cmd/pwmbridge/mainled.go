package main

import (
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// The XIAO's onboard NeoPixel shows the bridge state: dim blue while waiting
// for a packet, red after a panic.
// https://wiki.seeedstudio.com/XIAO-RP2040-with-Arduino/
var (
	statusLED      ws2812.Device
	statusLEDPower = machine.GPIO11
	statusLEDReady bool
)

func initStatusLED() {
	if statusLEDReady {
		return
	}

	statusLEDPower.Configure(machine.PinConfig{Mode: machine.PinOutput})
	statusLEDPower.Low()

	machine.GPIO12.Configure(machine.PinConfig{Mode: machine.PinOutput})
	statusLED = ws2812.New(machine.GPIO12)
	statusLEDReady = true
}

func turnOnMainLED(r, g, b uint8) {
	initStatusLED()
	statusLEDPower.High()
	// The NeoPixel takes GRB.
	statusLED.WriteByte(g)
	statusLED.WriteByte(r)
	statusLED.WriteByte(b)
}

func turnOffMainLED() {
	initStatusLED()
	statusLEDPower.Low()
}
