// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package platform

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// LED is a status light on a GPIO pin, lit while the link is up.
type LED struct {
	pin gpio.PinOut
}

// NewLED wraps pin and switches it off.
func NewLED(pin gpio.PinOut) (*LED, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("led: %s: %w", pin, err)
	}
	return &LED{pin: pin}, nil
}

// OpenLED looks up the named pin through periph.
func OpenLED(name string) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("led: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("led: pin %q not found", name)
	}
	return NewLED(pin)
}

func (l *LED) SetConnected(up bool) {
	if err := l.pin.Out(gpio.Level(up)); err != nil {
		log.Printf("led: %s: %v", l.pin, err)
	}
}

// NopIndicator is used when the board has no status light.
type NopIndicator struct{}

func (NopIndicator) SetConnected(bool) {}
