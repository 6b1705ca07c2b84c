// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package platform assembles the per-board collaborators the node runs on.
package platform

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"net/netip"

	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
	"github.com/relabs-tech/eos_sensor/internal/sensors"
	"github.com/relabs-tech/eos_sensor/internal/session"
)

// Peripherals is everything board specific the node needs.
type Peripherals struct {
	Sensor    imu.Sensor
	Link      session.Link
	Rand      io.Reader
	Indicator session.Indicator
	Close     func() error
}

// Open builds the Peripherals for cfg.Board.
func Open(cfg *config.Config) (*Peripherals, error) {
	p := &Peripherals{
		Rand:      rand.Reader,
		Indicator: NopIndicator{},
		Close:     func() error { return nil },
	}

	switch cfg.Board {
	case config.BoardLSM9DS1:
		dev, bus, err := sensors.OpenLSM9DS1(cfg.I2CBus, cfg.LSM9DS1AGAddr, cfg.LSM9DS1MagAddr)
		if err != nil {
			return nil, err
		}
		p.Sensor = dev
		p.Link = NetLink{Name: cfg.NetInterface}
		p.Close = bus.Close

	case config.BoardSim:
		p.Sensor = sensors.NewSim(sensors.WithReadFailures(cfg.SimFailEvery))
		if cfg.NetInterface != "" {
			p.Link = NetLink{Name: cfg.NetInterface}
		} else {
			p.Link = StaticLink{Addr: netip.AddrFrom4([4]byte{127, 0, 0, 1})}
		}

	default:
		return nil, fmt.Errorf("platform: unknown board %q", cfg.Board)
	}

	if cfg.StatusLEDPin != "" {
		led, err := OpenLED(cfg.StatusLEDPin)
		if err != nil {
			return nil, errors.Join(err, p.Close())
		}
		p.Indicator = led
	}

	log.Printf("platform: board %s ready", cfg.Board)
	return p, nil
}
