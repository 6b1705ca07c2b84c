// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/eos_sensor/internal/imu"
)

// LSM9DS1 register map.
const (
	regWhoAmI = 0x0F
	whoAmIAG  = 0x68
	whoAmIMag = 0x3D

	// accelerometer/gyroscope die
	regCtrl1G  = 0x10
	regOutXLG  = 0x18
	regCtrl4   = 0x1E
	regCtrl5XL = 0x1F
	regCtrl6XL = 0x20
	regOutXLXL = 0x28

	// magnetometer die
	regCtrl1M   = 0x20
	regCtrl2M   = 0x21
	regCtrl3M   = 0x22
	regCtrl4M   = 0x23
	regOutXLM   = 0x28
	autoIncrMag = 0x80
)

// Full-scale sensitivities for the ranges programmed by Enable.
const (
	accelScale = 0.000061 // g/LSB at ±2 g
	gyroScale  = 0.00875  // dps/LSB at 245 dps
	magScale   = 0.00014  // gauss/LSB at ±4 gauss
)

// LSM9DS1 is a 9-axis sensor on an I2C bus.
type LSM9DS1 struct {
	ag      i2c.Dev
	mag     i2c.Dev
	enabled [len(imu.Channels)]bool
}

// NewLSM9DS1 returns a driver for the two dies of an LSM9DS1 on bus.
// Nothing is written to the device until Enable.
func NewLSM9DS1(bus i2c.Bus, agAddr, magAddr uint16) *LSM9DS1 {
	return &LSM9DS1{
		ag:  i2c.Dev{Bus: bus, Addr: agAddr},
		mag: i2c.Dev{Bus: bus, Addr: magAddr},
	}
}

// OpenLSM9DS1 initializes periph, opens the named I2C bus and returns the
// driver together with the bus closer.
func OpenLSM9DS1(busName string, agAddr, magAddr uint16) (*LSM9DS1, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("lsm9ds1: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("lsm9ds1: i2c open (%s): %w", busName, err)
	}
	log.Printf("lsm9ds1: bus %s, ag 0x%02X, mag 0x%02X", bus, agAddr, magAddr)
	return NewLSM9DS1(bus, agAddr, magAddr), bus, nil
}

// Enable verifies the die identity and programs the control registers of ch.
func (d *LSM9DS1) Enable(ch imu.Channel) error {
	var err error
	switch ch {
	case imu.Accelerometer:
		err = d.configure(&d.ag, whoAmIAG,
			regCtrl5XL, 0x38, // XYZ enabled
			regCtrl6XL, 0x60, // 119 Hz, ±2 g
		)
	case imu.Gyroscope:
		err = d.configure(&d.ag, whoAmIAG,
			regCtrl1G, 0x60, // 119 Hz, 245 dps
			regCtrl4, 0x38,  // XYZ enabled
		)
	case imu.Magnetometer:
		err = d.configure(&d.mag, whoAmIMag,
			regCtrl1M, 0x70, // ultra-high performance XY, 10 Hz
			regCtrl2M, 0x00, // ±4 gauss
			regCtrl3M, 0x00, // continuous conversion
			regCtrl4M, 0x0C, // ultra-high performance Z
		)
	default:
		return fmt.Errorf("lsm9ds1: unknown channel %d", ch)
	}
	if err != nil {
		return fmt.Errorf("lsm9ds1: enable %s: %w", ch, err)
	}
	d.enabled[ch] = true
	return nil
}

func (d *LSM9DS1) configure(dev *i2c.Dev, want byte, regVals ...byte) error {
	var id [1]byte
	if err := dev.Tx([]byte{regWhoAmI}, id[:]); err != nil {
		return fmt.Errorf("read WHO_AM_I: %w", err)
	}
	if id[0] != want {
		return fmt.Errorf("WHO_AM_I 0x%02X, want 0x%02X", id[0], want)
	}
	for i := 0; i+1 < len(regVals); i += 2 {
		if err := dev.Tx([]byte{regVals[i], regVals[i+1]}, nil); err != nil {
			return fmt.Errorf("write reg 0x%02X: %w", regVals[i], err)
		}
	}
	return nil
}

// Read returns one scaled reading: g for the accelerometer, degrees per
// second for the gyroscope and gauss for the magnetometer.
func (d *LSM9DS1) Read(ch imu.Channel) (imu.Vector3, error) {
	if ch < 0 || int(ch) >= len(d.enabled) || !d.enabled[ch] {
		return imu.Vector3{}, fmt.Errorf("lsm9ds1: %s not enabled", ch)
	}

	var (
		dev   *i2c.Dev
		reg   byte
		scale float32
	)
	switch ch {
	case imu.Accelerometer:
		dev, reg, scale = &d.ag, regOutXLXL, accelScale
	case imu.Gyroscope:
		dev, reg, scale = &d.ag, regOutXLG, gyroScale
	default:
		dev, reg, scale = &d.mag, autoIncrMag|regOutXLM, magScale
	}

	var raw [6]byte
	if err := dev.Tx([]byte{reg}, raw[:]); err != nil {
		return imu.Vector3{}, fmt.Errorf("lsm9ds1: read %s: %w", ch, err)
	}
	return imu.Vector3{
		X: float32(int16(binary.LittleEndian.Uint16(raw[0:2]))) * scale,
		Y: float32(int16(binary.LittleEndian.Uint16(raw[2:4]))) * scale,
		Z: float32(int16(binary.LittleEndian.Uint16(raw[4:6]))) * scale,
	}, nil
}
