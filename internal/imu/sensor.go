// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Channel selects one sub-system of a 9-axis sensor.
type Channel int

const (
	Accelerometer Channel = iota
	Gyroscope
	Magnetometer
)

// Channels lists every channel in bring-up order.
var Channels = [...]Channel{Accelerometer, Gyroscope, Magnetometer}

func (c Channel) String() string {
	switch c {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	default:
		return "unknown"
	}
}

// Sensor is the board's inertial sensor. Both calls are synchronous.
type Sensor interface {
	Enable(ch Channel) error
	Read(ch Channel) (Vector3, error)
}
