// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Vector3 is one reading of a three-axis channel.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Sample represents a single 9-axis measurement.
type Sample struct {
	Time float32 `json:"time"` // seconds since sampling start

	Acceleration Vector3 `json:"acceleration"` // g
	Gyroscope    Vector3 `json:"gyroscope"`    // °/s
	Magnetometer Vector3 `json:"magnetometer"` // gauss
}
