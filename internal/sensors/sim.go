// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/eos_sensor/internal/imu"
)

// ErrSimReadFailure is returned by Sim on an injected read failure.
var ErrSimReadFailure = errors.New("sim: injected read failure")

// Sim is a simulated IMU that generates smooth, slowly rotating motion.
type Sim struct {
	mu        sync.Mutex
	start     time.Time
	now       func() time.Time
	enabled   [len(imu.Channels)]bool
	failEvery int
	reads     int
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithSimClock replaces time.Now.
func WithSimClock(now func() time.Time) SimOption {
	return func(s *Sim) { s.now = now }
}

// WithReadFailures makes every nth accelerometer read fail. Zero disables it.
func WithReadFailures(n int) SimOption {
	return func(s *Sim) { s.failEvery = n }
}

// NewSim creates a simulated sensor.
func NewSim(opts ...SimOption) *Sim {
	s := &Sim{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

func (s *Sim) Enable(ch imu.Channel) error {
	if ch < 0 || int(ch) >= len(s.enabled) {
		return fmt.Errorf("sim: unknown channel %d", ch)
	}
	s.mu.Lock()
	s.enabled[ch] = true
	s.mu.Unlock()
	return nil
}

// Read returns the channel's value for the current simulated attitude.
func (s *Sim) Read(ch imu.Channel) (imu.Vector3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch < 0 || int(ch) >= len(s.enabled) || !s.enabled[ch] {
		return imu.Vector3{}, fmt.Errorf("sim: %s not enabled", ch)
	}
	if ch == imu.Accelerometer {
		s.reads++
		if s.failEvery > 0 && s.reads%s.failEvery == 0 {
			return imu.Vector3{}, ErrSimReadFailure
		}
	}

	t := s.now().Sub(s.start).Seconds()
	roll := 20 * math.Sin(t) * math.Pi / 180
	pitch := 15 * math.Cos(t*0.7) * math.Pi / 180
	yaw := math.Mod(t*30, 360) * math.Pi / 180

	switch ch {
	case imu.Accelerometer:
		// gravity seen from the tilted body, in g
		return vec(
			-math.Sin(pitch),
			math.Sin(roll)*math.Cos(pitch),
			math.Cos(roll)*math.Cos(pitch),
		), nil
	case imu.Gyroscope:
		// derivatives of the attitude angles, in degrees per second
		return vec(
			20*math.Cos(t),
			-15*0.7*math.Sin(t*0.7),
			30,
		), nil
	default:
		// a 0.5 gauss horizontal field rotating with yaw
		return vec(
			0.5*math.Cos(yaw),
			-0.5*math.Sin(yaw),
			0.4,
		), nil
	}
}

func vec(x, y, z float64) imu.Vector3 {
	return imu.Vector3{X: float32(x), Y: float32(y), Z: float32(z)}
}
