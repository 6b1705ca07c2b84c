// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sampler reads the inertial sensor at a fixed period and pushes
// complete samples into the shared ring buffer.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/eos_sensor/internal/buffer"
	"github.com/relabs-tech/eos_sensor/internal/imu"
)

// ErrEnable is returned by Start when a sensor channel cannot be enabled.
var ErrEnable = errors.New("sampler: sensor enable failed")

// Sampler owns the sensor and is the only producer for its buffer.
type Sampler struct {
	sensor imu.Sensor
	buf    *buffer.Ring[imu.Sample]
	period time.Duration
	log    *log.Logger
	now    func() time.Time

	start time.Time

	emitted atomic.Uint64
	missed  atomic.Uint64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// WithClock replaces time.Now for the elapsed-time stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// New creates a Sampler that reads sensor every period into buf.
func New(sensor imu.Sensor, buf *buffer.Ring[imu.Sample], period time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		sensor: sensor,
		buf:    buf,
		period: period,
		log:    log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start enables every channel in order and records the start instant.
// The first failure is returned wrapped in ErrEnable.
func (s *Sampler) Start() error {
	for _, ch := range imu.Channels {
		if err := s.sensor.Enable(ch); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEnable, ch, err)
		}
	}
	s.start = s.now()
	s.log.Printf("sampler: sensor enabled, period %s", s.period)
	return nil
}

// Tick reads all three channels and pushes one sample stamped with elapsed.
// If any read fails the tick is skipped and Tick returns false.
func (s *Sampler) Tick(elapsed time.Duration) bool {
	var v [len(imu.Channels)]imu.Vector3
	for i, ch := range imu.Channels {
		r, err := s.sensor.Read(ch)
		if err != nil {
			s.missed.Add(1)
			return false
		}
		v[i] = r
	}

	s.buf.Push(imu.Sample{
		Time:         float32(elapsed.Seconds()),
		Acceleration: v[imu.Accelerometer],
		Gyroscope:    v[imu.Gyroscope],
		Magnetometer: v[imu.Magnetometer],
	})
	s.emitted.Add(1)
	return true
}

// Run starts the sensor and ticks until ctx is cancelled. The ticker runs
// independently of read latency, so a slow read delays one tick only.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		s.Tick(s.now().Sub(s.start))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Emitted returns the number of samples pushed.
func (s *Sampler) Emitted() uint64 { return s.emitted.Load() }

// Missed returns the number of skipped ticks.
func (s *Sampler) Missed() uint64 { return s.missed.Load() }
