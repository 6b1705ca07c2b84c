// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/eos_sensor/internal/buffer"
	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
	"github.com/relabs-tech/eos_sensor/internal/platform"
	"github.com/relabs-tech/eos_sensor/internal/sampler"
)

// RunSensorConsole samples the board sensor and prints every sample to out,
// without any network. Useful for checking the sensor on the bench.
func RunSensorConsole(ctx context.Context, out io.Writer) error {
	cfg := config.Get()

	p, err := platform.Open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	return printSamples(ctx, out, cfg, p.Sensor)
}

func printSamples(ctx context.Context, out io.Writer, cfg *config.Config, sensor imu.Sensor) error {
	buf := buffer.New[imu.Sample](cfg.BufferCapacity)
	smp := sampler.New(sensor, buf, cfg.SamplePeriod())
	if err := smp.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.SamplePeriod())
	defer ticker.Stop()

	start := time.Now()
	for {
		smp.Tick(time.Since(start))
		for _, s := range buf.DrainUpTo(cfg.BatchSize) {
			fmt.Fprintln(out, formatLine(cfg.DeviceID, s))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
