// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/eos_sensor/internal/buffer"
	"github.com/relabs-tech/eos_sensor/internal/config"
	"github.com/relabs-tech/eos_sensor/internal/imu"
	"github.com/relabs-tech/eos_sensor/internal/platform"
	"github.com/relabs-tech/eos_sensor/internal/sampler"
	"github.com/relabs-tech/eos_sensor/internal/session"
)

// RunNode samples the board sensor and streams batches to the collector
// until ctx is cancelled. A sensor that cannot be enabled is returned as
// an error wrapping sampler.ErrEnable.
func RunNode(ctx context.Context) error {
	cfg := config.Get()

	p, err := platform.Open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	return runNode(ctx, cfg, p)
}

func runNode(ctx context.Context, cfg *config.Config, p *platform.Peripherals) error {
	buf := buffer.New[imu.Sample](cfg.BufferCapacity)
	smp := sampler.New(p.Sensor, buf, cfg.SamplePeriod())
	mgr := session.New(session.Config{
		Host:             cfg.WSHost,
		Port:             cfg.WSPort,
		Path:             cfg.WSPath,
		DeviceID:         cfg.DeviceID,
		BatchSize:        cfg.BatchSize,
		PollInterval:     cfg.LinkPollPeriod(),
		SendInterval:     cfg.SendPeriod(),
		FrameBufferSize:  cfg.FrameBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeoutDuration(),
	}, session.Deps{
		Link:      p.Link,
		Dialer:    &net.Dialer{},
		Rand:      p.Rand,
		Buffer:    buf,
		Indicator: p.Indicator,
	})

	log.Printf("node: %q streaming to ws://%s%s (sample %s, send %s, batch %d)",
		cfg.DeviceID, cfg.Addr(), cfg.WSPath, cfg.SamplePeriod(), cfg.SendPeriod(), cfg.BatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return smp.Run(ctx) })
	g.Go(func() error { return mgr.Run(ctx) })
	if cfg.StatsInterval > 0 {
		g.Go(func() error { return logStats(ctx, cfg.StatsPeriod(), smp, mgr, buf) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Println("node: stopped")
		return nil
	}
	return err
}

func logStats(ctx context.Context, every time.Duration, smp *sampler.Sampler, mgr *session.Manager, buf *buffer.Ring[imu.Sample]) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		st := mgr.Stats()
		log.Printf("node: %s | sampled %s missed %s | buffered %d/%d dropped %s | sessions %d batches %s sent %s failures %d",
			mgr.State(),
			humanize.Comma(int64(smp.Emitted())), humanize.Comma(int64(smp.Missed())),
			buf.Len(), buf.Cap(), humanize.Comma(int64(buf.Dropped())),
			st.Sessions, humanize.Comma(int64(st.Batches)), humanize.Comma(int64(st.Samples)), st.Failures)
	}
}
