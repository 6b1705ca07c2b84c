// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session drives the node's connection to the collector: wait for
// the network, open a WebSocket session, announce the device and stream
// encoded sample batches until something fails, then start over.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/eos_sensor/internal/buffer"
	"github.com/relabs-tech/eos_sensor/internal/codec"
	"github.com/relabs-tech/eos_sensor/internal/imu"
	"github.com/relabs-tech/eos_sensor/internal/wsclient"
)

// ErrLinkDown is returned by Step when the link drops during a session.
var ErrLinkDown = errors.New("session: link down")

// Link reports the state of the network interface. It is polled, never pushed.
type Link interface {
	IsLinkUp() bool
	CurrentAddress() (netip.Addr, bool)
}

// Indicator shows whether the link is up (status LED).
type Indicator interface {
	SetConnected(bool)
}

// Config is the immutable part of a Manager.
type Config struct {
	Host     string
	Port     int
	Path     string
	DeviceID string

	BatchSize        int
	PollInterval     time.Duration
	SendInterval     time.Duration
	FrameBufferSize  int
	HandshakeTimeout time.Duration
}

// Deps are the collaborators a Manager works with.
type Deps struct {
	Link      Link
	Dialer    wsclient.Dialer
	Resolver  wsclient.Resolver // nil: net.DefaultResolver
	Rand      io.Reader
	Buffer    *buffer.Ring[imu.Sample]
	Indicator Indicator   // nil: no indicator
	Logger    *log.Logger // nil: log.Default()
}

// Stats are cumulative counters since the Manager was created.
type Stats struct {
	Sessions uint64
	Batches  uint64
	Samples  uint64
	Failures uint64
}

// Manager is the session state machine. Step and Run must be called from a
// single goroutine; State and Stats may be read from anywhere.
type Manager struct {
	cfg  Config
	deps Deps
	log  *log.Logger

	bufs *wsclient.Buffers
	enc  codec.Encoder
	conn *wsclient.Conn

	state     atomic.Int32
	linkKnown bool
	linkUp    bool

	sessions atomic.Uint64
	batches  atomic.Uint64
	samples  atomic.Uint64
	failures atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Manager in AwaitingLink. The frame buffers are allocated
// here once and reused by every session.
func New(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Indicator == nil {
		deps.Indicator = nopIndicator{}
	}
	m := &Manager{
		cfg:   cfg,
		deps:  deps,
		log:   logger,
		bufs:  wsclient.NewBuffers(cfg.FrameBufferSize),
		enc:   codec.Encoder{MaxSize: cfg.FrameBufferSize - wsclient.MaxHeaderLen},
		sleep: sleepCtx,
	}
	m.state.Store(int32(AwaitingLink))
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Sessions: m.sessions.Load(),
		Batches:  m.batches.Load(),
		Samples:  m.samples.Load(),
		Failures: m.failures.Load(),
	}
}

// Run steps the state machine until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if _, err := m.Step(ctx); err != nil && ctx.Err() != nil {
			m.teardown()
			return ctx.Err()
		}
	}
}

// Step performs one transition, one poll or one streaming cycle and returns
// the resulting state. A non-nil error is the failure that sent the machine
// back to AwaitingLink, or ctx's error.
func (m *Manager) Step(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return m.State(), err
	}

	var next State
	var err error
	switch s := m.State(); s {
	case AwaitingLink:
		next, err = m.awaitLink(ctx)
	case AwaitingAddress:
		next, err = m.awaitAddress(ctx)
	case Handshaking:
		next, err = m.handshake(ctx)
	case Identifying:
		next, err = m.identify(ctx)
	case Streaming:
		next, err = m.stream(ctx)
	default:
		panic(fmt.Sprintf("session: unknown state %d", s))
	}
	m.state.Store(int32(next))
	return next, err
}

func (m *Manager) awaitLink(ctx context.Context) (State, error) {
	up := m.pollLink()
	if up {
		return AwaitingAddress, nil
	}
	return AwaitingLink, m.sleep(ctx, m.cfg.PollInterval)
}

func (m *Manager) awaitAddress(ctx context.Context) (State, error) {
	if !m.pollLink() {
		return AwaitingLink, nil
	}
	addr, ok := m.deps.Link.CurrentAddress()
	if ok {
		m.log.Printf("session: address %s", addr)
		return Handshaking, nil
	}
	return AwaitingAddress, m.sleep(ctx, m.cfg.PollInterval)
}

// pollLink reads the link state and mirrors changes on the indicator.
func (m *Manager) pollLink() bool {
	up := m.deps.Link.IsLinkUp()
	if !m.linkKnown || up != m.linkUp {
		m.linkKnown = true
		m.linkUp = up
		m.deps.Indicator.SetConnected(up)
		if up {
			m.log.Printf("session: link up")
		} else {
			m.log.Printf("session: link down")
		}
	}
	return up
}

func (m *Manager) handshake(ctx context.Context) (State, error) {
	conn, err := wsclient.Connect(ctx, m.deps.Dialer, m.bufs, wsclient.Options{
		Host:             m.cfg.Host,
		Port:             m.cfg.Port,
		Path:             m.cfg.Path,
		Rand:             m.deps.Rand,
		Resolver:         m.deps.Resolver,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	})
	if err != nil {
		return m.fail(ctx, "connect", err)
	}
	m.conn = conn
	m.sessions.Add(1)
	m.log.Printf("session: connected to %s%s", conn.RemoteAddr(), m.cfg.Path)
	return Identifying, nil
}

func (m *Manager) identify(ctx context.Context) (State, error) {
	if !m.pollLink() {
		return m.linkLost()
	}
	if err := m.conn.SendText(m.cfg.DeviceID); err != nil {
		return m.fail(ctx, "identify", err)
	}
	m.log.Printf("session: identified as %q", m.cfg.DeviceID)
	return Streaming, nil
}

func (m *Manager) stream(ctx context.Context) (State, error) {
	if !m.pollLink() {
		return m.linkLost()
	}
	batch := m.deps.Buffer.DrainUpTo(m.cfg.BatchSize)

	payload, err := m.enc.Encode(batch)
	if err != nil {
		return m.fail(ctx, "encode", err)
	}
	if err := m.conn.SendBinary(payload); err != nil {
		return m.fail(ctx, "send", err)
	}
	m.batches.Add(1)
	m.samples.Add(uint64(len(batch)))

	return Streaming, m.sleep(ctx, m.cfg.SendInterval)
}

// fail logs err by class, ends the session and waits one poll interval
// before the machine starts over.
func (m *Manager) fail(ctx context.Context, op string, err error) (State, error) {
	m.failures.Add(1)
	m.log.Printf("session: %s failed (%s): %v", op, classify(err), err)
	m.teardown()
	if serr := m.sleep(ctx, m.cfg.PollInterval); serr != nil {
		return AwaitingLink, serr
	}
	return AwaitingLink, err
}

// linkLost ends the session without waiting; AwaitingLink does the polling.
func (m *Manager) linkLost() (State, error) {
	m.teardown()
	return AwaitingLink, ErrLinkDown
}

func (m *Manager) teardown() {
	if m.conn == nil {
		return
	}
	m.conn.Close()
	m.conn = nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, wsclient.ErrInvalidAddress):
		return "invalid address"
	case errors.Is(err, wsclient.ErrHandshake):
		return "handshake"
	case errors.Is(err, wsclient.ErrFrameTooLarge), errors.Is(err, codec.ErrTooLarge):
		return "oversize"
	case errors.Is(err, wsclient.ErrTransport):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopIndicator struct{}

func (nopIndicator) SetConnected(bool) {}
