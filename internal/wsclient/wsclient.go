// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wsclient is a small send-only WebSocket client (RFC 6455) that runs
// over any stream socket. It performs the opening handshake and writes masked
// text and binary frames; it never parses inbound data frames.
//
// All frame bytes are built in a caller-owned Buffers value so that a
// reconnecting caller can reuse the same memory for every session.
package wsclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrInvalidAddress = errors.New("ws: invalid address")
	ErrTransport      = errors.New("ws: transport failure")
	ErrHandshake      = errors.New("ws: handshake rejected")
	ErrFrameTooLarge  = errors.New("ws: frame does not fit buffer")
	ErrClosed         = errors.New("ws: connection closed")
)

// Dialer opens the transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver turns a host name into addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Options describes one connection attempt.
type Options struct {
	Host   string
	Port   int
	Path   string
	Origin string // defaults to http://host:port

	// Rand supplies the handshake key and the frame masks.
	Rand io.Reader
	// Resolver is used when Host is not an IP literal. Nil means net.DefaultResolver.
	Resolver Resolver
	// HandshakeTimeout bounds the handshake and every later frame write. Zero disables it.
	HandshakeTimeout time.Duration
}

// Buffers is the memory a session works in: the frame scratch buffer (which
// also receives the handshake response) and the buffered transmit side.
type Buffers struct {
	frame []byte
	w     *bufio.Writer
}

// NewBuffers allocates a frame buffer and a transmit buffer of size bytes each.
func NewBuffers(size int) *Buffers {
	return &Buffers{
		frame: make([]byte, size),
		w:     bufio.NewWriterSize(io.Discard, size),
	}
}

// Size returns the frame buffer size.
func (b *Buffers) Size() int { return len(b.frame) }

// Conn is an open client session. It is not safe for concurrent use.
type Conn struct {
	nc           net.Conn
	bufs         *Buffers
	rand         io.Reader
	writeTimeout time.Duration
}

// Connect resolves the collector address, opens the transport and runs the
// opening handshake. Failures wrap ErrInvalidAddress, ErrTransport or
// ErrHandshake. On failure the transport is closed.
func Connect(ctx context.Context, d Dialer, bufs *Buffers, opts Options) (*Conn, error) {
	if opts.Rand == nil {
		return nil, fmt.Errorf("%w: no randomness source", ErrHandshake)
	}
	addr, err := resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}

	c := &Conn{
		nc:           nc,
		bufs:         bufs,
		rand:         opts.Rand,
		writeTimeout: opts.HandshakeTimeout,
	}
	bufs.w.Reset(nc)

	if err := c.handshake(ctx, opts); err != nil {
		nc.Close()
		bufs.w.Reset(io.Discard)
		return nil, err
	}
	return c, nil
}

func resolve(ctx context.Context, opts Options) (string, error) {
	if opts.Host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return "", fmt.Errorf("%w: port %d", ErrInvalidAddress, opts.Port)
	}
	if len(opts.Path) == 0 || opts.Path[0] != '/' {
		return "", fmt.Errorf("%w: path %q", ErrInvalidAddress, opts.Path)
	}

	port := strconv.Itoa(opts.Port)
	if ip := net.ParseIP(opts.Host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	r := opts.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, opts.Host)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("%w: resolve %q: %v", ErrInvalidAddress, opts.Host, err)
	}
	return net.JoinHostPort(addrs[0], port), nil
}

func (c *Conn) handshake(ctx context.Context, opts Options) error {
	if opts.HandshakeTimeout > 0 {
		c.nc.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	// Unblock a pending read or write if ctx ends first.
	stop := context.AfterFunc(ctx, func() { c.nc.SetDeadline(time.Now()) })
	defer stop()

	key, err := NewKey(c.rand)
	if err != nil {
		return fmt.Errorf("%w: key: %v", ErrHandshake, err)
	}

	if err := writeRequest(c.bufs.w, opts, key); err != nil {
		return fmt.Errorf("%w: write request: %v", ErrTransport, err)
	}
	if err := c.bufs.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush request: %v", ErrTransport, err)
	}

	n, err := readResponseHeader(c.nc, c.bufs.frame)
	if err != nil {
		return err
	}
	if err := ClientAccept(key, c.bufs.frame[:n]); err != nil {
		return err
	}

	c.nc.SetDeadline(time.Time{})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// SendText sends s as one text frame.
func (c *Conn) SendText(s string) error {
	return c.send(websocket.TextMessage, []byte(s))
}

// SendBinary sends b as one binary frame.
func (c *Conn) SendBinary(b []byte) error {
	return c.send(websocket.BinaryMessage, b)
}

func (c *Conn) send(opcode int, payload []byte) error {
	if c.nc == nil {
		return ErrClosed
	}
	var mask [4]byte
	if _, err := io.ReadFull(c.rand, mask[:]); err != nil {
		return fmt.Errorf("%w: mask: %v", ErrTransport, err)
	}
	n, err := encodeFrame(c.bufs.frame, byte(opcode), payload, mask)
	if err != nil {
		return err
	}

	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.bufs.w.Write(c.bufs.frame[:n]); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	if err := c.bufs.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrTransport, err)
	}
	return nil
}

// Close sends a best-effort normal close frame and closes the transport.
// It is safe to call more than once.
func (c *Conn) Close() error {
	if c.nc == nil {
		return nil
	}
	_ = c.send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.nc.Close()
	c.nc = nil
	c.bufs.w.Reset(io.Discard)
	return err
}

// RemoteAddr returns the collector's transport address.
func (c *Conn) RemoteAddr() net.Addr {
	if c.nc == nil {
		return nil
	}
	return c.nc.RemoteAddr()
}
