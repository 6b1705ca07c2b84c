// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wsclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	typ  int
	data []byte
}

// startCollector runs a gorilla/websocket server that forwards every message it reads.
func startCollector(t *testing.T) (string, int, <-chan message) {
	t.Helper()
	msgs := make(chan message, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- message{typ: typ, data: data}
		}
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, msgs
}

func testOptions(host string, port int) Options {
	return Options{
		Host:             host,
		Port:             port,
		Path:             "/",
		Rand:             rand.New(rand.NewSource(1)),
		HandshakeTimeout: 2 * time.Second,
	}
}

func receive(t *testing.T, msgs <-chan message) message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return message{}
	}
}

func TestConnectAndSendToGorillaServer(t *testing.T) {
	host, port, msgs := startCollector(t)

	conn, err := Connect(context.Background(), &net.Dialer{}, NewBuffers(4096), testOptions(host, port))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SendText("Eos"))
	m := receive(t, msgs)
	assert.Equal(t, websocket.TextMessage, m.typ)
	assert.Equal(t, "Eos", string(m.data))

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, conn.SendBinary(payload))
	m = receive(t, msgs)
	assert.Equal(t, websocket.BinaryMessage, m.typ)
	assert.Equal(t, payload, m.data)

	require.NoError(t, conn.SendBinary(nil))
	m = receive(t, msgs)
	assert.Equal(t, websocket.BinaryMessage, m.typ)
	assert.Empty(t, m.data)
}

func TestBuffersReusedAcrossSessions(t *testing.T) {
	host, port, msgs := startCollector(t)
	bufs := NewBuffers(1024)

	for i := 0; i < 3; i++ {
		conn, err := Connect(context.Background(), &net.Dialer{}, bufs, testOptions(host, port))
		require.NoError(t, err)
		require.NoError(t, conn.SendText(strconv.Itoa(i)))
		assert.Equal(t, strconv.Itoa(i), string(receive(t, msgs).data))
		require.NoError(t, conn.Close())
		require.NoError(t, conn.Close())
		assert.ErrorIs(t, conn.SendText("late"), ErrClosed)
	}
	assert.Equal(t, 1024, bufs.Size())
}

func TestSendFrameTooLarge(t *testing.T) {
	host, port, msgs := startCollector(t)

	conn, err := Connect(context.Background(), &net.Dialer{}, NewBuffers(512), testOptions(host, port))
	require.NoError(t, err)
	defer conn.Close()

	require.ErrorIs(t, conn.SendBinary(make([]byte, 600)), ErrFrameTooLarge)

	// the connection is still usable; nothing of the oversized frame went out
	require.NoError(t, conn.SendText("after"))
	assert.Equal(t, "after", string(receive(t, msgs).data))
}

// rawServer accepts one connection, answers the handshake with respond(key)
// and reports everything the client sent after the request.
func rawServer(t *testing.T, respond func(key string) string) (int, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	rest := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		io.WriteString(c, respond(req.Header.Get("Sec-WebSocket-Key")))
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		b, _ := io.ReadAll(br)
		rest <- b
	}()
	return ln.Addr().(*net.TCPAddr).Port, rest
}

func TestConnectRejectsTamperedAccept(t *testing.T) {
	port, rest := rawServer(t, func(key string) string {
		good := []byte(AcceptKey(key))
		good[0] ^= 0x01
		return switchingResponse(string(good))
	})

	_, err := Connect(context.Background(), &net.Dialer{}, NewBuffers(1024), testOptions("127.0.0.1", port))
	require.ErrorIs(t, err, ErrHandshake)

	select {
	case b := <-rest:
		assert.Empty(t, b, "no bytes may follow a rejected handshake")
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe close")
	}
}

func TestConnectAcceptsValidRawServer(t *testing.T) {
	port, rest := rawServer(t, func(key string) string {
		return switchingResponse(AcceptKey(key))
	})

	conn, err := Connect(context.Background(), &net.Dialer{}, NewBuffers(1024), testOptions("127.0.0.1", port))
	require.NoError(t, err)
	require.NoError(t, conn.SendText("Eos"))
	require.NoError(t, conn.Close())

	b := <-rest
	require.GreaterOrEqual(t, len(b), 9)
	assert.Equal(t, byte(0x81), b[0])
	assert.Equal(t, byte(0x83), b[1])
}

func TestConnectTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Connect(context.Background(), &net.Dialer{}, NewBuffers(1024), testOptions("127.0.0.1", port))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestConnectHandshakeTimeout(t *testing.T) {
	port, _ := rawServer(t, func(string) string { return "" })
	// the server never answers
	opts := testOptions("127.0.0.1", port)
	opts.HandshakeTimeout = 100 * time.Millisecond

	_, err := Connect(context.Background(), &net.Dialer{}, NewBuffers(1024), opts)
	assert.ErrorIs(t, err, ErrTransport)
}

type failingResolver struct{}

func (failingResolver) LookupHost(context.Context, string) ([]string, error) {
	return nil, errors.New("no such host")
}

type staticResolver []string

func (r staticResolver) LookupHost(context.Context, string) ([]string, error) {
	return r, nil
}

type recordingDialer struct{ addr string }

func (d *recordingDialer) DialContext(_ context.Context, _, addr string) (net.Conn, error) {
	d.addr = addr
	return nil, errors.New("refused")
}

func TestConnectInvalidAddress(t *testing.T) {
	d := &recordingDialer{}
	for name, opts := range map[string]Options{
		"empty host":  {Port: 80, Path: "/"},
		"zero port":   {Host: "10.0.0.1", Path: "/"},
		"big port":    {Host: "10.0.0.1", Port: 70000, Path: "/"},
		"bad path":    {Host: "10.0.0.1", Port: 80, Path: "ingest"},
		"unresolved":  {Host: "collector.invalid", Port: 80, Path: "/", Resolver: failingResolver{}},
		"no response": {Host: "collector.lan", Port: 80, Path: "/", Resolver: staticResolver{}},
	} {
		opts.Rand = rand.New(rand.NewSource(1))
		_, err := Connect(context.Background(), d, NewBuffers(256), opts)
		assert.ErrorIs(t, err, ErrInvalidAddress, name)
	}
	assert.Empty(t, d.addr, "dialer must not be reached")
}

func TestConnectResolvesHostName(t *testing.T) {
	d := &recordingDialer{}
	opts := Options{
		Host:     "collector.lan",
		Port:     8000,
		Path:     "/",
		Rand:     rand.New(rand.NewSource(1)),
		Resolver: staticResolver{"192.168.1.20"},
	}
	_, err := Connect(context.Background(), d, NewBuffers(256), opts)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, "192.168.1.20:8000", d.addr)
}

// pipeDialer hands out the client end of a net.Pipe whose server end
// completes the handshake and then hangs up.
type pipeDialer struct{}

func (pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		req, err := http.ReadRequest(bufio.NewReader(server))
		if err != nil {
			return
		}
		io.WriteString(server, switchingResponse(AcceptKey(req.Header.Get("Sec-WebSocket-Key"))))
	}()
	return client, nil
}

func TestSendAfterPeerHangsUp(t *testing.T) {
	opts := testOptions("127.0.0.1", 9)
	conn, err := Connect(context.Background(), pipeDialer{}, NewBuffers(256), opts)
	require.NoError(t, err)

	err = conn.SendBinary([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTransport)
	conn.Close()
}

// cancelOnResponse cancels the handshake context as soon as the full
// response header has been read.
type cancelOnResponse struct {
	net.Conn
	cancel context.CancelFunc
	seen   []byte
}

func (c *cancelOnResponse) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.seen = append(c.seen, p[:n]...)
	if bytes.Contains(c.seen, []byte("\r\n\r\n")) {
		c.cancel()
	}
	return n, err
}

type cancellingDialer struct {
	cancel context.CancelFunc
}

func (d cancellingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := pipeDialer{}.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &cancelOnResponse{Conn: client, cancel: d.cancel}, nil
}

func TestConnectCancelledAfterAccept(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Connect(ctx, cancellingDialer{cancel: cancel}, NewBuffers(256), testOptions("127.0.0.1", 9))
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
