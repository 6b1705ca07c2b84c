// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wsclient

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Example key and accept value from RFC 6455 section 1.3.
const (
	rfcKey    = "dGhlIHNhbXBsZSBub25jZQ=="
	rfcAccept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
)

func switchingResponse(accept string) string {
	return "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
}

func TestAcceptKey(t *testing.T) {
	assert.Equal(t, rfcAccept, AcceptKey(rfcKey))
}

func TestNewKey(t *testing.T) {
	key, err := NewKey(bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAA==", key)

	_, err = NewKey(bytes.NewReader(make([]byte, 3)))
	assert.Error(t, err)
}

func TestClientAccept(t *testing.T) {
	require.NoError(t, ClientAccept(rfcKey, []byte(switchingResponse(rfcAccept))))

	// trailing bytes after the header are not part of the handshake
	require.NoError(t, ClientAccept(rfcKey, []byte(switchingResponse(rfcAccept)+"\x81\x00")))

	for name, resp := range map[string]string{
		"tampered accept": switchingResponse("s3pPLMBiTxaQ9kYGzzhZRbK+xOO="),
		"missing accept":  "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n",
		"wrong status":    strings.Replace(switchingResponse(rfcAccept), "101 Switching Protocols", "200 OK", 1),
		"no upgrade":      strings.Replace(switchingResponse(rfcAccept), "Upgrade: websocket\r\n", "", 1),
		"no connection":   strings.Replace(switchingResponse(rfcAccept), "Connection: Upgrade\r\n", "", 1),
		"incomplete":      "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n",
		"garbage":         "hello\r\n\r\n",
	} {
		err := ClientAccept(rfcKey, []byte(resp))
		assert.ErrorIs(t, err, ErrHandshake, name)
	}
}

func TestClientAcceptHeaderTokens(t *testing.T) {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"upgrade: WebSocket\r\n" +
		"connection: keep-alive, Upgrade\r\n" +
		"sec-websocket-accept: " + rfcAccept + "\r\n\r\n"
	assert.NoError(t, ClientAccept(rfcKey, []byte(resp)))
}

func TestWriteRequest(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeRequest(&b, Options{Host: "10.0.0.2", Port: 8000, Path: "/ingest"}, rfcKey))

	req, err := http.ReadRequest(bufio.NewReader(&b))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/ingest", req.URL.Path)
	assert.Equal(t, "10.0.0.2:8000", req.Host)
	assert.Equal(t, "websocket", req.Header.Get("Upgrade"))
	assert.Equal(t, "Upgrade", req.Header.Get("Connection"))
	assert.Equal(t, rfcKey, req.Header.Get("Sec-WebSocket-Key"))
	assert.Equal(t, "13", req.Header.Get("Sec-WebSocket-Version"))
	assert.Equal(t, "http://10.0.0.2:8000", req.Header.Get("Origin"))
}

func TestReadResponseHeader(t *testing.T) {
	resp := switchingResponse(rfcAccept)

	// one byte per read exercises a terminator split across reads
	buf := make([]byte, 512)
	n, err := readResponseHeader(&oneByteReader{r: strings.NewReader(resp)}, buf)
	require.NoError(t, err)
	assert.Equal(t, resp, string(buf[:n]))

	_, err = readResponseHeader(strings.NewReader(resp), make([]byte, 20))
	assert.ErrorIs(t, err, ErrHandshake)

	_, err = readResponseHeader(strings.NewReader("HTTP/1.1 101"), buf)
	assert.ErrorIs(t, err, ErrTransport)
}

type oneByteReader struct{ r *strings.Reader }

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}
