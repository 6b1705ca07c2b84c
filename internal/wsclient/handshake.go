// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wsclient

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// acceptGUID is the fixed GUID from RFC 6455 section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var headerEnd = []byte("\r\n\r\n")

// NewKey draws 16 bytes from r and returns them base64 encoded, the form
// expected in Sec-WebSocket-Key.
func NewKey(r io.Reader) (string, error) {
	var raw [16]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// AcceptKey returns the Sec-WebSocket-Accept value a server must answer with for key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func writeRequest(w io.Writer, opts Options, key string) error {
	host := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	origin := opts.Origin
	if origin == "" {
		origin = "http://" + host
	}
	_, err := fmt.Fprintf(w,
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\n"+
			"Sec-WebSocket-Version: 13\r\n"+
			"Origin: %s\r\n"+
			"\r\n",
		opts.Path, host, key, origin)
	return err
}

// readResponseHeader reads into buf until the end of the HTTP header has been
// seen and returns the number of bytes read.
func readResponseHeader(r io.Reader, buf []byte) (int, error) {
	n := 0
	for {
		if n == len(buf) {
			return n, fmt.Errorf("%w: response header larger than %d bytes", ErrHandshake, len(buf))
		}
		m, err := r.Read(buf[n:])
		n += m
		// Only the freshly read bytes plus a possible split terminator need scanning.
		from := n - m - len(headerEnd) + 1
		if from < 0 {
			from = 0
		}
		if bytes.Contains(buf[from:n], headerEnd) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: read response: %v", ErrTransport, err)
		}
	}
}

// ClientAccept validates the server's handshake response for key.
// Bytes after the header are ignored.
func ClientAccept(key string, response []byte) error {
	end := bytes.Index(response, headerEnd)
	if end < 0 {
		return fmt.Errorf("%w: incomplete response header", ErrHandshake)
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(response[:end+len(headerEnd)])), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("%w: status %s", ErrHandshake, resp.Status)
	}
	if !headerHasToken(resp.Header, "Upgrade", "websocket") {
		return fmt.Errorf("%w: missing Upgrade: websocket", ErrHandshake)
	}
	if !headerHasToken(resp.Header, "Connection", "upgrade") {
		return fmt.Errorf("%w: missing Connection: upgrade", ErrHandshake)
	}
	if got, want := resp.Header.Get("Sec-WebSocket-Accept"), AcceptKey(key); got != want {
		return fmt.Errorf("%w: accept token %q, want %q", ErrHandshake, got, want)
	}
	return nil
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
