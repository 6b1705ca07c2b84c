// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wsclient

import (
	"encoding/binary"
	"fmt"
)

const (
	finBit  = 0x80
	maskBit = 0x80
)

// MaxHeaderLen is the largest masked client frame header: 2 bytes, a 64-bit
// length and the mask key.
const MaxHeaderLen = 14

// headerLen returns the size of a masked client frame header for a payload of n bytes.
func headerLen(n int) int {
	switch {
	case n < 126:
		return 2 + 4
	case n <= 0xFFFF:
		return 4 + 4
	default:
		return 10 + 4
	}
}

// encodeFrame writes one final, masked frame into buf and returns its length.
func encodeFrame(buf []byte, opcode byte, payload []byte, mask [4]byte) (int, error) {
	h := headerLen(len(payload))
	total := h + len(payload)
	if total > len(buf) {
		return 0, fmt.Errorf("%w: %d byte payload needs %d bytes, buffer is %d", ErrFrameTooLarge, len(payload), total, len(buf))
	}

	buf[0] = finBit | opcode&0x0F
	switch n := len(payload); {
	case n < 126:
		buf[1] = maskBit | byte(n)
	case n <= 0xFFFF:
		buf[1] = maskBit | 126
		binary.BigEndian.PutUint16(buf[2:4], uint16(n))
	default:
		buf[1] = maskBit | 127
		binary.BigEndian.PutUint64(buf[2:10], uint64(n))
	}
	copy(buf[h-4:h], mask[:])

	out := buf[h:total]
	for i, b := range payload {
		out[i] = b ^ mask[i&3]
	}
	return total, nil
}
