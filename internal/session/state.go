// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import "fmt"

// State is the position of the Manager in its connection lifecycle.
type State int32

const (
	AwaitingLink State = iota
	AwaitingAddress
	Handshaking
	Identifying
	Streaming
)

func (s State) String() string {
	switch s {
	case AwaitingLink:
		return "awaiting-link"
	case AwaitingAddress:
		return "awaiting-address"
	case Handshaking:
		return "handshaking"
	case Identifying:
		return "identifying"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
