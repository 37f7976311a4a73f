// Package conn implements the top-level connection lifecycle: advertising,
// pairing, connected operation and reconnection. It gates whether scanning
// and report transmission may run.
package conn

import "fmt"

// State is a connection lifecycle phase. The order matters: key presses are
// ignored in every state after Connected.
type State uint8

// States.
const (
	StateIdle State = iota
	StateAdvertise
	StateConnectionInProgress
	StateConnectedPairing
	StateConnected
	StateDisconnectedIdle
	StateDisconnectedInit
	StateDirectedAdvertise
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAdvertise:
		return "Advertise"
	case StateConnectionInProgress:
		return "ConnectionInProgress"
	case StateConnectedPairing:
		return "ConnectedPairing"
	case StateConnected:
		return "Connected"
	case StateDisconnectedIdle:
		return "DisconnectedIdle"
	case StateDisconnectedInit:
		return "DisconnectedInit"
	case StateDirectedAdvertise:
		return "DirectedAdvertise"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Advertising reports whether the radio is advertising in state s.
func (s State) Advertising() bool {
	return s == StateAdvertise || s == StateDirectedAdvertise
}

// Linked reports whether a host link exists in state s.
func (s State) Linked() bool {
	return s == StateConnectionInProgress || s == StateConnectedPairing || s == StateConnected
}
