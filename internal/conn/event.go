package conn

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/timer"
)

// Kind identifies a connection event.
type Kind uint8

// Event kinds.
const (
	NoEvent Kind = iota
	KeyPress
	TimerExpired
	PairingRequested
	ConnectionRequested
	ConnectionComplete
	Disconnected
	ConnParamsUpdated
	PasskeyEntered
	HostSwitch
	NewHost
	SpotaStart
	SpotaEnd
	AdvertisingTimerExpired
	InactivityTimerExpired
)

func (k Kind) String() string {
	switch k {
	case NoEvent:
		return "NoEvent"
	case KeyPress:
		return "KeyPress"
	case TimerExpired:
		return "TimerExpired"
	case PairingRequested:
		return "PairingRequested"
	case ConnectionRequested:
		return "ConnectionRequested"
	case ConnectionComplete:
		return "ConnectionComplete"
	case Disconnected:
		return "Disconnected"
	case ConnParamsUpdated:
		return "ConnParamsUpdated"
	case PasskeyEntered:
		return "PasskeyEntered"
	case HostSwitch:
		return "HostSwitch"
	case NewHost:
		return "NewHost"
	case SpotaStart:
		return "SpotaStart"
	case SpotaEnd:
		return "SpotaEnd"
	case AdvertisingTimerExpired:
		return "AdvertisingTimerExpired"
	case InactivityTimerExpired:
		return "InactivityTimerExpired"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a connection event with its payload.
type Event struct {
	Kind Kind
	// Peer is the host address for ConnectionRequested and
	// ConnectionComplete.
	Peer string
	// Durable is set on ConnectionComplete when the peer has a durable
	// identity that allows directed reconnection.
	Durable bool
	// Passkey carries the digits for PasskeyEntered.
	Passkey uint32
}

func (e Event) String() string { return e.Kind.String() }

// Ev is shorthand for an event without payload.
func Ev(k Kind) Event { return Event{Kind: k} }

// TimerEvent maps a timer expiry to the event it raises.
func TimerEvent(id timer.ID) (Event, bool) {
	switch id {
	case timer.Advertising, timer.Discoverability:
		return Ev(AdvertisingTimerExpired), true
	case timer.Pairing:
		return Ev(TimerExpired), true
	case timer.Inactivity:
		return Ev(InactivityTimerExpired), true
	default:
		return Event{}, false
	}
}
