// Package report turns key events into HID report snapshots and holds them
// in a fixed pool until the transport accepts them.
//
// Two report kinds exist. A Normal report is the 8-byte boot keyboard
// report: modifier byte, reserved byte and six usage slots. An Extended
// report is a 3-byte little-endian consumer-control bitmap.
package report

import "errors"

// Kind selects the report layout.
type Kind uint8

// Report kinds.
const (
	KindNormal Kind = iota
	KindExtended

	numKinds = 2
)

// Report lengths in bytes.
const (
	NormalLen   = 8
	ExtendedLen = 3
)

// Len returns the payload length of a report of kind k.
func (k Kind) Len() int {
	if k == KindExtended {
		return ExtendedLen
	}
	return NormalLen
}

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// Transition records whether a report was produced by a press or a release.
type Transition uint8

// Transitions.
const (
	TransitionPress Transition = iota
	TransitionRelease
)

// Report is one queued snapshot.
type Report struct {
	Kind       Kind
	Transition Transition
	// Modifier is set for reports produced by a modifier key.
	Modifier bool
	Len      int
	Data     [NormalLen]byte
}

// Bytes returns the report payload.
func (r *Report) Bytes() []byte { return r.Data[:r.Len] }

// ErrNoCredit is returned by a Transport that has no buffer for another
// report right now. The report stays queued and is retried later.
var ErrNoCredit = errors.New("report: no transmit credit")

// Transport delivers reports to the host.
type Transport interface {
	SendReport(kind Kind, data []byte) error
}
