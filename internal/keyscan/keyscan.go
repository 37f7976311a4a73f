// Package keyscan samples the key matrix and turns raw electrical levels into
// an ordered stream of key events.
//
// The pipeline for every sampled row is: debounce (Debouncer), ghost
// rejection (deghost), fn-layer latching, then a push onto the fixed-capacity
// EventQueue. The Scanner drives the row/column lines one row per tick and
// runs post-scan bookkeeping; the FSM decides between idle (edge-wake armed)
// and active scanning. Nothing in this package blocks or allocates after
// construction.
package keyscan

import "github.com/chaz8081/blekbd/internal/keymap"

// Intersection is one (output, input) point of the matrix.
type Intersection struct {
	Out uint8
	In  uint8
}

// EventFlags carries the pressed bit and the fn-layer bits of a key event.
type EventFlags uint8

const (
	// FlagFn marks an event whose key was pressed on the fn layer.
	FlagFn EventFlags = 1 << 0
	// FlagPressed is set for presses and clear for releases.
	FlagPressed EventFlags = 1 << 7

	layerMask EventFlags = 0x0F
)

// KeyEvent is one accepted press or release.
type KeyEvent struct {
	Flags EventFlags
	Out   uint8
	In    uint8
}

// Pressed reports whether e is a press.
func (e KeyEvent) Pressed() bool { return e.Flags&FlagPressed != 0 }

// Layer returns the layout layer the key was pressed on.
func (e KeyEvent) Layer() uint8 {
	if e.Flags&layerMask != 0 {
		return keymap.LayerFn
	}
	return keymap.LayerPrimary
}

// Key returns the intersection of e.
func (e KeyEvent) Key() Intersection { return Intersection{Out: e.Out, In: e.In} }

// GPIO is the matrix line driver. Columns are inputs with pull-ups, so a
// pressed switch on a driven-low row reads as a low level.
type GPIO interface {
	DriveRowLow(out int)
	DriveRowHighZ(out int)
	SetColumnsInputPullup()
	// ReadColumns returns the input levels, bit n set when input n is high.
	ReadColumns() uint32
}

// Polarity selects the edge a WakeController reacts to.
type Polarity uint8

// Edge polarities.
const (
	PolarityLow Polarity = iota
	PolarityHigh
)

// WakeController delivers a single callback on the first qualifying edge of
// the armed inputs.
type WakeController interface {
	ArmEdge(mask uint32, polarity Polarity, debounceTicks uint8)
	Disarm()
}

// Ticker is the periodic scan tick source. Arm replaces any running period.
type Ticker interface {
	Arm(ticks uint32)
	Disarm()
}

// ReportSink consumes queued key events after every full pass.
type ReportSink interface {
	Process() int
}
