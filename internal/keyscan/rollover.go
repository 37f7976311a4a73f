package keyscan

import (
	"slices"

	"github.com/chaz8081/blekbd/internal/keymap"
)

// RollOverLimit is the number of normal keys a keyboard report can carry.
const RollOverLimit = 6

// RollOverEntry is one held normal key.
type RollOverEntry struct {
	Fn   uint8
	Out  uint8
	In   uint8
	Code keymap.Keycode
}

// RollOverResult tells the synthesizer how to react to a tracked transition.
type RollOverResult uint8

const (
	// RollOverNone: the transition fits the report; update it per key.
	RollOverNone RollOverResult = iota
	// RollOverEnter: one key too many; report the error code in every slot.
	RollOverEnter
	// RollOverExit: back within the limit; report the sorted held keys.
	RollOverExit
	// RollOverAbsorb: nothing to report.
	RollOverAbsorb
)

// RollOverTracker tracks held normal keys. The table holds at most
// RollOverLimit+1 entries; a full table is the phantom state.
type RollOverTracker struct {
	entries [RollOverLimit + 1]RollOverEntry
	n       int
}

// Press records a newly reported normal key.
func (t *RollOverTracker) Press(e RollOverEntry) RollOverResult {
	switch {
	case t.n < RollOverLimit:
		t.entries[t.n] = e
		t.n++
		return RollOverNone
	case t.n == RollOverLimit:
		t.entries[t.n] = e
		t.n++
		return RollOverEnter
	default:
		return RollOverAbsorb
	}
}

// Release removes the entry for (out, in). Unmatched releases are absorbed.
func (t *RollOverTracker) Release(out, in uint8) (RollOverEntry, RollOverResult) {
	i := t.find(out, in)
	if i < 0 {
		return RollOverEntry{}, RollOverAbsorb
	}
	e := t.entries[i]
	phantom := t.Phantom()
	copy(t.entries[i:t.n], t.entries[i+1:t.n])
	t.n--
	t.entries[t.n] = RollOverEntry{}
	if phantom {
		return e, RollOverExit
	}
	return e, RollOverNone
}

// Phantom reports whether more keys are held than can be reported.
func (t *RollOverTracker) Phantom() bool { return t.n > RollOverLimit }

// Len returns the number of tracked keys.
func (t *RollOverTracker) Len() int { return t.n }

// Sorted returns the tracked keycodes in ascending order.
func (t *RollOverTracker) Sorted() []keymap.Keycode {
	codes := make([]keymap.Keycode, t.n)
	for i := 0; i < t.n; i++ {
		codes[i] = t.entries[i].Code
	}
	slices.Sort(codes)
	return codes
}

// Reset forgets every tracked key.
func (t *RollOverTracker) Reset() {
	t.entries = [RollOverLimit + 1]RollOverEntry{}
	t.n = 0
}

func (t *RollOverTracker) find(out, in uint8) int {
	for i := 0; i < t.n; i++ {
		if t.entries[i].Out == out && t.entries[i].In == in {
			return i
		}
	}
	return -1
}
