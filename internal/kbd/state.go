package kbd

import (
	"github.com/chaz8081/blekbd/internal/conn"
	"github.com/chaz8081/blekbd/internal/keymap"
	"github.com/chaz8081/blekbd/internal/keyscan"
	"github.com/chaz8081/blekbd/internal/report"
	"github.com/chaz8081/blekbd/internal/timer"
)

// PersistentState lives for the whole run and survives disconnects.
type PersistentState struct {
	Layout  *keymap.Layout
	Scanner *keyscan.Scanner
	Scan    *keyscan.FSM
	Conn    *conn.FSM
	Timers  *timer.Service
}

// SessionState is the per-connection transient state. Reset returns it to
// the state of a freshly booted keyboard.
type SessionState struct {
	Matrix *keyscan.Matrix
	Queue  *keyscan.EventQueue
	Synth  *report.Synthesizer

	passkeyMode bool
	passkey     passkeyEntry

	// Deferred to the end of the loop iteration.
	keyPress bool
	specials []keymap.Keycode
	passkeys []uint32
}

// Reset drops debounce, roll-over, queued events and pending reports.
func (s *SessionState) Reset() {
	s.Matrix.Reset()
	s.Queue.Flush()
	s.Synth.Reset()
	s.passkey.reset()
	s.keyPress = false
	s.specials = s.specials[:0]
	s.passkeys = s.passkeys[:0]
}

// Flush discards queued events and pending reports and forgets held keys.
// The host is told about keys it saw down; keys still held report again.
func (s *SessionState) Flush() {
	s.Queue.Flush()
	s.Synth.FlushReports()
}
